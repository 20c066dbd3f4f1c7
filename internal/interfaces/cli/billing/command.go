package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bookwise-inc/bookwise/internal/interfaces/cli/bootstrap"
	httpRouter "github.com/bookwise-inc/bookwise/internal/interfaces/http"
	"github.com/bookwise-inc/bookwise/internal/shared/constants"
)

var (
	env        string
	configPath string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Run billing jobs once",
		Long:  `Run a single validation or renewal pass and print its summary as JSON. Useful from cron or during incident handling.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", constants.EnvDevelopment, "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate",
			Short: "Settle decided charges and move overdue subscriptions down the dunning path",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnce(cmd, func(ctx context.Context, c *httpRouter.Container) (any, error) {
					return c.Scheduler().RunValidations(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "renew",
			Short: "Send reminders, open renewal charges and suspend unpaid subscriptions",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnce(cmd, func(ctx context.Context, c *httpRouter.Container) (any, error) {
					return c.Scheduler().RunRenewals(ctx)
				})
			},
		},
	)

	return cmd
}

func runOnce(cmd *cobra.Command, job func(ctx context.Context, c *httpRouter.Container) (any, error)) error {
	rt, err := bootstrap.Open(env, configPath, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	container, err := httpRouter.NewContainer(rt.DB, rt.Redis, rt.Config, rt.Log)
	if err != nil {
		return fmt.Errorf("failed to wire billing engine: %w", err)
	}
	if err := container.StartDispatcher(); err != nil {
		return err
	}
	// drains queued notifications before exit
	defer container.Shutdown()

	summary, err := job(cmd.Context(), container)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
