package token

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bookwise-inc/bookwise/internal/infrastructure/auth"
	"github.com/bookwise-inc/bookwise/internal/interfaces/cli/bootstrap"
	"github.com/bookwise-inc/bookwise/internal/shared/constants"
)

var (
	env        string
	configPath string
	subject    string
	ttlDays    int
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Admin token tools",
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", constants.EnvDevelopment, "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for the billing admin endpoints",
		RunE:  runIssue,
	}
	issue.Flags().StringVarP(&subject, "subject", "s", "", "Who the token is for (required)")
	issue.Flags().IntVar(&ttlDays, "ttl", 0, "Lifetime in days (default: auth.admin_token_exp_days)")
	_ = issue.MarkFlagRequired("subject")

	cmd.AddCommand(issue)
	return cmd
}

func runIssue(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap.LoadConfig(env, configPath)
	if err != nil {
		return err
	}

	days := cfg.Auth.AdminTokenExpDays
	if ttlDays > 0 {
		days = ttlDays
	}
	svc := auth.NewAdminTokenService(cfg.Auth.JWTSecret, days)
	signed, exp, err := svc.Issue(subject)
	if err != nil {
		return err
	}
	log.Infow("admin token issued", "subject", subject, "expires_at", exp)

	fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires: %s\n", signed, exp.Format(time.RFC3339))
	return nil
}
