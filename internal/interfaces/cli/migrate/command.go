package migrate

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bookwise-inc/bookwise/internal/infrastructure/migration"
	"github.com/bookwise-inc/bookwise/internal/interfaces/cli/bootstrap"
	"github.com/bookwise-inc/bookwise/internal/shared/constants"
)

var (
	env        string
	configPath string
	steps      int
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply, roll back and inspect the billing schema migrations.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", constants.EnvDevelopment, "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	cmd.AddCommand(
		newUpCommand(),
		newDownCommand(),
		newVersionCommand(),
	)

	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE:  runUp,
	}
}

func newDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE:  runDown,
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE:  runVersion,
	}
}

func runUp(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap.Open(env, configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.Log.Infow("running up migrations", "environment", env, "driver", rt.Config.Database.Driver)

	mgr := migration.NewManager(env, &rt.Config.Database, rt.Log)
	return mgr.Migrate(rt.DB, migration.AutoMigrateModels()...)
}

// gooseStrategy returns the versioned strategy. Down and version only make
// sense for the script-managed MySQL schema.
func gooseStrategy(rt *bootstrap.Runtime) (*migration.GooseStrategy, error) {
	if strings.EqualFold(rt.Config.Database.Driver, "sqlite") {
		return nil, fmt.Errorf("sqlite schemas are managed by auto-migrate; versioned migrations need mysql")
	}
	return migration.NewGooseStrategy("mysql", rt.Log), nil
}

func runDown(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap.Open(env, configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	strategy, err := gooseStrategy(rt)
	if err != nil {
		return err
	}

	rt.Log.Infow("running down migrations", "environment", env, "steps", steps)
	if err := strategy.MigrateDown(rt.DB, steps); err != nil {
		return fmt.Errorf("down migration failed: %w", err)
	}
	rt.Log.Infow("down migration completed successfully")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap.Open(env, configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	strategy, err := gooseStrategy(rt)
	if err != nil {
		return err
	}

	version, err := strategy.GetVersion(rt.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "environment: %s\ncurrent version: %d\n", env, version)
	return nil
}
