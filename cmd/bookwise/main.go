package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bookwise-inc/bookwise/internal/interfaces/cli/billing"
	"github.com/bookwise-inc/bookwise/internal/interfaces/cli/migrate"
	"github.com/bookwise-inc/bookwise/internal/interfaces/cli/server"
	"github.com/bookwise-inc/bookwise/internal/interfaces/cli/token"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bookwise",
		Short: "Bookwise subscription billing",
		Long:  `Bookwise runs the subscription billing lifecycle: renewal charges, dunning, suspension and reactivation.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		billing.NewCommand(),
		token.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
