package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/storesync/storesync/internal/interfaces/cli/events"
	"github.com/storesync/storesync/internal/interfaces/cli/migrate"
	"github.com/storesync/storesync/internal/interfaces/cli/reconcile"
	"github.com/storesync/storesync/internal/interfaces/cli/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "storesync",
		Short: "storesync - App Store and Play Store subscription reconciliation",
		Long: `storesync keeps one subscription record per user and environment in step
with App Store and Google Play: it consumes store server notifications,
validates client receipts and sweeps records whose notifications went missing.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		reconcile.NewCommand(),
		events.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
