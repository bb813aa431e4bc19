package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &storeOptions{}
	root := &cobra.Command{
		Use:           "worldctl",
		Short:         "Offline administration of persisted worlds",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data", "./data", "runtime data directory")
	root.PersistentFlags().StringVar(&opts.kind, "storage", "fs", "storage backend: fs, sqlite or postgres")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "postgres dsn, or sqlite file path")

	root.AddCommand(worldsCmd(opts))
	root.AddCommand(showCmd(opts))
	root.AddCommand(tailCmd(opts))
	root.AddCommand(exportCmd(opts))
	root.AddCommand(importCmd(opts))
	root.AddCommand(checkpointsCmd(opts))
	root.AddCommand(restoreCmd(opts))
	root.AddCommand(validateCmd())
	return root
}
