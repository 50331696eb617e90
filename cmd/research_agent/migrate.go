package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var migrateCommand = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.db.Migrate(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(os.Stdout, "Schema is up to date")
		return nil
	},
}

var pruneCacheCommand = &cobra.Command{
	Use:   "prune-cache",
	Short: "Delete extraction cache entries older than the URL cache window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		hours := pruneOlderThanHours
		if hours <= 0 {
			hours = a.cfg.URLCacheTTLH
		}
		n, err := a.db.PruneExtractionCache(ctx, hours)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "Pruned %d cached extractions older than %dh\n", n, hours)
		return nil
	},
}

var pruneOlderThanHours int

func init() {
	pruneCacheCommand.Flags().IntVar(&pruneOlderThanHours, "older-than-hours", 0, "Age threshold (defaults to the URL cache window)")
	rootCmd.AddCommand(migrateCommand, pruneCacheCommand)
}
