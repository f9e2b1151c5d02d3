// Package cmd defines the CLI commands for the shopindex executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shopindex",
		Short: "A storefront catalog indexer.",
		Long: `shopindex discovers, crawls, and indexes the product catalog of an
e-commerce storefront. It detects the store's platform, harvests product
URLs from feeds and sitemaps, normalizes every product into a canonical
record, and persists the deduplicated catalog to Postgres with optional
embedding and summary enrichment.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is env-only configuration)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shopindex: %v\n", err)
		os.Exit(1)
	}
}
