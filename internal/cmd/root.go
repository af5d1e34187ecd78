package cmd

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spfin",
	Short: "Amazon SP-API Finances transaction ingestion pipeline",
	Long: `Fetches financial transaction events from the Selling Partner
Finances API, loads them into PostgreSQL with idempotent upserts, and
produces per-SKU revenue summaries and data-integrity reports.

Example usage:
  spfin ingest --posted-after 2024-01-01T00:00:00Z
  spfin ingest --posted-after 2024-01-01T00:00:00Z --summary-csv summary.csv`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}
