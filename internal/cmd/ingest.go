package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spapi-finances-pipeline/internal/config"
	"github.com/spapi-finances-pipeline/internal/data/postgres"
	"github.com/spapi-finances-pipeline/internal/domain/transaction"
	"github.com/spapi-finances-pipeline/internal/ingest"
	"github.com/spapi-finances-pipeline/internal/logger"
	"github.com/spapi-finances-pipeline/internal/platform/persistence"
	"github.com/spapi-finances-pipeline/internal/report"
	"github.com/spapi-finances-pipeline/internal/spapi"
)

var (
	postedAfter       string
	postedBefore      string
	marketplaceID     string
	transactionStatus string
	apiHost           string
	recordLimit       int
	summaryCSVPath    string
	validationCSVPath string
)

const summaryLogRows = 20

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch transactions and load them into PostgreSQL",
	Long: `Pages through the Finances transaction listing, normalizes each record,
and upserts it into PostgreSQL. Already-loaded records are skipped, so the
command is safe to rerun over the same date range.

After loading, the per-SKU revenue summary and the integrity report are
logged, and optionally written out as CSV files.

Credentials and connection settings come from the environment or a
spfin.env file; see internal/config for the full list.

Example:
  spfin ingest --posted-after 2024-01-01T00:00:00Z
  spfin ingest --posted-after 2024-01-01T00:00:00Z --posted-before 2024-02-01T00:00:00Z --limit 500`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&postedAfter, "posted-after", "", "fetch transactions posted after this ISO-8601 instant (required, or set POSTED_AFTER)")
	ingestCmd.Flags().StringVar(&postedBefore, "posted-before", "", "fetch transactions posted before this ISO-8601 instant (or set POSTED_BEFORE)")
	ingestCmd.Flags().StringVar(&marketplaceID, "marketplace-id", "", "restrict to one marketplace")
	ingestCmd.Flags().StringVar(&transactionStatus, "transaction-status", "", "restrict to one transaction status, e.g. RELEASED")
	ingestCmd.Flags().StringVar(&apiHost, "host", "", "override the SP-API endpoint host")
	ingestCmd.Flags().IntVar(&recordLimit, "limit", 0, "stop after this many records (0 = no limit)")
	ingestCmd.Flags().StringVar(&summaryCSVPath, "summary-csv", "", "write the per-SKU summary to this CSV file (or set SUMMARY_CSV)")
	ingestCmd.Flags().StringVar(&validationCSVPath, "validation-csv", "", "write the integrity report to this CSV file (or set VALIDATION_CSV)")
}

// applyEnvFallbacks fills flags left unset on the command line from the
// environment, after any .env file has been loaded. Explicit flags win.
func applyEnvFallbacks() {
	if postedAfter == "" {
		postedAfter = os.Getenv("POSTED_AFTER")
	}
	if postedBefore == "" {
		postedBefore = os.Getenv("POSTED_BEFORE")
	}
	if summaryCSVPath == "" {
		summaryCSVPath = os.Getenv("SUMMARY_CSV")
	}
	if validationCSVPath == "" {
		validationCSVPath = os.Getenv("VALIDATION_CSV")
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional .env for local development; the real environment wins.
	// Must run before the environment fallbacks below so values supplied
	// through the file are visible to them.
	_ = godotenv.Load()
	applyEnvFallbacks()

	cfg, err := config.LoadConfig("spfin")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if apiHost != "" {
		cfg.SPAPI.Host = apiHost
	}

	if postedAfter == "" && !cfg.Mock.Enabled {
		return fmt.Errorf("--posted-after is required (or set POSTED_AFTER)")
	}

	log := logger.NewLogger(cfg).With("run_id", uuid.NewString())

	db, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		return err
	}
	defer db.Close()

	var source spapi.Source
	if cfg.Mock.Enabled {
		log.Info("Mock mode enabled, replaying canned transactions", "scenario", cfg.Mock.Scenario)
		source = spapi.NewMockSource(log, &cfg.Mock)
	} else {
		tokens := spapi.NewLWATokenProvider(log, &cfg.LWA)
		client := spapi.NewClient(log, &cfg.SPAPI, tokens)
		source = client.ListTransactions(spapi.ListOptions{
			PostedAfter:       postedAfter,
			PostedBefore:      postedBefore,
			MarketplaceID:     marketplaceID,
			TransactionStatus: transactionStatus,
		})
	}

	repo := postgres.NewTransactionRepository(log, db)
	reporter := postgres.NewReportRepository(log, db)

	pipeline := ingest.NewPipeline(log, source, repo, db, recordLimit)
	result, err := pipeline.Run(ctx)
	if err != nil {
		log.Error("Ingestion failed", "error", err)
		return err
	}
	log.Info("Ingestion finished", "processed", result.Processed, "skipped", result.Skipped)

	totals, err := reporter.SummarizeBySKU(ctx)
	if err != nil {
		log.Error("Failed to summarize transactions", "error", err)
		return err
	}
	logSummary(log, totals)
	if summaryCSVPath != "" {
		if err := report.WriteSummaryCSV(summaryCSVPath, totals); err != nil {
			log.Error("Failed to write summary CSV", "error", err)
			return err
		}
		log.Info("Wrote per-SKU summary", "path", summaryCSVPath, "rows", len(totals))
	}

	validation, err := reporter.Validate(ctx)
	if err != nil {
		log.Error("Failed to validate stored data", "error", err)
		return err
	}
	log.Info("Validation report",
		"transactions_missing_sku", validation.TransactionsMissingSKU,
		"items_missing_sku", validation.ItemsMissingSKU,
		"duplicate_transactions", validation.DuplicateTransactions,
		"duplicate_items", validation.DuplicateItems,
		"orphan_items", validation.OrphanItems,
	)
	if validationCSVPath != "" {
		if err := report.WriteValidationCSV(validationCSVPath, validation); err != nil {
			log.Error("Failed to write validation CSV", "error", err)
			return err
		}
		log.Info("Wrote validation report", "path", validationCSVPath)
	}

	return nil
}

// logSummary logs the highest-revenue SKUs. The full list can run to
// thousands of rows, so only the top of the ordering is logged; the CSV
// export carries everything.
func logSummary(log *slog.Logger, totals []transaction.SKUTotal) {
	rows := totals
	if len(rows) > summaryLogRows {
		rows = rows[:summaryLogRows]
	}
	for _, row := range rows {
		sku := row.SKU
		if sku == "" {
			sku = "(unresolved)"
		}
		if row.Total != nil {
			log.Info("SKU total", "sku", sku, "total", *row.Total)
		} else {
			log.Info("SKU total", "sku", sku, "total", nil)
		}
	}
	log.Info("Summary computed", "skus", len(totals))
}
