package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spapi-finances-pipeline/internal/domain/transaction"
	"github.com/spapi-finances-pipeline/internal/platform/persistence"
)

// ReportRepository implements transaction.Reporter for PostgreSQL. It only
// reads; both queries run after ingestion has completed.
type ReportRepository struct {
	db      *persistence.PostgresDB
	querier persistence.DB // Overrides db.Pool() when set; used by tests
	logger  *slog.Logger
}

// NewReportRepository creates a new PostgreSQL report repository
func NewReportRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Reporter {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ReportRepository) conn() persistence.DB {
	if r.querier != nil {
		return r.querier
	}
	return r.db.Pool()
}

// SummarizeBySKU sums signed amounts per resolved SKU. Item rows always
// contribute; a header row contributes only when its transaction has no
// items, so a transaction never counts twice.
func (r *ReportRepository) SummarizeBySKU(ctx context.Context) ([]transaction.SKUTotal, error) {
	query := `
		SELECT sku, SUM(currency_amount)::float8 AS total_amount
		FROM (
			SELECT sku, currency_amount
			FROM sp_transaction_items
			WHERE sku IS NOT NULL
			UNION ALL
			SELECT sku, currency_amount
			FROM sp_transactions
			WHERE sku IS NOT NULL
			  AND NOT EXISTS (
				SELECT 1 FROM sp_transaction_items ti
				WHERE ti.transaction_id = sp_transactions.transaction_id
			  )
		) t
		GROUP BY sku
		ORDER BY total_amount DESC NULLS LAST
	`

	rows, err := r.conn().Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to summarize by SKU", "error", err)
		return nil, fmt.Errorf("failed to summarize by sku: %w", err)
	}
	defer rows.Close()

	var totals []transaction.SKUTotal
	for rows.Next() {
		var row transaction.SKUTotal
		if err := rows.Scan(&row.SKU, &row.Total); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		totals = append(totals, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read summary rows: %w", err)
	}

	return totals, nil
}

// Validate computes the data-quality counts over the persisted state. The
// duplicate and orphan counts assert invariants the schema already enforces
// through unique constraints and the FK cascade, so anything non-zero means
// the store itself is compromised.
func (r *ReportRepository) Validate(ctx context.Context) (*transaction.ValidationReport, error) {
	report := &transaction.ValidationReport{}

	counts := []struct {
		name  string
		query string
		dest  *int64
	}{
		{
			name:  "transactions_missing_sku",
			query: `SELECT COUNT(*) FROM sp_transactions WHERE sku IS NULL`,
			dest:  &report.TransactionsMissingSKU,
		},
		{
			name:  "items_missing_sku",
			query: `SELECT COUNT(*) FROM sp_transaction_items WHERE sku IS NULL`,
			dest:  &report.ItemsMissingSKU,
		},
		{
			name: "duplicate_transactions",
			query: `
				SELECT COUNT(*) FROM (
					SELECT transaction_id
					FROM sp_transactions
					GROUP BY transaction_id
					HAVING COUNT(*) > 1
				) s`,
			dest: &report.DuplicateTransactions,
		},
		{
			name: "duplicate_items",
			query: `
				SELECT COUNT(*) FROM (
					SELECT transaction_id, item_index
					FROM sp_transaction_items
					GROUP BY transaction_id, item_index
					HAVING COUNT(*) > 1
				) s`,
			dest: &report.DuplicateItems,
		},
		{
			name: "orphan_items",
			query: `
				SELECT COUNT(*)
				FROM sp_transaction_items i
				LEFT JOIN sp_transactions t
					   ON t.transaction_id = i.transaction_id
				WHERE t.transaction_id IS NULL`,
			dest: &report.OrphanItems,
		},
	}

	for _, c := range counts {
		if err := r.conn().QueryRow(ctx, c.query).Scan(c.dest); err != nil {
			r.logger.Error("Failed to compute validation metric", "metric", c.name, "error", err)
			return nil, fmt.Errorf("failed to compute %s: %w", c.name, err)
		}
	}

	return report, nil
}
