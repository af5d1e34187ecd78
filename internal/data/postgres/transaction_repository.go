// Package postgres provides PostgreSQL implementations of the domain
// repositories. Inserts resolve natural-key conflicts as no-ops, which is
// what makes retried pages and replayed upserts safe.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spapi-finances-pipeline/internal/domain/transaction"
	"github.com/spapi-finances-pipeline/internal/platform/persistence"
)

// TransactionRepository implements the transaction.Repository interface for
// PostgreSQL
type TransactionRepository struct {
	db      *persistence.PostgresDB
	querier persistence.DB // Overrides db.Pool() when set; used by tests
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
// The repository resolves its connection through db on every call, so a
// Reconnect on db is picked up transparently.
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *TransactionRepository) conn() persistence.DB {
	if r.querier != nil {
		return r.querier
	}
	return r.db.Pool()
}

// Upsert persists one normalized transaction. The header insert is its own
// unit of work and is committed before any item insert runs: a crash between
// the two leaves a valid header with zero items, which the aggregate's
// fallback rule already accounts for. Both levels conflict-ignore on their
// natural key, so re-issuing the whole upsert after a reconnect is a no-op
// for everything already persisted.
func (r *TransactionRepository) Upsert(ctx context.Context, tx *transaction.Transaction) error {
	// The normalizer rejects these upstream; tolerate them here anyway
	if tx.TransactionID == "" || tx.PostedDate.IsZero() {
		r.logger.Warn("Skipping transaction without transactionId/postedDate")
		return nil
	}

	if err := r.insertHeader(ctx, tx); err != nil {
		return err
	}

	if len(tx.Items) == 0 {
		return nil
	}
	return r.insertItems(ctx, tx)
}

func (r *TransactionRepository) insertHeader(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		INSERT INTO sp_transactions
			(transaction_id, transaction_type, transaction_status, posted_date,
			 marketplace_id, marketplace_name, currency_code, currency_amount,
			 sku, asin, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	_, err := r.conn().Exec(ctx, query,
		tx.TransactionID,
		tx.TransactionType,
		tx.TransactionStatus,
		tx.PostedDate,
		tx.MarketplaceID,
		tx.MarketplaceName,
		tx.CurrencyCode,
		tx.CurrencyAmount,
		tx.SKU,
		tx.ASIN,
		tx.Raw,
	)
	if err != nil {
		r.logger.Error("Failed to insert transaction header", "transaction_id", tx.TransactionID, "error", err)
		return fmt.Errorf("failed to insert transaction header: %w", err)
	}

	return nil
}

// insertItems writes all items in one transaction, committed after the
// header is already durable.
func (r *TransactionRepository) insertItems(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		INSERT INTO sp_transaction_items
			(transaction_id, item_index, sku, asin, item_description,
			 currency_code, currency_amount, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id, item_index) DO NOTHING
	`

	dbTx, err := r.conn().Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin items transaction", "transaction_id", tx.TransactionID, "error", err)
		return fmt.Errorf("failed to begin items transaction: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback(ctx) // No-op after commit
	}()

	for _, item := range tx.Items {
		_, err := dbTx.Exec(ctx, query,
			item.TransactionID,
			item.ItemIndex,
			item.SKU,
			item.ASIN,
			item.Description,
			item.CurrencyCode,
			item.CurrencyAmount,
			item.Raw,
		)
		if err != nil {
			r.logger.Error("Failed to insert transaction item",
				"transaction_id", item.TransactionID,
				"item_index", item.ItemIndex,
				"error", err,
			)
			return fmt.Errorf("failed to insert transaction item %d: %w", item.ItemIndex, err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit transaction items", "transaction_id", tx.TransactionID, "error", err)
		return fmt.Errorf("failed to commit transaction items: %w", err)
	}

	return nil
}
