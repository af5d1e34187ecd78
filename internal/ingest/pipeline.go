// Package ingest drives the sequential fetch, normalize, upsert loop. One
// record is in flight at a time; the source's pagination is paced entirely
// by this consumer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spapi-finances-pipeline/internal/domain/transaction"
	"github.com/spapi-finances-pipeline/internal/platform/persistence"
	"github.com/spapi-finances-pipeline/internal/spapi"
)

// Pipeline pulls raw records from a source and persists them one at a time
type Pipeline struct {
	source spapi.Source
	repo   transaction.Repository
	store  Reconnector
	limit  int // Stop pulling after this many records; 0 means unlimited
	logger *slog.Logger
}

// Result summarizes one ingestion run. Skipped counts records rejected by
// the normalizer; they are included in Processed.
type Result struct {
	Processed int
	Skipped   int
}

func NewPipeline(logger *slog.Logger, source spapi.Source, repo transaction.Repository, store Reconnector, limit int) *Pipeline {
	return &Pipeline{
		source: source,
		repo:   repo,
		store:  store,
		limit:  limit,
		logger: logger,
	}
}

// Run drains the source. Invalid records are logged and skipped without
// affecting the outcome; source errors and unrecoverable persistence
// failures abort the run with the records processed so far already durable.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	for {
		if p.limit > 0 && result.Processed >= p.limit {
			p.logger.Info("Record limit reached, stopping early", "limit", p.limit)
			break
		}

		raw, err := p.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("record source failed: %w", err)
		}
		result.Processed++

		tx, err := transaction.Normalize(raw)
		if err != nil {
			if errors.Is(err, transaction.ErrInvalidRecord) {
				p.logger.Warn("Skipping invalid transaction record", "error", err)
				result.Skipped++
				continue
			}
			return result, err
		}

		if err := p.upsertWithReplay(ctx, tx); err != nil {
			return result, err
		}
	}

	p.logger.Info("Ingestion completed",
		"processed", result.Processed,
		"skipped", result.Skipped,
	)
	return result, nil
}

// upsertWithReplay persists one transaction, tolerating a single connection
// loss: reconnect once and re-issue the same upsert from scratch. The
// conflict-ignore protocol makes the replay safe; a second consecutive
// failure is unrecoverable.
func (p *Pipeline) upsertWithReplay(ctx context.Context, tx *transaction.Transaction) error {
	err := p.repo.Upsert(ctx, tx)
	if err == nil {
		return nil
	}
	if !persistence.IsConnectionLoss(err) {
		return err
	}

	p.logger.Warn("Lost connection to Postgres, reconnecting",
		"transaction_id", tx.TransactionID,
		"error", err,
	)
	if rerr := p.store.Reconnect(ctx); rerr != nil {
		return fmt.Errorf("failed to reconnect after connection loss: %w", rerr)
	}

	if err := p.repo.Upsert(ctx, tx); err != nil {
		return fmt.Errorf("upsert replay after reconnect failed: %w", err)
	}
	return nil
}
