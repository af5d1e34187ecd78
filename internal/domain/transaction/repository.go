package transaction

import "context"

// Repository persists normalized transactions with conflict-ignore
// semantics on the natural keys at both levels.
type Repository interface {
	// Upsert inserts the header and its items. Re-issuing the same upsert
	// is a no-op at both levels, so it is safe under at-least-once delivery.
	Upsert(ctx context.Context, tx *Transaction) error
}

// Reporter reads aggregate and data-quality views from the store after
// ingestion has completed.
type Reporter interface {
	SummarizeBySKU(ctx context.Context) ([]SKUTotal, error)
	Validate(ctx context.Context) (*ValidationReport, error)
}
