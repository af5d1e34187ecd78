// Package transaction holds the canonical projection of an SP-API Finances
// transaction record and the normalization rules that produce it from the
// raw API payload.
package transaction

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidRecord        = errors.New("invalid transaction record")
	ErrMissingTransactionID = errors.New("transaction record has no transactionId")
	ErrMissingPostedDate    = errors.New("transaction record has no postedDate")
)

// Transaction is the header-level projection of one raw transaction record.
// Raw always carries the original record verbatim for audit and replay.
type Transaction struct {
	TransactionID     string
	TransactionType   string
	TransactionStatus string
	PostedDate        time.Time
	MarketplaceID     string
	MarketplaceName   string
	CurrencyCode      string
	CurrencyAmount    *float64
	SKU               *string
	ASIN              *string
	Raw               []byte
	Items             []TransactionItem
}

// TransactionItem is one line item of a transaction, identified by its
// zero-based position in the original record's item list. The index is
// stable across retries of the same fetch, which makes it usable as the
// second half of the item's natural key.
type TransactionItem struct {
	TransactionID  string
	ItemIndex      int
	SKU            *string
	ASIN           *string
	Description    string
	CurrencyCode   string
	CurrencyAmount *float64
	Raw            []byte
}

// SKUTotal is one row of the per-SKU aggregate summary. Total is nil when
// the underlying amounts were all absent.
type SKUTotal struct {
	SKU   string
	Total *float64
}

// ValidationReport carries the data-quality counts computed over the store
// after ingestion. The duplicate and orphan counts are expected to be zero;
// non-zero values indicate a store-integrity violation.
type ValidationReport struct {
	TransactionsMissingSKU int64
	ItemsMissingSKU        int64
	DuplicateTransactions  int64
	DuplicateItems         int64
	OrphanItems            int64
}
