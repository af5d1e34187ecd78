package transaction

import (
	"encoding/json"
	"fmt"
	"time"
)

// Raw payload shapes as delivered by the Finances listing endpoint. Item
// payloads are kept as raw JSON so each item can be stored verbatim.
type rawAmount struct {
	CurrencyCode   string   `json:"currencyCode"`
	CurrencyAmount *float64 `json:"currencyAmount"`
}

type rawContext struct {
	SKU  string `json:"sku"`
	ASIN string `json:"asin"`
}

type rawMarketplace struct {
	MarketplaceID   string `json:"marketplaceId"`
	MarketplaceName string `json:"marketplaceName"`
}

type rawTransaction struct {
	TransactionID      string            `json:"transactionId"`
	TransactionType    string            `json:"transactionType"`
	TransactionStatus  string            `json:"transactionStatus"`
	PostedDate         string            `json:"postedDate"`
	MarketplaceDetails *rawMarketplace   `json:"marketplaceDetails"`
	TotalAmount        *rawAmount        `json:"totalAmount"`
	Contexts           []rawContext      `json:"contexts"`
	ProductContext     *rawContext       `json:"productContext"`
	Items              []json.RawMessage `json:"items"`
}

type rawItem struct {
	Description string       `json:"description"`
	TotalAmount *rawAmount   `json:"totalAmount"`
	Contexts    []rawContext `json:"contexts"`
}

// Normalize projects one raw transaction record into its canonical form.
// It is a pure function: no I/O, no mutation of the input. Records missing
// the natural key or posted date come back as an error wrapping
// ErrInvalidRecord so the caller can skip them without aborting the run.
func Normalize(raw json.RawMessage) (*Transaction, error) {
	var rec rawTransaction
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	if rec.TransactionID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, ErrMissingTransactionID)
	}
	if rec.PostedDate == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, ErrMissingPostedDate)
	}
	posted, err := time.Parse(time.RFC3339, rec.PostedDate)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable postedDate %q", ErrInvalidRecord, rec.PostedDate)
	}

	tx := &Transaction{
		TransactionID:     rec.TransactionID,
		TransactionType:   rec.TransactionType,
		TransactionStatus: rec.TransactionStatus,
		PostedDate:        posted,
		Raw:               append([]byte(nil), raw...),
	}
	if rec.MarketplaceDetails != nil {
		tx.MarketplaceID = rec.MarketplaceDetails.MarketplaceID
		tx.MarketplaceName = rec.MarketplaceDetails.MarketplaceName
	}
	if rec.TotalAmount != nil {
		tx.CurrencyCode = rec.TotalAmount.CurrencyCode
		tx.CurrencyAmount = rec.TotalAmount.CurrencyAmount
	}
	tx.SKU, tx.ASIN = resolveSKUASIN(rec.Contexts, rec.ProductContext)

	for idx, rawIt := range rec.Items {
		item, err := normalizeItem(rec.TransactionID, idx, rawIt)
		if err != nil {
			return nil, err
		}
		tx.Items = append(tx.Items, *item)
	}

	return tx, nil
}

func normalizeItem(txID string, idx int, raw json.RawMessage) (*TransactionItem, error) {
	var rec rawItem
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidRecord, idx, err)
	}

	item := &TransactionItem{
		TransactionID: txID,
		ItemIndex:     idx,
		Description:   rec.Description,
		Raw:           append([]byte(nil), raw...),
	}
	if rec.TotalAmount != nil {
		item.CurrencyCode = rec.TotalAmount.CurrencyCode
		item.CurrencyAmount = rec.TotalAmount.CurrencyAmount
	}
	item.SKU, item.ASIN = resolveSKUASIN(rec.Contexts, nil)

	return item, nil
}

// resolveSKUASIN applies the resolution policy: the first context entry with
// either field non-empty wins; the top-level product context is a fallback
// (header level only); otherwise both stay unresolved.
func resolveSKUASIN(contexts []rawContext, product *rawContext) (*string, *string) {
	for _, ctx := range contexts {
		if ctx.SKU != "" || ctx.ASIN != "" {
			return optional(ctx.SKU), optional(ctx.ASIN)
		}
	}
	if product != nil && (product.SKU != "" || product.ASIN != "") {
		return optional(product.SKU), optional(product.ASIN)
	}
	return nil, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
