package transaction

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("FullRecord", func(t *testing.T) {
		raw := json.RawMessage(`{
			"transactionId": "T-100",
			"postedDate": "2025-08-01T10:00:00Z",
			"transactionType": "Charge",
			"transactionStatus": "RELEASED",
			"marketplaceDetails": {"marketplaceId": "ATVPDKIKX0DER", "marketplaceName": "Amazon.com"},
			"totalAmount": {"currencyCode": "USD", "currencyAmount": 19.99},
			"contexts": [{"sku": "SKU-1", "asin": "ASIN1"}],
			"items": [
				{
					"description": "Demo Product",
					"totalAmount": {"currencyCode": "USD", "currencyAmount": 19.99},
					"contexts": [{"sku": "SKU-1", "asin": "ASIN1"}]
				}
			]
		}`)

		tx, err := Normalize(raw)
		require.NoError(t, err)

		assert.Equal(t, "T-100", tx.TransactionID)
		assert.Equal(t, "Charge", tx.TransactionType)
		assert.Equal(t, "RELEASED", tx.TransactionStatus)
		assert.Equal(t, time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC), tx.PostedDate.UTC())
		assert.Equal(t, "ATVPDKIKX0DER", tx.MarketplaceID)
		assert.Equal(t, "Amazon.com", tx.MarketplaceName)
		assert.Equal(t, "USD", tx.CurrencyCode)
		require.NotNil(t, tx.CurrencyAmount)
		assert.InDelta(t, 19.99, *tx.CurrencyAmount, 1e-9)
		require.NotNil(t, tx.SKU)
		assert.Equal(t, "SKU-1", *tx.SKU)
		assert.JSONEq(t, string(raw), string(tx.Raw))

		require.Len(t, tx.Items, 1)
		item := tx.Items[0]
		assert.Equal(t, "T-100", item.TransactionID)
		assert.Equal(t, 0, item.ItemIndex)
		assert.Equal(t, "Demo Product", item.Description)
		require.NotNil(t, item.SKU)
		assert.Equal(t, "SKU-1", *item.SKU)
	})

	t.Run("MissingTransactionID", func(t *testing.T) {
		tx, err := Normalize(json.RawMessage(`{"postedDate": "2025-08-01T10:00:00Z"}`))
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, ErrInvalidRecord)
		assert.ErrorIs(t, err, ErrMissingTransactionID)
	})

	t.Run("MissingPostedDate", func(t *testing.T) {
		tx, err := Normalize(json.RawMessage(`{"transactionId": "T-1"}`))
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, ErrInvalidRecord)
		assert.ErrorIs(t, err, ErrMissingPostedDate)
	})

	t.Run("UnparseablePostedDate", func(t *testing.T) {
		tx, err := Normalize(json.RawMessage(`{"transactionId": "T-1", "postedDate": "yesterday"}`))
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		tx, err := Normalize(json.RawMessage(`{not json`))
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("ItemIndexesFollowListOrder", func(t *testing.T) {
		raw := json.RawMessage(`{
			"transactionId": "T-2",
			"postedDate": "2025-08-01T10:00:00Z",
			"items": [{"description": "a"}, {"description": "b"}, {"description": "c"}]
		}`)

		tx, err := Normalize(raw)
		require.NoError(t, err)
		require.Len(t, tx.Items, 3)
		for i, item := range tx.Items {
			assert.Equal(t, i, item.ItemIndex)
		}
	})
}

func TestResolveSKUASIN(t *testing.T) {
	t.Run("FirstNonEmptyContextWins", func(t *testing.T) {
		raw := json.RawMessage(`{
			"transactionId": "T-3",
			"postedDate": "2025-08-01T10:00:00Z",
			"contexts": [{}, {"sku": "SKU-CTX"}, {"sku": "SKU-LATER"}],
			"productContext": {"sku": "SKU-PRODUCT", "asin": "ASIN-PRODUCT"}
		}`)

		tx, err := Normalize(raw)
		require.NoError(t, err)
		require.NotNil(t, tx.SKU)
		assert.Equal(t, "SKU-CTX", *tx.SKU)
		assert.Nil(t, tx.ASIN, "empty asin on the winning context stays unresolved")
	})

	t.Run("ProductContextFallback", func(t *testing.T) {
		raw := json.RawMessage(`{
			"transactionId": "T-4",
			"postedDate": "2025-08-01T10:00:00Z",
			"contexts": [{}],
			"productContext": {"sku": "SKU-PRODUCT", "asin": "ASIN-PRODUCT"}
		}`)

		tx, err := Normalize(raw)
		require.NoError(t, err)
		require.NotNil(t, tx.SKU)
		assert.Equal(t, "SKU-PRODUCT", *tx.SKU)
		require.NotNil(t, tx.ASIN)
		assert.Equal(t, "ASIN-PRODUCT", *tx.ASIN)
	})

	t.Run("Unresolved", func(t *testing.T) {
		raw := json.RawMessage(`{"transactionId": "T-5", "postedDate": "2025-08-01T10:00:00Z"}`)

		tx, err := Normalize(raw)
		require.NoError(t, err)
		assert.Nil(t, tx.SKU)
		assert.Nil(t, tx.ASIN)
	})

	t.Run("ItemsDoNotSeeProductContext", func(t *testing.T) {
		raw := json.RawMessage(`{
			"transactionId": "T-6",
			"postedDate": "2025-08-01T10:00:00Z",
			"productContext": {"sku": "SKU-PRODUCT"},
			"items": [{"description": "no contexts"}]
		}`)

		tx, err := Normalize(raw)
		require.NoError(t, err)
		require.Len(t, tx.Items, 1)
		assert.Nil(t, tx.Items[0].SKU)
	})
}
