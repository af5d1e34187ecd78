package spapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spapi-finances-pipeline/internal/config"
)

// Mock scenarios: simulated failures ahead of the payload, bounded so the
// run always reaches the records eventually.
const (
	ScenarioSuccessOnly     = "200_only"
	Scenario429TwiceThen200 = "429_twice_then_200"
	Scenario403Then200      = "403_then_200"
)

// MockSource replays transaction records without a live endpoint: from
// numbered page files in a directory, from a single payload file, or from a
// small embedded payload when neither is configured.
type MockSource struct {
	cfg    *config.MockConfig
	logger *slog.Logger

	loaded  bool
	records []json.RawMessage
	pos     int
	calls   int // simulated request attempts, driven by the scenario
}

func NewMockSource(logger *slog.Logger, cfg *config.MockConfig) *MockSource {
	return &MockSource{
		cfg:    cfg,
		logger: logger,
	}
}

func (m *MockSource) Next(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !m.loaded {
		if err := m.load(); err != nil {
			return nil, err
		}
		m.loaded = true
	}

	if m.pos >= len(m.records) {
		return nil, io.EOF
	}

	rec := m.records[m.pos]
	m.pos++
	return rec, nil
}

func (m *MockSource) load() error {
	m.simulateAttempts()

	if m.cfg.Dir != "" {
		return m.loadDir()
	}
	if m.cfg.File != "" {
		return m.loadFile(m.cfg.File)
	}

	m.logger.Info("Using embedded mock payload", "transactions", 2)
	return m.parsePayload([]byte(embeddedMockPayload))
}

// simulateAttempts plays out the configured scenario before any records are
// delivered, mirroring how the live endpoint would fail a bounded number of
// initial attempts before succeeding.
func (m *MockSource) simulateAttempts() {
	for {
		m.calls++
		if m.cfg.Scenario == Scenario429TwiceThen200 && m.calls <= 2 {
			m.logger.Warn("Mock: simulated rate limiting", "attempt", m.calls)
			continue
		}
		if m.cfg.Scenario == Scenario403Then200 && m.calls == 1 {
			m.logger.Warn("Mock: simulated authorization failure, refresh and retry")
			continue
		}
		return
	}
}

func (m *MockSource) loadDir() error {
	for i := 1; ; i++ {
		path := filepath.Join(m.cfg.Dir, fmt.Sprintf("page%d.json", i))
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read mock page %s: %w", path, err)
		}
		if err := m.parsePayload(data); err != nil {
			return fmt.Errorf("failed to parse mock page %s: %w", path, err)
		}
	}
	return nil
}

func (m *MockSource) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read mock file %s: %w", path, err)
	}
	if err := m.parsePayload(data); err != nil {
		return fmt.Errorf("failed to parse mock file %s: %w", path, err)
	}
	return nil
}

func (m *MockSource) parsePayload(data []byte) error {
	var page listResponse
	if err := json.Unmarshal(data, &page); err != nil {
		return err
	}
	m.records = append(m.records, page.Transactions...)
	return nil
}

const embeddedMockPayload = `{
  "transactions": [
    {
      "transactionId": "T-MOCK-001",
      "postedDate": "2025-08-01T10:00:00Z",
      "transactionType": "Charge",
      "transactionStatus": "RELEASED",
      "marketplaceDetails": {"marketplaceId": "ATVPDKIKX0DER", "marketplaceName": "Amazon.com"},
      "totalAmount": {"currencyCode": "USD", "currencyAmount": 19.99},
      "contexts": [{"sku": "SKU-DEMO-1", "asin": "ASINDEMO1"}],
      "items": [
        {
          "description": "Demo Product 1",
          "totalAmount": {"currencyCode": "USD", "currencyAmount": 19.99},
          "contexts": [{"sku": "SKU-DEMO-1", "asin": "ASINDEMO1"}]
        }
      ]
    },
    {
      "transactionId": "T-MOCK-002",
      "postedDate": "2025-08-02T11:30:00Z",
      "transactionType": "Refund",
      "transactionStatus": "RELEASED",
      "marketplaceDetails": {"marketplaceId": "ATVPDKIKX0DER", "marketplaceName": "Amazon.com"},
      "totalAmount": {"currencyCode": "USD", "currencyAmount": -5.00},
      "productContext": {"sku": "SKU-DEMO-2", "asin": "ASINDEMO2"},
      "items": []
    }
  ]
}`
