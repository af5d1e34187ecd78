// Package report writes the aggregate summary and validation report as
// two-column CSV files.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spapi-finances-pipeline/internal/domain/transaction"
)

// WriteSummaryCSV writes the per-SKU totals as `sku,total_amount` rows.
// Rows keep the store's ordering (total descending, unresolved last).
func WriteSummaryCSV(path string, totals []transaction.SKUTotal) error {
	return writeCSV(path, [][]string{{"sku", "total_amount"}}, func(w *csv.Writer) error {
		for _, row := range totals {
			if err := w.Write([]string{row.SKU, formatAmount(row.Total)}); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteValidationCSV writes the integrity counts as `metric,value` rows,
// one per metric, in a fixed order.
func WriteValidationCSV(path string, report *transaction.ValidationReport) error {
	rows := []struct {
		metric string
		value  int64
	}{
		{"transactions_missing_sku", report.TransactionsMissingSKU},
		{"items_missing_sku", report.ItemsMissingSKU},
		{"duplicate_transactions", report.DuplicateTransactions},
		{"duplicate_items", report.DuplicateItems},
		{"orphan_items", report.OrphanItems},
	}

	return writeCSV(path, [][]string{{"metric", "value"}}, func(w *csv.Writer) error {
		for _, row := range rows {
			if err := w.Write([]string{row.metric, strconv.FormatInt(row.value, 10)}); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSV(path string, header [][]string, body func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, row := range header {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := body(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}

// formatAmount renders a summed amount with at least one decimal place, so
// whole-number totals come out as "30.0" rather than "30". An absent total
// renders as an empty cell.
func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
