package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stocktally/stocktally/internal/tabular"
)

// PendingRow accumulates every input row that shares one barcode.
// Scalar fields are last write wins; the quantity contribution is
// summed across rows.
type PendingRow struct {
	LastRow     map[string]string
	RowNumbers  []int
	QuantitySum decimal.Decimal
}

// groupRows folds the data rows of a source into one PendingRow per
// barcode. Row numbers are 1-based and exclude the header. Rows with no
// barcode become row errors and contribute nothing else.
func groupRows(src tabular.Source) (map[string]*PendingRow, []RowError) {
	pending := make(map[string]*PendingRow)
	var rowErrors []RowError

	for i, cells := range src.Rows {
		rowNumber := i + 1
		row := rowToMap(src.Header, cells)
		barcode := row[colBarcode]
		if barcode == "" {
			rowErrors = append(rowErrors, RowError{
				RowNumber: rowNumber,
				Reason:    "missing barcode",
				Row:       row,
			})
			continue
		}

		contribution := quantityContribution(row)
		if group, ok := pending[barcode]; ok {
			group.LastRow = row
			group.RowNumbers = append(group.RowNumbers, rowNumber)
			group.QuantitySum = group.QuantitySum.Add(contribution)
			continue
		}
		pending[barcode] = &PendingRow{
			LastRow:     row,
			RowNumbers:  []int{rowNumber},
			QuantitySum: contribution,
		}
	}

	// A positive sum replaces the last row's quantity cell so repeated
	// delivery lines add up. A zero sum leaves the cell alone, which
	// keeps an explicitly entered zero (or blank) exactly as typed.
	for _, group := range pending {
		if group.QuantitySum.IsPositive() {
			group.LastRow[colStockQuantity] = group.QuantitySum.String()
		}
	}

	return pending, rowErrors
}

// rowToMap zips a row into header keyed cells. Short rows pad with
// empty strings; every cell is trimmed once here so downstream code
// never re-trims.
func rowToMap(header []string, cells []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, name := range header {
		value := ""
		if i < len(cells) {
			value = cells[i]
		}
		row[name] = strings.TrimSpace(value)
	}
	return row
}

// quantityValue returns the raw quantity cell, preferring the
// stockQuantity column and falling back to quantity when that column
// does not exist.
func quantityValue(row map[string]string) string {
	if value, ok := row[colStockQuantity]; ok {
		return value
	}
	return row[colQuantity]
}

// quantityContribution parses a row's quantity for summing. Rows with
// no parseable quantity contribute zero.
func quantityContribution(row map[string]string) decimal.Decimal {
	if d := ParseDecimal(quantityValue(row)); d != nil {
		return *d
	}
	return decimal.Zero
}
