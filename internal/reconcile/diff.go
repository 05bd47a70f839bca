package reconcile

import (
	"errors"
	"sort"

	"github.com/stocktally/stocktally/internal/catalog"
	"github.com/stocktally/stocktally/internal/tabular"
)

// ErrMissingBarcodeColumn rejects sources whose header has no barcode
// column. Without it every row would be unmatchable, so the run fails
// before any row work happens.
var ErrMissingBarcodeColumn = errors.New("reconcile: source has no barcode column")

// Diff classifies every grouped input row against a catalog snapshot.
// It is a pure computation: the snapshot is read only, nothing is
// written, and the same source and snapshot always produce the same
// result. Output ordering is by barcode so repeated runs line up.
func Diff(src tabular.Source, snapshot map[string]catalog.SnapshotEntry) (Result, error) {
	if !hasColumn(src.Header, colBarcode) {
		return Result{}, ErrMissingBarcodeColumn
	}

	pending, rowErrors := groupRows(src)
	result := Result{RowErrors: rowErrors}

	barcodes := make([]string, 0, len(pending))
	for barcode := range pending {
		barcodes = append(barcodes, barcode)
	}
	sort.Strings(barcodes)

	for _, barcode := range barcodes {
		group := pending[barcode]
		next := draftFromRow(barcode, group.LastRow)

		if entry, ok := snapshot[barcode]; ok {
			old := draftFromProduct(entry)
			if changed := changedFields(old, next); len(changed) > 0 {
				result.Updates = append(result.Updates, UpdateDraft{
					Old:           old,
					New:           next,
					ChangedFields: changed,
				})
			}
		} else {
			result.NewProducts = append(result.NewProducts, next)
		}

		if len(group.RowNumbers) > 1 {
			result.Duplicates = append(result.Duplicates, DuplicateWarning{
				Barcode:    barcode,
				RowNumbers: group.RowNumbers,
			})
		}
	}

	return result, nil
}

func hasColumn(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}
