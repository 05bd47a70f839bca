package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/stocktally/stocktally/internal/catalog"
)

// ProductDraft is the store independent form of one logical input row,
// keyed by barcode. Absent cells stay nil so review screens can tell an
// omitted value from an explicit empty one.
type ProductDraft struct {
	Barcode           string           `json:"barcode"`
	ItemNumber        *string          `json:"itemNumber"`
	ProductName       *string          `json:"productName"`
	SecondProductName *string          `json:"secondProductName"`
	PurchasePrice     *decimal.Decimal `json:"purchasePrice"`
	RetailPrice       *decimal.Decimal `json:"retailPrice"`
	StockQuantity     *decimal.Decimal `json:"stockQuantity"`
	SupplierName      *string          `json:"supplierName"`
	CategoryName      *string          `json:"categoryName"`
}

// UpdateDraft pairs the stored state of a product with the incoming
// draft and the ordered list of fields that differ.
type UpdateDraft struct {
	Old           ProductDraft `json:"old"`
	New           ProductDraft `json:"new"`
	ChangedFields []FieldID    `json:"changedFields"`
}

// DuplicateWarning flags a barcode that appeared on more than one input
// row. Duplicates are merged, never rejected; the warning is advisory.
type DuplicateWarning struct {
	Barcode    string `json:"barcode"`
	RowNumbers []int  `json:"rowNumbers"`
}

// RowError reports one row that could not be classified. The raw cells
// ride along so the reviewer can see what was skipped.
type RowError struct {
	RowNumber int               `json:"rowNumber"`
	Reason    string            `json:"reason"`
	Row       map[string]string `json:"row"`
}

// Result is the complete outcome of diffing one import against the
// catalog. It is held for review and later fed verbatim to the applier.
type Result struct {
	NewProducts []ProductDraft     `json:"newProducts"`
	Updates     []UpdateDraft      `json:"updates"`
	Duplicates  []DuplicateWarning `json:"duplicates"`
	RowErrors   []RowError         `json:"rowErrors"`
}

// HasChanges reports whether applying the result would touch the
// catalog at all.
func (r Result) HasChanges() bool {
	return len(r.NewProducts) > 0 || len(r.Updates) > 0
}

// Summary condenses the result into the counters persisted on a run.
func (r Result) Summary() ResultSummary {
	return ResultSummary{
		NewProducts: len(r.NewProducts),
		Updates:     len(r.Updates),
		Duplicates:  len(r.Duplicates),
		RowErrors:   len(r.RowErrors),
	}
}

// ResultSummary carries the headline counts of a parsed result.
type ResultSummary struct {
	NewProducts int `json:"newProducts"`
	Updates     int `json:"updates"`
	Duplicates  int `json:"duplicates"`
	RowErrors   int `json:"rowErrors"`
}

// draftFromProduct projects a catalog snapshot entry onto the draft
// shape so stored and incoming state compare field by field.
func draftFromProduct(entry catalog.SnapshotEntry) ProductDraft {
	p := entry.Product
	return ProductDraft{
		Barcode:           p.Barcode,
		ItemNumber:        p.ItemNumber,
		ProductName:       p.Name,
		SecondProductName: p.SecondName,
		PurchasePrice:     p.PurchasePrice,
		RetailPrice:       p.RetailPrice,
		StockQuantity:     p.StockQuantity,
		SupplierName:      entry.SupplierName,
		CategoryName:      entry.CategoryName,
	}
}

// draftFromRow builds the incoming draft from one merged row. The
// supplier and category columns are bare names; quantity accepts either
// header spelling.
func draftFromRow(barcode string, row map[string]string) ProductDraft {
	return ProductDraft{
		Barcode:           barcode,
		ItemNumber:        TrimmedOrAbsent(row[colItemNumber]),
		ProductName:       TrimmedOrAbsent(row[colProductName]),
		SecondProductName: TrimmedOrAbsent(row[colSecondProductName]),
		PurchasePrice:     ParseDecimal(row[colPurchasePrice]),
		RetailPrice:       ParseDecimal(row[colRetailPrice]),
		StockQuantity:     ParseDecimal(quantityValue(row)),
		SupplierName:      TrimmedOrAbsent(row[colSupplier]),
		CategoryName:      TrimmedOrAbsent(row[colCategory]),
	}
}
