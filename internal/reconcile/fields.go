package reconcile

import "github.com/shopspring/decimal"

// FieldID names one comparable field of a product draft. The string
// values double as the JSON keys of ProductDraft, so changed-field
// lists line up with the draft payloads they describe.
type FieldID string

const (
	FieldItemNumber        FieldID = "itemNumber"
	FieldProductName       FieldID = "productName"
	FieldSecondProductName FieldID = "secondProductName"
	FieldPurchasePrice     FieldID = "purchasePrice"
	FieldRetailPrice       FieldID = "retailPrice"
	FieldStockQuantity     FieldID = "stockQuantity"
	FieldSupplierName      FieldID = "supplierName"
	FieldCategoryName      FieldID = "categoryName"
)

// fieldOrder fixes the order changed fields are reported in.
var fieldOrder = []FieldID{
	FieldItemNumber,
	FieldProductName,
	FieldSecondProductName,
	FieldPurchasePrice,
	FieldRetailPrice,
	FieldStockQuantity,
	FieldSupplierName,
	FieldCategoryName,
}

// Column names recognized in import headers. Matching is exact and
// case sensitive. The supplier and category columns carry plain names,
// not references.
const (
	colBarcode           = "barcode"
	colItemNumber        = "itemNumber"
	colProductName       = "productName"
	colSecondProductName = "secondProductName"
	colPurchasePrice     = "purchasePrice"
	colRetailPrice       = "retailPrice"
	colStockQuantity     = "stockQuantity"
	colQuantity          = "quantity"
	colSupplier          = "supplier"
	colCategory          = "category"
)

// fieldComparers maps every field to its equality check. String fields
// treat absent and empty alike; numeric fields go through DecimalsEqual.
var fieldComparers = map[FieldID]func(old, next ProductDraft) bool{
	FieldItemNumber:        stringComparer(func(d ProductDraft) *string { return d.ItemNumber }),
	FieldProductName:       stringComparer(func(d ProductDraft) *string { return d.ProductName }),
	FieldSecondProductName: stringComparer(func(d ProductDraft) *string { return d.SecondProductName }),
	FieldPurchasePrice:     decimalComparer(func(d ProductDraft) *decimal.Decimal { return d.PurchasePrice }),
	FieldRetailPrice:       decimalComparer(func(d ProductDraft) *decimal.Decimal { return d.RetailPrice }),
	FieldStockQuantity:     decimalComparer(func(d ProductDraft) *decimal.Decimal { return d.StockQuantity }),
	FieldSupplierName:      stringComparer(func(d ProductDraft) *string { return d.SupplierName }),
	FieldCategoryName:      stringComparer(func(d ProductDraft) *string { return d.CategoryName }),
}

func stringComparer(value func(ProductDraft) *string) func(ProductDraft, ProductDraft) bool {
	return func(old, next ProductDraft) bool {
		return stringsMatch(value(old), value(next))
	}
}

func decimalComparer(value func(ProductDraft) *decimal.Decimal) func(ProductDraft, ProductDraft) bool {
	return func(old, next ProductDraft) bool {
		return DecimalsEqual(value(old), value(next))
	}
}

// stringsMatch treats a nil string and an empty string as the same
// value, so records created before a column existed do not show up as
// changed.
func stringsMatch(a, b *string) bool {
	av, bv := "", ""
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

// changedFields lists the fields whose values differ between two
// drafts, in canonical order.
func changedFields(old, next ProductDraft) []FieldID {
	var changed []FieldID
	for _, id := range fieldOrder {
		if !fieldComparers[id](old, next) {
			changed = append(changed, id)
		}
	}
	return changed
}
