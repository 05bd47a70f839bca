// Package catalog owns the product catalog: products keyed by barcode,
// their supplier and category references, and the append-only price
// history written whenever a price value changes.
package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is one catalog record. The barcode is the natural key; every
// other attribute is optional. Absent values stay nil so "no value"
// survives round trips through imports and manual edits.
type Product struct {
	ID            int64            `json:"id"`
	Barcode       string           `json:"barcode"`
	ItemNumber    *string          `json:"item_number"`
	Name          *string          `json:"name"`
	SecondName    *string          `json:"second_name"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	RetailPrice   *decimal.Decimal `json:"retail_price"`
	StockQuantity *decimal.Decimal `json:"stock_quantity"`
	SupplierID    *int64           `json:"supplier_id"`
	CategoryID    *int64           `json:"category_id"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Supplier is a named reference entity created lazily by imports.
type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Category is a named reference entity created lazily by imports.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PriceKind discriminates price history entries.
type PriceKind string

const (
	PricePurchase PriceKind = "purchase"
	PriceRetail   PriceKind = "retail"
)

// Source tags recorded on price history entries.
const (
	SourceImportExcel   = "IMPORT_EXCEL"
	SourceInventorySync = "INVENTORY_SYNC"
	SourceManual        = "MANUAL"
)

// PriceHistory is an immutable fact recording one price change.
type PriceHistory struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   int64           `json:"product_id"`
	Kind        PriceKind       `json:"kind"`
	Price       decimal.Decimal `json:"price"`
	EffectiveAt time.Time       `json:"effective_at"`
	Source      string          `json:"source"`
	Note        *string         `json:"note"`
}

// SnapshotEntry pairs a product with its resolved reference names, as
// loaded once at the start of a reconciliation run.
type SnapshotEntry struct {
	Product      Product
	SupplierName *string
	CategoryName *string
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search  string
	Barcode string
	Page    int
	PerPage int
}
