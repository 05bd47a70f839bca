package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocktally/stocktally/internal/catalog"
)

// TxRunner is the slice of the catalog repository the applier needs.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error
}

// ApplySummary reports what one apply committed.
type ApplySummary struct {
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	PriceEntries int `json:"priceEntries"`
}

// Applier writes a reviewed result to the catalog. Everything happens
// in a single transaction so a partially applied import can never be
// observed.
type Applier struct {
	repo TxRunner
}

// NewApplier constructs Applier.
func NewApplier(repo TxRunner) *Applier {
	return &Applier{repo: repo}
}

// Apply commits every new product and every update draft of a result.
// Updates re-fetch the live product by barcode inside the transaction;
// the diff-time snapshot is never written back, so only the changed
// fields of possibly stale drafts land on the current row.
func (a *Applier) Apply(ctx context.Context, result Result) (ApplySummary, error) {
	var summary ApplySummary
	err := a.repo.WithTx(ctx, func(ctx context.Context, tx catalog.TxRepository) error {
		for _, draft := range result.NewProducts {
			if err := applyNew(ctx, tx, draft, &summary); err != nil {
				return fmt.Errorf("create %s: %w", draft.Barcode, err)
			}
		}
		for _, update := range result.Updates {
			if err := applyUpdate(ctx, tx, update, &summary); err != nil {
				return fmt.Errorf("update %s: %w", update.New.Barcode, err)
			}
		}
		return nil
	})
	if err != nil {
		return ApplySummary{}, err
	}
	return summary, nil
}

func applyNew(ctx context.Context, tx catalog.TxRepository, draft ProductDraft, summary *ApplySummary) error {
	product := catalog.Product{
		Barcode:       draft.Barcode,
		ItemNumber:    draft.ItemNumber,
		Name:          draft.ProductName,
		SecondName:    draft.SecondProductName,
		PurchasePrice: draft.PurchasePrice,
		RetailPrice:   draft.RetailPrice,
		StockQuantity: draft.StockQuantity,
	}
	if err := resolveSupplier(ctx, tx, &product, draft.SupplierName); err != nil {
		return err
	}
	if err := resolveCategory(ctx, tx, &product, draft.CategoryName); err != nil {
		return err
	}

	created, err := tx.InsertProduct(ctx, product)
	if err != nil {
		return err
	}
	summary.Created++

	// Initial prices of a new record are history too, when present.
	if err := logPriceEntry(ctx, tx, created.ID, catalog.PricePurchase, nil, draft.PurchasePrice, summary); err != nil {
		return err
	}
	return logPriceEntry(ctx, tx, created.ID, catalog.PriceRetail, nil, draft.RetailPrice, summary)
}

func applyUpdate(ctx context.Context, tx catalog.TxRepository, update UpdateDraft, summary *ApplySummary) error {
	product, err := tx.GetProductByBarcode(ctx, update.New.Barcode)
	if err != nil {
		return err
	}

	oldPurchase := product.PurchasePrice
	oldRetail := product.RetailPrice

	for _, field := range update.ChangedFields {
		if err := setField(ctx, tx, &product, field, update.New); err != nil {
			return err
		}
	}
	if err := tx.SaveProduct(ctx, product); err != nil {
		return err
	}
	summary.Updated++

	if err := logPriceEntry(ctx, tx, product.ID, catalog.PricePurchase, oldPurchase, product.PurchasePrice, summary); err != nil {
		return err
	}
	return logPriceEntry(ctx, tx, product.ID, catalog.PriceRetail, oldRetail, product.RetailPrice, summary)
}

// setField copies one changed field from the draft onto the live
// product. Unchanged fields are never touched, which is what makes
// applying an older draft safe.
func setField(ctx context.Context, tx catalog.TxRepository, product *catalog.Product, field FieldID, draft ProductDraft) error {
	switch field {
	case FieldItemNumber:
		product.ItemNumber = draft.ItemNumber
	case FieldProductName:
		product.Name = draft.ProductName
	case FieldSecondProductName:
		product.SecondName = draft.SecondProductName
	case FieldPurchasePrice:
		product.PurchasePrice = draft.PurchasePrice
	case FieldRetailPrice:
		product.RetailPrice = draft.RetailPrice
	case FieldStockQuantity:
		product.StockQuantity = draft.StockQuantity
	case FieldSupplierName:
		return resolveSupplier(ctx, tx, product, draft.SupplierName)
	case FieldCategoryName:
		return resolveCategory(ctx, tx, product, draft.CategoryName)
	}
	return nil
}

// resolveSupplier turns a supplier name into a reference. A missing or
// empty name clears it; find-or-create signals that case by returning a
// transient entity with no id.
func resolveSupplier(ctx context.Context, tx catalog.TxRepository, product *catalog.Product, name *string) error {
	value := ""
	if name != nil {
		value = *name
	}
	supplier, err := tx.FindOrCreateSupplier(ctx, value)
	if err != nil {
		return err
	}
	product.SupplierID = nil
	if supplier.ID != 0 {
		product.SupplierID = &supplier.ID
	}
	return nil
}

func resolveCategory(ctx context.Context, tx catalog.TxRepository, product *catalog.Product, name *string) error {
	value := ""
	if name != nil {
		value = *name
	}
	category, err := tx.FindOrCreateCategory(ctx, value)
	if err != nil {
		return err
	}
	product.CategoryID = nil
	if category.ID != 0 {
		product.CategoryID = &category.ID
	}
	return nil
}

// logPriceEntry appends one history row when the new value is present
// and differs from the old one under the numeric comparison rule.
func logPriceEntry(ctx context.Context, tx catalog.TxRepository, productID int64, kind catalog.PriceKind, old, next *decimal.Decimal, summary *ApplySummary) error {
	if next == nil || DecimalsEqual(old, next) {
		return nil
	}
	err := tx.InsertPriceHistory(ctx, catalog.PriceHistory{
		ID:        uuid.New(),
		ProductID: productID,
		Kind:      kind,
		Price:     *next,
		Source:    catalog.SourceImportExcel,
	})
	if err != nil {
		return err
	}
	summary.PriceEntries++
	return nil
}
