package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stocktally/stocktally/internal/catalog"
	"github.com/stocktally/stocktally/internal/tabular"
)

func TestDiffRequiresBarcodeColumn(t *testing.T) {
	src := tabular.Source{
		Header: []string{"productName", "retailPrice"},
		Rows:   [][]string{{"Milk", "9.99"}},
	}
	_, err := Diff(src, nil)
	require.ErrorIs(t, err, ErrMissingBarcodeColumn)
}

func TestDiffClassifiesNewProduct(t *testing.T) {
	src := tabular.Source{
		Header: []string{"barcode", "productName", "purchasePrice", "retailPrice", "supplier"},
		Rows:   [][]string{{"P-9", " Oat Milk ", "7,50", "9.99", "Fresh Farm"}},
	}

	result, err := Diff(src, map[string]catalog.SnapshotEntry{})
	require.NoError(t, err)
	require.True(t, result.HasChanges())
	require.Empty(t, result.Updates)
	require.Len(t, result.NewProducts, 1)

	draft := result.NewProducts[0]
	require.Equal(t, "P-9", draft.Barcode)
	require.Equal(t, "Oat Milk", *draft.ProductName)
	require.True(t, draft.PurchasePrice.Equal(decimal.RequireFromString("7.5")))
	require.True(t, draft.RetailPrice.Equal(decimal.RequireFromString("9.99")))
	require.Equal(t, "Fresh Farm", *draft.SupplierName)
	require.Nil(t, draft.ItemNumber)
	require.Nil(t, draft.CategoryName)
}

func TestDiffMergesDuplicatesAndWarns(t *testing.T) {
	snapshot := map[string]catalog.SnapshotEntry{
		"P-1": {Product: catalog.Product{ID: 1, Barcode: "P-1", Name: str("Milk"), StockQuantity: dec(t, "10")}},
	}
	src := tabular.Source{
		Header: []string{"barcode", "productName", "stockQuantity"},
		Rows: [][]string{
			{"P-1", "Milk", "3"},
			{"P-1", "Milk", "2"},
		},
	}

	result, err := Diff(src, snapshot)
	require.NoError(t, err)
	require.Empty(t, result.NewProducts)
	require.Len(t, result.Updates, 1)

	update := result.Updates[0]
	require.Equal(t, []FieldID{FieldStockQuantity}, update.ChangedFields)
	require.True(t, update.Old.StockQuantity.Equal(decimal.RequireFromString("10")))
	require.True(t, update.New.StockQuantity.Equal(decimal.RequireFromString("5")))

	require.Len(t, result.Duplicates, 1)
	require.Equal(t, "P-1", result.Duplicates[0].Barcode)
	require.Equal(t, []int{1, 2}, result.Duplicates[0].RowNumbers)
}

func TestDiffNoChangeEmitsNothing(t *testing.T) {
	snapshot := map[string]catalog.SnapshotEntry{
		"P-1": {
			Product:      catalog.Product{ID: 1, Barcode: "P-1", Name: str("Milk"), RetailPrice: dec(t, "9.99")},
			SupplierName: str("Fresh Farm"),
		},
	}
	// Comma decimals and an explicitly empty second name must read as
	// unchanged against the stored row.
	src := tabular.Source{
		Header: []string{"barcode", "productName", "retailPrice", "supplier", "secondProductName"},
		Rows:   [][]string{{"P-1", "Milk", "9,99", "Fresh Farm", ""}},
	}

	result, err := Diff(src, snapshot)
	require.NoError(t, err)
	require.False(t, result.HasChanges())
	require.Empty(t, result.Updates)
	require.Empty(t, result.Duplicates)
	require.Empty(t, result.RowErrors)
}

func TestDiffToleratesSubEpsilonPriceDrift(t *testing.T) {
	snapshot := map[string]catalog.SnapshotEntry{
		"P-1": {Product: catalog.Product{ID: 1, Barcode: "P-1", RetailPrice: dec(t, "9.99")}},
	}

	drifted := tabular.Source{
		Header: []string{"barcode", "retailPrice"},
		Rows:   [][]string{{"P-1", "9.99005"}},
	}
	result, err := Diff(drifted, snapshot)
	require.NoError(t, err)
	require.False(t, result.HasChanges())

	changed := tabular.Source{
		Header: []string{"barcode", "retailPrice"},
		Rows:   [][]string{{"P-1", "10.99"}},
	}
	result, err = Diff(changed, snapshot)
	require.NoError(t, err)
	require.Len(t, result.Updates, 1)
	require.Equal(t, []FieldID{FieldRetailPrice}, result.Updates[0].ChangedFields)
}

func TestDiffReportsChangedFieldsInCanonicalOrder(t *testing.T) {
	snapshot := map[string]catalog.SnapshotEntry{
		"P-1": {
			Product:      catalog.Product{ID: 1, Barcode: "P-1", Name: str("Old"), PurchasePrice: dec(t, "1.00")},
			SupplierName: str("A"),
		},
	}
	// Column order in the file must not leak into the changed list.
	src := tabular.Source{
		Header: []string{"barcode", "supplier", "purchasePrice", "productName"},
		Rows:   [][]string{{"P-1", "B", "2.00", "New"}},
	}

	result, err := Diff(src, snapshot)
	require.NoError(t, err)
	require.Len(t, result.Updates, 1)
	require.Equal(t,
		[]FieldID{FieldProductName, FieldPurchasePrice, FieldSupplierName},
		result.Updates[0].ChangedFields)
}

func TestDiffOrdersOutputByBarcode(t *testing.T) {
	src := tabular.Source{
		Header: []string{"barcode", "productName"},
		Rows: [][]string{
			{"B-2", "Second"},
			{"A-1", "First"},
			{"C-3", "Third"},
		},
	}

	result, err := Diff(src, map[string]catalog.SnapshotEntry{})
	require.NoError(t, err)
	require.Len(t, result.NewProducts, 3)
	require.Equal(t, "A-1", result.NewProducts[0].Barcode)
	require.Equal(t, "B-2", result.NewProducts[1].Barcode)
	require.Equal(t, "C-3", result.NewProducts[2].Barcode)
}

func TestDiffIsDeterministic(t *testing.T) {
	snapshot := map[string]catalog.SnapshotEntry{
		"P-1": {Product: catalog.Product{ID: 1, Barcode: "P-1", Name: str("Milk"), RetailPrice: dec(t, "9.99")}},
	}
	src := tabular.Source{
		Header: []string{"barcode", "productName", "retailPrice"},
		Rows: [][]string{
			{"P-1", "Whole Milk", "10.99"},
			{"P-2", "Butter", "4.50"},
			{"P-1", "Whole Milk", "10.99"},
		},
	}

	first, err := Diff(src, snapshot)
	require.NoError(t, err)
	second, err := Diff(src, snapshot)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
