package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	products   map[int64]Product
	suppliers  map[string]Supplier
	categories map[string]Category
	history    []PriceHistory
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:   make(map[int64]Product),
		suppliers:  make(map[string]Supplier),
		categories: make(map[string]Category),
	}
}

func (r *memoryRepo) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	items := []Product{}
	for _, p := range r.products {
		items = append(items, p)
	}
	return items, len(items), nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetProductByBarcode(ctx context.Context, barcode string) (Product, error) {
	for _, p := range r.products {
		if p.Barcode == barcode {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

func (r *memoryRepo) InsertProduct(ctx context.Context, p Product) (Product, error) {
	for _, existing := range r.products {
		if existing.Barcode == p.Barcode {
			return Product{}, ErrDuplicateBarcode
		}
	}
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) SaveProduct(ctx context.Context, p Product) error {
	if _, ok := r.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	r.products[p.ID] = p
	return nil
}

func (r *memoryRepo) DeleteProduct(ctx context.Context, id int64) error {
	if _, ok := r.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *memoryRepo) FindOrCreateSupplier(ctx context.Context, name string) (Supplier, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Supplier{}, nil
	}
	if s, ok := r.suppliers[trimmed]; ok {
		return s, nil
	}
	r.nextID++
	s := Supplier{ID: r.nextID, Name: trimmed}
	r.suppliers[trimmed] = s
	return s, nil
}

func (r *memoryRepo) FindOrCreateCategory(ctx context.Context, name string) (Category, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Category{}, nil
	}
	if c, ok := r.categories[trimmed]; ok {
		return c, nil
	}
	r.nextID++
	c := Category{ID: r.nextID, Name: trimmed}
	r.categories[trimmed] = c
	return c, nil
}

func (r *memoryRepo) InsertPriceHistory(ctx context.Context, h PriceHistory) error {
	r.history = append(r.history, h)
	return nil
}

func (r *memoryRepo) ListPriceHistory(ctx context.Context, productID int64) ([]PriceHistory, error) {
	entries := []PriceHistory{}
	for _, h := range r.history {
		if h.ProductID == productID {
			entries = append(entries, h)
		}
	}
	return entries, nil
}

func (r *memoryRepo) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	items := []Supplier{}
	for _, s := range r.suppliers {
		items = append(items, s)
	}
	return items, nil
}

func (r *memoryRepo) ListCategories(ctx context.Context) ([]Category, error) {
	items := []Category{}
	for _, c := range r.categories {
		items = append(items, c)
	}
	return items, nil
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func str(s string) *string {
	return &s
}

func TestCreateLogsInitialPrices(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, ProductInput{
		Barcode:       " B100 ",
		Name:          str("Widget"),
		PurchasePrice: dec("10"),
		RetailPrice:   dec("14.50"),
		SupplierName:  str("Acme"),
	})
	require.NoError(t, err)
	require.Equal(t, "B100", created.Barcode)
	require.NotNil(t, created.SupplierID)
	require.Len(t, repo.history, 2)
	for _, h := range repo.history {
		require.Equal(t, SourceManual, h.Source)
		require.Equal(t, created.ID, h.ProductID)
	}
}

func TestCreateWithoutPricesLogsNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), ProductInput{Barcode: "B101"})
	require.NoError(t, err)
	require.Empty(t, repo.history)
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, ProductInput{Barcode: "   "})
	require.ErrorIs(t, err, ErrBarcodeRequired)

	neg := decimal.RequireFromString("-1")
	_, err = svc.Create(ctx, ProductInput{Barcode: "B1", RetailPrice: &neg})
	require.ErrorIs(t, err, ErrNegativePrice)

	_, err = svc.Create(ctx, ProductInput{Barcode: "B1", StockQuantity: &neg})
	require.ErrorIs(t, err, ErrNegativeStock)
}

func TestUpdateLogsHistoryOnlyWhenPriceChanges(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, ProductInput{Barcode: "B200", RetailPrice: dec("9.99")})
	require.NoError(t, err)
	require.Len(t, repo.history, 1)

	// Same value: no new entry.
	_, err = svc.Update(ctx, created.ID, ProductInput{Barcode: "B200", RetailPrice: dec("9.99")})
	require.NoError(t, err)
	require.Len(t, repo.history, 1)

	_, err = svc.Update(ctx, created.ID, ProductInput{Barcode: "B200", RetailPrice: dec("10.99")})
	require.NoError(t, err)
	require.Len(t, repo.history, 2)
	last := repo.history[len(repo.history)-1]
	require.Equal(t, PriceRetail, last.Kind)
	require.True(t, last.Price.Equal(decimal.RequireFromString("10.99")))
}

func TestUpdateClearsReferencesOnBlankNames(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, ProductInput{Barcode: "B300", SupplierName: str("Acme"), CategoryName: str("Tools")})
	require.NoError(t, err)
	require.NotNil(t, created.SupplierID)
	require.NotNil(t, created.CategoryID)

	updated, err := svc.Update(ctx, created.ID, ProductInput{Barcode: "B300", SupplierName: str("  "), CategoryName: nil})
	require.NoError(t, err)
	require.Nil(t, updated.SupplierID)
	require.Nil(t, updated.CategoryID)
}

func TestDeleteMissingProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	err := svc.Delete(context.Background(), 42)
	require.ErrorIs(t, err, ErrProductNotFound)
}
