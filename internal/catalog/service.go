package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocktally/stocktally/internal/shared"
)

// Service errors.
var (
	ErrBarcodeRequired = errors.New("catalog: barcode is required")
	ErrNegativePrice   = errors.New("catalog: price must not be negative")
	ErrNegativeStock   = errors.New("catalog: stock quantity must not be negative")
)

// RepositoryPort lists the persistence operations the service depends on.
type RepositoryPort interface {
	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (Product, error)
	InsertProduct(ctx context.Context, p Product) (Product, error)
	SaveProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id int64) error
	FindOrCreateSupplier(ctx context.Context, name string) (Supplier, error)
	FindOrCreateCategory(ctx context.Context, name string) (Category, error)
	InsertPriceHistory(ctx context.Context, h PriceHistory) error
	ListPriceHistory(ctx context.Context, productID int64) ([]PriceHistory, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// AuditPort records catalog mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements manual catalog maintenance. Import and sync paths
// have their own services and use the repository directly.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// ProductInput carries the editable fields of a product. Supplier and
// category arrive as names and resolve through find-or-create.
type ProductInput struct {
	Barcode       string
	ItemNumber    *string
	Name          *string
	SecondName    *string
	PurchasePrice *decimal.Decimal
	RetailPrice   *decimal.Decimal
	StockQuantity *decimal.Decimal
	SupplierName  *string
	CategoryName  *string
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Barcode) == "" {
		return ErrBarcodeRequired
	}
	for _, price := range []*decimal.Decimal{in.PurchasePrice, in.RetailPrice} {
		if price != nil && price.IsNegative() {
			return ErrNegativePrice
		}
	}
	if in.StockQuantity != nil && in.StockQuantity.IsNegative() {
		return ErrNegativeStock
	}
	return nil
}

// List returns a product page with pagination metadata.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, shared.Pagination, error) {
	products, total, err := s.repo.ListProducts(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return products, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Get fetches one product by id.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// Create stores a new product entered manually. Initial prices are
// logged as history the same way imports log them.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	if err := in.validate(); err != nil {
		return Product{}, err
	}

	product := Product{
		Barcode:       strings.TrimSpace(in.Barcode),
		ItemNumber:    in.ItemNumber,
		Name:          in.Name,
		SecondName:    in.SecondName,
		PurchasePrice: in.PurchasePrice,
		RetailPrice:   in.RetailPrice,
		StockQuantity: in.StockQuantity,
	}
	if err := s.resolveReferences(ctx, &product, in.SupplierName, in.CategoryName); err != nil {
		return Product{}, err
	}

	created, err := s.repo.InsertProduct(ctx, product)
	if err != nil {
		return Product{}, err
	}

	if err := s.logPriceChanges(ctx, created.ID, nil, nil, created.PurchasePrice, created.RetailPrice, SourceManual); err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, "product.create", created.ID, map[string]any{"barcode": created.Barcode})
	return created, nil
}

// Update overwrites a product's editable fields and logs price history
// for prices whose value actually changed.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (Product, error) {
	if err := in.validate(); err != nil {
		return Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	oldPurchase := existing.PurchasePrice
	oldRetail := existing.RetailPrice

	existing.Barcode = strings.TrimSpace(in.Barcode)
	existing.ItemNumber = in.ItemNumber
	existing.Name = in.Name
	existing.SecondName = in.SecondName
	existing.PurchasePrice = in.PurchasePrice
	existing.RetailPrice = in.RetailPrice
	existing.StockQuantity = in.StockQuantity
	if err := s.resolveReferences(ctx, &existing, in.SupplierName, in.CategoryName); err != nil {
		return Product{}, err
	}

	if err := s.repo.SaveProduct(ctx, existing); err != nil {
		return Product{}, err
	}

	if err := s.logPriceChanges(ctx, existing.ID, oldPurchase, oldRetail, existing.PurchasePrice, existing.RetailPrice, SourceManual); err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, "product.update", existing.ID, map[string]any{"barcode": existing.Barcode})
	return existing, nil
}

// Delete removes a product by explicit user action.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "product.delete", id, nil)
	return nil
}

// PriceHistory lists a product's price changes, newest first.
func (s *Service) PriceHistory(ctx context.Context, productID int64) ([]PriceHistory, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListPriceHistory(ctx, productID)
}

// Suppliers lists all suppliers.
func (s *Service) Suppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// Categories lists all categories.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// resolveReferences turns names into references. A nil or blank name
// clears the reference.
func (s *Service) resolveReferences(ctx context.Context, p *Product, supplierName, categoryName *string) error {
	p.SupplierID = nil
	if supplierName != nil && strings.TrimSpace(*supplierName) != "" {
		supplier, err := s.repo.FindOrCreateSupplier(ctx, *supplierName)
		if err != nil {
			return fmt.Errorf("resolve supplier: %w", err)
		}
		p.SupplierID = &supplier.ID
	}
	p.CategoryID = nil
	if categoryName != nil && strings.TrimSpace(*categoryName) != "" {
		category, err := s.repo.FindOrCreateCategory(ctx, *categoryName)
		if err != nil {
			return fmt.Errorf("resolve category: %w", err)
		}
		p.CategoryID = &category.ID
	}
	return nil
}

// logPriceChanges appends history entries for prices whose new value is
// present and differs from the old one.
func (s *Service) logPriceChanges(ctx context.Context, productID int64, oldPurchase, oldRetail, newPurchase, newRetail *decimal.Decimal, source string) error {
	if priceChanged(oldPurchase, newPurchase) {
		if err := s.repo.InsertPriceHistory(ctx, PriceHistory{ID: uuid.New(), ProductID: productID, Kind: PricePurchase, Price: *newPurchase, Source: source}); err != nil {
			return err
		}
	}
	if priceChanged(oldRetail, newRetail) {
		if err := s.repo.InsertPriceHistory(ctx, PriceHistory{ID: uuid.New(), ProductID: productID, Kind: PriceRetail, Price: *newRetail, Source: source}); err != nil {
			return err
		}
	}
	return nil
}

func priceChanged(old, next *decimal.Decimal) bool {
	if next == nil {
		return false
	}
	return old == nil || !old.Equal(*next)
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
