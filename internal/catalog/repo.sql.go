package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stocktally/stocktally/internal/platform/db"
)

// Sentinel errors surfaced by the repository.
var (
	ErrProductNotFound  = errors.New("catalog: product not found")
	ErrDuplicateBarcode = errors.New("catalog: barcode already exists")
)

const productColumns = `id, barcode, item_number, name, second_name, purchase_price, retail_price, stock_quantity, supplier_id, category_id, created_at, updated_at`

// TxRepository exposes the operations available inside one apply
// transaction.
type TxRepository interface {
	GetProductByBarcode(ctx context.Context, barcode string) (Product, error)
	InsertProduct(ctx context.Context, p Product) (Product, error)
	SaveProduct(ctx context.Context, p Product) error
	FindOrCreateSupplier(ctx context.Context, name string) (Supplier, error)
	FindOrCreateCategory(ctx context.Context, name string) (Category, error)
	InsertPriceHistory(ctx context.Context, h PriceHistory) error
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// queries holds the SQL shared between pool-scoped and tx-scoped access.
type queries struct {
	db querier
}

// Repository persists the catalog in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	queries
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, queries: queries{db: pool}}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("catalog: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, queries{db: tx})
	})
}

// Snapshot loads every product with its resolved supplier and category
// names, keyed by barcode. Reconciliation runs fetch this once.
func (r *Repository) Snapshot(ctx context.Context) (map[string]SnapshotEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.barcode, p.item_number, p.name, p.second_name, p.purchase_price, p.retail_price, p.stock_quantity, p.supplier_id, p.category_id, p.created_at, p.updated_at, s.name, c.name
FROM products p
LEFT JOIN suppliers s ON s.id = p.supplier_id
LEFT JOIN categories c ON c.id = p.category_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := make(map[string]SnapshotEntry)
	for rows.Next() {
		var (
			p                       Product
			purchase, retail, stock pgtype.Numeric
			supplierName            *string
			categoryName            *string
		)
		if err := rows.Scan(&p.ID, &p.Barcode, &p.ItemNumber, &p.Name, &p.SecondName, &purchase, &retail, &stock, &p.SupplierID, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt, &supplierName, &categoryName); err != nil {
			return nil, err
		}
		if err := assignNumerics(&p, purchase, retail, stock); err != nil {
			return nil, err
		}
		snapshot[p.Barcode] = SnapshotEntry{Product: p, SupplierName: supplierName, CategoryName: categoryName}
	}
	return snapshot, rows.Err()
}

// ListProducts returns a filtered page plus the total match count.
func (r *Repository) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR item_number ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.Barcode != "" {
		argCount++
		where += ` AND barcode = $` + strconv.Itoa(argCount)
		args = append(args, filters.Barcode)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY barcode ASC`
	perPage := filters.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, perPage)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// GetProduct fetches one product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// DeleteProduct removes a product. Price history rows cascade.
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ListSuppliers returns all suppliers ordered by name.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM suppliers ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := []Supplier{}
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

// ListCategories returns all categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListPriceHistory returns a product's price changes, newest first.
func (r *Repository) ListPriceHistory(ctx context.Context, productID int64) ([]PriceHistory, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, kind, price, effective_at, source, note FROM price_history WHERE product_id = $1 ORDER BY effective_at DESC, id DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []PriceHistory{}
	for rows.Next() {
		var (
			h     PriceHistory
			price pgtype.Numeric
		)
		if err := rows.Scan(&h.ID, &h.ProductID, &h.Kind, &price, &h.EffectiveAt, &h.Source, &h.Note); err != nil {
			return nil, err
		}
		value, err := numericToDecimal(price)
		if err != nil {
			return nil, err
		}
		if value != nil {
			h.Price = *value
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// GetProductByBarcode fetches one product by its natural key.
func (q queries) GetProductByBarcode(ctx context.Context, barcode string) (Product, error) {
	row := q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// InsertProduct stores a new product and returns it with the assigned id.
func (q queries) InsertProduct(ctx context.Context, p Product) (Product, error) {
	now := time.Now()
	err := q.db.QueryRow(ctx, `INSERT INTO products (barcode, item_number, name, second_name, purchase_price, retail_price, stock_quantity, supplier_id, category_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		p.Barcode, p.ItemNumber, p.Name, p.SecondName, decimalToNumeric(p.PurchasePrice), decimalToNumeric(p.RetailPrice), decimalToNumeric(p.StockQuantity), p.SupplierID, p.CategoryID, now, now).Scan(&p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_products_barcode" {
			return Product{}, ErrDuplicateBarcode
		}
		return Product{}, err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

// SaveProduct writes every mutable column of an existing product.
func (q queries) SaveProduct(ctx context.Context, p Product) error {
	tag, err := q.db.Exec(ctx, `UPDATE products SET barcode = $1, item_number = $2, name = $3, second_name = $4, purchase_price = $5, retail_price = $6, stock_quantity = $7, supplier_id = $8, category_id = $9, updated_at = $10 WHERE id = $11`,
		p.Barcode, p.ItemNumber, p.Name, p.SecondName, decimalToNumeric(p.PurchasePrice), decimalToNumeric(p.RetailPrice), decimalToNumeric(p.StockQuantity), p.SupplierID, p.CategoryID, time.Now(), p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_products_barcode" {
			return ErrDuplicateBarcode
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// FindOrCreateSupplier resolves a supplier by exact trimmed name,
// inserting on miss. An empty name yields a transient unsaved entity.
func (q queries) FindOrCreateSupplier(ctx context.Context, name string) (Supplier, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Supplier{}, nil
	}
	var s Supplier
	err := q.db.QueryRow(ctx, `SELECT id, name, created_at FROM suppliers WHERE name = $1`, trimmed).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, err
	}
	err = q.db.QueryRow(ctx, `INSERT INTO suppliers (name, created_at) VALUES ($1, NOW())
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, created_at`, trimmed).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err != nil {
		return Supplier{}, err
	}
	return s, nil
}

// FindOrCreateCategory resolves a category by exact trimmed name,
// inserting on miss. An empty name yields a transient unsaved entity.
func (q queries) FindOrCreateCategory(ctx context.Context, name string) (Category, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Category{}, nil
	}
	var c Category
	err := q.db.QueryRow(ctx, `SELECT id, name, created_at FROM categories WHERE name = $1`, trimmed).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Category{}, err
	}
	err = q.db.QueryRow(ctx, `INSERT INTO categories (name, created_at) VALUES ($1, NOW())
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, created_at`, trimmed).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return Category{}, err
	}
	return c, nil
}

// InsertPriceHistory appends one immutable price change record.
func (q queries) InsertPriceHistory(ctx context.Context, h PriceHistory) error {
	effective := h.EffectiveAt
	if effective.IsZero() {
		effective = time.Now()
	}
	_, err := q.db.Exec(ctx, `INSERT INTO price_history (id, product_id, kind, price, effective_at, source, note) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.ProductID, string(h.Kind), decimalToNumeric(&h.Price), effective, h.Source, h.Note)
	return err
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p                       Product
		purchase, retail, stock pgtype.Numeric
	)
	err := row.Scan(&p.ID, &p.Barcode, &p.ItemNumber, &p.Name, &p.SecondName, &purchase, &retail, &stock, &p.SupplierID, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if err := assignNumerics(&p, purchase, retail, stock); err != nil {
		return Product{}, err
	}
	return p, nil
}

func assignNumerics(p *Product, purchase, retail, stock pgtype.Numeric) error {
	var err error
	if p.PurchasePrice, err = numericToDecimal(purchase); err != nil {
		return err
	}
	if p.RetailPrice, err = numericToDecimal(retail); err != nil {
		return err
	}
	p.StockQuantity, err = numericToDecimal(stock)
	return err
}

func numericToDecimal(n pgtype.Numeric) (*decimal.Decimal, error) {
	if !n.Valid {
		return nil, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, errors.New("catalog: numeric out of range")
	}
	d := decimal.NewFromBigInt(n.Int, n.Exp)
	return &d, nil
}

func decimalToNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
