package countsync

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocktally/stocktally/internal/catalog"
	"github.com/stocktally/stocktally/internal/reconcile"
	"github.com/stocktally/stocktally/internal/shared"
	"github.com/stocktally/stocktally/internal/tabular"
)

// ErrNameRequired rejects sessions created without a name.
var ErrNameRequired = errors.New("countsync: session name required")

// Grid columns the sync pass reads and writes. The counted quantity
// accepts either spelling; RetailPrice is the count-sheet casing and a
// case-insensitive match is accepted for files that reuse the import
// spelling.
const (
	colBarcode      = "barcode"
	colRealQuantity = "realQuantity"
	colQuantity     = "quantity"
	colRetailPrice  = "RetailPrice"
	colSyncError    = "SyncError"
)

// Row error strings written into the SyncError cell.
const (
	errInvalidQuantity = "invalid quantity"
	errInvalidPrice    = "invalid retail price"
	errUnknownBarcode  = "barcode not found"
)

// defaultHeader seeds sessions created without an uploaded sheet.
var defaultHeader = []string{colBarcode, "productName", colRealQuantity, colRetailPrice}

// SessionRepository is the persistence port for sessions.
type SessionRepository interface {
	Insert(ctx context.Context, s CountSession) error
	Get(ctx context.Context, id uuid.UUID) (CountSession, error)
	List(ctx context.Context) ([]CountSession, error)
	Save(ctx context.Context, s CountSession) error
}

// CatalogPort is the slice of the catalog the sync pass mutates. Each
// call commits on its own; the batch deliberately survives partial
// failure.
type CatalogPort interface {
	GetProductByBarcode(ctx context.Context, barcode string) (catalog.Product, error)
	SaveProduct(ctx context.Context, p catalog.Product) error
	InsertPriceHistory(ctx context.Context, h catalog.PriceHistory) error
}

// AuditPort records sync activity.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns count-session lifecycle and the sync pass.
type Service struct {
	sessions SessionRepository
	catalog  CatalogPort
	audit    AuditPort
}

// NewService constructs Service.
func NewService(sessions SessionRepository, catalogPort CatalogPort, audit AuditPort) *Service {
	return &Service{sessions: sessions, catalog: catalogPort, audit: audit}
}

// Create opens a new session. A decoded sheet becomes the grid as-is;
// without one the session starts from the default count-sheet header.
func (s *Service) Create(ctx context.Context, name string, src *tabular.Source) (CountSession, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CountSession{}, ErrNameRequired
	}

	grid := tabular.Grid{Header: append([]string{}, defaultHeader...), Rows: [][]string{}}
	if src != nil {
		grid = tabular.Grid{Header: src.Header, Rows: src.Rows}
	}

	now := time.Now()
	session := CountSession{
		ID:        uuid.New(),
		Name:      name,
		Status:    StatusOpen,
		Grid:      grid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Insert(ctx, session); err != nil {
		return CountSession{}, err
	}
	return session, nil
}

// Get fetches one session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (CountSession, error) {
	return s.sessions.Get(ctx, id)
}

// List returns all sessions, newest first.
func (s *Service) List(ctx context.Context) ([]CountSession, error) {
	return s.sessions.List(ctx)
}

// ExportXLSX renders the session grid as a workbook.
func (s *Service) ExportXLSX(ctx context.Context, id uuid.UUID, w io.Writer) (CountSession, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return CountSession{}, err
	}
	if err := tabular.WriteXLSX(w, session.Grid); err != nil {
		return CountSession{}, err
	}
	return session, nil
}

// Sync walks the session grid row by row, writing counted quantities
// (and optional retail prices) onto the catalog. Every row gets a
// defined SyncError cell: empty means OK. Failed rows never abort the
// batch and earlier successes stay committed. The rewritten grid is
// always persisted; the session status only moves when at least one row
// was attempted.
func (s *Service) Sync(ctx context.Context, id uuid.UUID) (Report, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}

	header := session.Grid.Header
	errIdx := indexOf(header, colSyncError)
	if errIdx < 0 {
		header = append(header, colSyncError)
		errIdx = len(header) - 1
	}
	barcodeIdx := indexOf(header, colBarcode)
	quantityIdx := quantityColumn(header)
	priceIdx := retailPriceColumn(header)

	var report Report
	rows := session.Grid.Rows
	for i := range rows {
		row := padRow(rows[i], len(header))
		rows[i] = row
		row[errIdx] = ""
		report.Processed++

		barcode := strings.TrimSpace(cellAt(row, barcodeIdx))
		if barcode == "" {
			continue
		}
		counted := strings.TrimSpace(cellAt(row, quantityIdx))
		if counted == "" {
			// Not counted yet, not an attempt.
			continue
		}

		report.Attempted++
		quantity := reconcile.ParseDecimal(counted)
		if quantity == nil || quantity.IsNegative() {
			row[errIdx] = errInvalidQuantity
			report.Failed++
			continue
		}

		var retail *decimal.Decimal
		if priceIdx >= 0 {
			if priceCell := strings.TrimSpace(row[priceIdx]); priceCell != "" {
				retail = reconcile.ParseDecimal(priceCell)
				if retail == nil || retail.IsNegative() {
					row[errIdx] = errInvalidPrice
					report.Failed++
					continue
				}
			}
		}

		if err := s.syncRow(ctx, barcode, quantity, retail); err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				row[errIdx] = errUnknownBarcode
				report.Failed++
				continue
			}
			return Report{}, err
		}
		report.Succeeded++
	}

	session.Grid.Header = header
	session.Grid.Rows = rows
	if report.Attempted > 0 {
		session.Status = StatusSynced
		if report.Failed > 0 {
			session.Status = StatusAttemptedWithErrors
		}
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return Report{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "countsync.sync",
			Entity:   "count_session",
			EntityID: session.ID.String(),
			Meta: map[string]any{
				"processed": report.Processed,
				"attempted": report.Attempted,
				"succeeded": report.Succeeded,
				"failed":    report.Failed,
			},
		})
	}
	return report, nil
}

// syncRow commits one counted row onto the catalog. A retail price
// history entry is only written when the stored value actually changes.
func (s *Service) syncRow(ctx context.Context, barcode string, quantity, retail *decimal.Decimal) error {
	product, err := s.catalog.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return err
	}

	product.StockQuantity = quantity
	oldRetail := product.RetailPrice
	if retail != nil {
		product.RetailPrice = retail
	}
	if err := s.catalog.SaveProduct(ctx, product); err != nil {
		return err
	}

	if retail != nil && !reconcile.DecimalsEqual(oldRetail, retail) {
		return s.catalog.InsertPriceHistory(ctx, catalog.PriceHistory{
			ID:        uuid.New(),
			ProductID: product.ID,
			Kind:      catalog.PriceRetail,
			Price:     *retail,
			Source:    catalog.SourceInventorySync,
		})
	}
	return nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// quantityColumn prefers realQuantity, falling back to quantity.
func quantityColumn(header []string) int {
	if idx := indexOf(header, colRealQuantity); idx >= 0 {
		return idx
	}
	return indexOf(header, colQuantity)
}

// retailPriceColumn matches the count-sheet casing first, then any
// casing of the same name.
func retailPriceColumn(header []string) int {
	if idx := indexOf(header, colRetailPrice); idx >= 0 {
		return idx
	}
	for i, h := range header {
		if strings.EqualFold(h, colRetailPrice) {
			return i
		}
	}
	return -1
}

func padRow(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
