package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stocktally/stocktally/internal/platform/httpx"
	"github.com/stocktally/stocktally/internal/shared"
)

var validate = validator.New()

// Handler wires HTTP endpoints for catalog maintenance.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Get("/{id}/price-history", h.handlePriceHistory)
	})
	r.Get("/suppliers", h.handleSuppliers)
	r.Get("/categories", h.handleCategories)
}

type productPayload struct {
	Barcode       string           `json:"barcode" validate:"required"`
	ItemNumber    *string          `json:"item_number"`
	Name          *string          `json:"name"`
	SecondName    *string          `json:"second_name"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	RetailPrice   *decimal.Decimal `json:"retail_price"`
	StockQuantity *decimal.Decimal `json:"stock_quantity"`
	SupplierName  *string          `json:"supplier_name"`
	CategoryName  *string          `json:"category_name"`
}

func (p productPayload) toInput() ProductInput {
	return ProductInput{
		Barcode:       p.Barcode,
		ItemNumber:    p.ItemNumber,
		Name:          p.Name,
		SecondName:    p.SecondName,
		PurchasePrice: p.PurchasePrice,
		RetailPrice:   p.RetailPrice,
		StockQuantity: p.StockQuantity,
		SupplierName:  p.SupplierName,
		CategoryName:  p.CategoryName,
	}
}

type productListResponse struct {
	Items      []Product         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	filters := ListFilters{
		Search:  q.Get("search"),
		Barcode: q.Get("barcode"),
		Page:    page,
		PerPage: perPage,
	}

	items, pagination, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, productListResponse{Items: items, Pagination: pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload productPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, err := h.service.Create(r.Context(), payload.toInput())
	if err != nil {
		h.respondServiceError(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var payload productPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	updated, err := h.service.Update(r.Context(), id, payload.toInput())
	if err != nil {
		h.respondServiceError(w, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, "delete product", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	entries, err := h.service.PriceHistory(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, "list price history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.Suppliers(r.Context())
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": suppliers})
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		h.logger.Error("list categories", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": categories})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateBarcode):
		httpx.Problem(w, http.StatusConflict, "Duplicate Barcode", err.Error())
	case errors.Is(err, ErrBarcodeRequired), errors.Is(err, ErrNegativePrice), errors.Is(err, ErrNegativeStock):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
