package imports

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stocktally/stocktally/internal/platform/httpx"
	"github.com/stocktally/stocktally/internal/reconcile"
	"github.com/stocktally/stocktally/internal/shared"
	"github.com/stocktally/stocktally/internal/tabular"
)

// Handler exposes import runs over HTTP.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	maxUploadBytes int64
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, maxUploadBytes int64) *Handler {
	return &Handler{logger: logger, service: service, maxUploadBytes: maxUploadBytes}
}

// MountRoutes registers the import run endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.upload)
	r.Get("/{id}", h.get)
	r.Post("/{id}/apply", h.apply)
	r.Post("/{id}/discard", h.discard)
}

type runListResponse struct {
	Items      []ImportRun       `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

type runDetailResponse struct {
	Run    ImportRun         `json:"run"`
	Result *reconcile.Result `json:"result,omitempty"`
}

type applyResponse struct {
	Summary reconcile.ApplySummary `json:"summary"`
}

// upload accepts a multipart form with a `file` field and registers an
// import run for it. The response is 202: small files already carry
// review counts, large ones are still pending while the worker parses.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "could not parse multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondServiceError(w, ErrFileRequired)
		return
	}
	defer func() { _ = file.Close() }()

	run, err := h.service.Upload(r.Context(), header.Filename, file)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, run)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	runs, pagination, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runListResponse{Items: runs, Pagination: pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	run, result, err := h.service.Review(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runDetailResponse{Run: run, Result: result})
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Apply(r.Context(), id, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, applyResponse{Summary: summary})
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Discard(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "run id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrRunNotReviewable):
		httpx.Problem(w, http.StatusConflict, "Not Reviewable", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrFileRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		httpx.Problem(w, http.StatusBadRequest, "Unsupported Format", err.Error())
	case errors.Is(err, tabular.ErrEmptySource):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Empty File", err.Error())
	case errors.Is(err, ErrRunFailed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Import Failed", err.Error())
	default:
		h.logger.Error("imports handler", "error", err)
		httpx.RespondError(w, err)
	}
}
