package countsync

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stocktally/stocktally/internal/platform/httpx"
	"github.com/stocktally/stocktally/internal/tabular"
)

var validate = validator.New()

// Handler exposes count sessions over HTTP.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	maxUploadBytes int64
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, maxUploadBytes int64) *Handler {
	return &Handler{logger: logger, service: service, maxUploadBytes: maxUploadBytes}
}

// MountRoutes registers the session endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/sync", h.sync)
	r.Get("/{id}/export", h.export)
}

type createSessionPayload struct {
	Name string `json:"name" validate:"required"`
}

type syncResponse struct {
	Report  Report `json:"report"`
	Summary string `json:"summary"`
}

// create opens a session, either from a JSON body naming an empty
// sheet or from a multipart upload carrying the counted grid.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var (
		name string
		src  *tabular.Source
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "could not parse multipart form")
			return
		}
		name = r.FormValue("name")

		if file, header, err := r.FormFile("file"); err == nil {
			defer func() { _ = file.Close() }()
			format, err := tabular.Detect(header.Filename)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Unsupported Format", err.Error())
				return
			}
			decoded, err := tabular.Decode(format, file)
			if err != nil {
				httpx.Problem(w, http.StatusUnprocessableEntity, "Undecodable Sheet", err.Error())
				return
			}
			src = &decoded
		}
	} else {
		var payload createSessionPayload
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
		if err := validate.Struct(payload); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		name = payload.Name
	}

	session, err := h.service.Create(r.Context(), name, src)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, session)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.List(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": sessions})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	report, err := h.service.Sync(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, syncResponse{Report: report, Summary: report.Summary()})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	session, err := h.service.ExportXLSX(r.Context(), id, &buf)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", session.Name+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "session id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNameRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("countsync handler", "error", err)
		httpx.RespondError(w, err)
	}
}
