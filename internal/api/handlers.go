package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/tabula/internal/apperr"
	"github.com/starford/tabula/internal/checksum"
	"github.com/starford/tabula/internal/models"
	"github.com/starford/tabula/internal/recordstore"
	"github.com/starford/tabula/internal/view"
)

// maxPageSize bounds the size query parameter.
const maxPageSize = 100

// Store is the subset of the record store the handlers use.
type Store interface {
	Query(ctx context.Context, f models.Filter, srt *models.Sort, p models.Page) (models.Result, error)
	Get(ctx context.Context, id string) (models.Record, error)
	Add(ctx context.Context, in models.Input) (models.Record, error)
	UpdateIfMatch(ctx context.Context, id, ifMatch string, in models.Input) (models.Record, error)
	Remove(ctx context.Context, id string) error
}

// Handler holds API route handlers.
type Handler struct {
	store Store
}

// NewHandler creates a new Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func etag(rec models.Record) string {
	return `"` + checksum.Record(rec) + `"`
}

// intParam reads a positive integer query parameter, falling back to def when
// the parameter is absent.
func intParam(r *http.Request, name string, def int, fields map[string]string) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fields[name] = "must be an integer"
		return def
	}
	return n
}

// writeStoreError maps store errors to HTTP responses.
func writeStoreError(w http.ResponseWriter, op, id string, err error) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, fieldErrorBody("validation failed", verr.Fields))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.Debug(op+" abandoned", slog.String("id", id), slog.String("error", err.Error()))
	default:
		slog.Error(op+" failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decodeRecordRequest(w http.ResponseWriter, r *http.Request) (RecordRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return RecordRequest{}, false
	}
	if req.Value == nil {
		// Zero is a valid value, so absence is only visible here.
		fields := map[string]string{"value": "cannot be blank"}
		var verr *apperr.ValidationError
		if _, err := recordstore.ValidateInput(req.input()); errors.As(err, &verr) {
			for k, v := range verr.Fields {
				fields[k] = v
			}
		}
		writeJSON(w, http.StatusBadRequest, fieldErrorBody("validation failed", fields))
		return RecordRequest{}, false
	}
	return req, true
}

// ListRecords handles GET /api/records.
//
//	@Summary		Filter, sort and paginate records
//	@Tags			records
//	@Produce		json
//	@Param			q		query		string	false	"Keyword matched against name, date and value"
//	@Param			sort	query		string	false	"Sort field"	Enums(name, date, value)
//	@Param			order	query		string	false	"Sort direction"	Enums(asc, desc)
//	@Param			page	query		int		false	"1-based page index"
//	@Param			size	query		int		false	"Page size"
//	@Success		200		{object}	RecordListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]string{}
	page := intParam(r, "page", 1, fields)
	size := intParam(r, "size", view.DefaultPageSize, fields)
	if size > maxPageSize {
		fields["size"] = "must be at most " + strconv.Itoa(maxPageSize)
	}

	var srt *models.Sort
	if field := strings.TrimSpace(q.Get("sort")); field != "" {
		order := strings.TrimSpace(q.Get("order"))
		if order == "" {
			order = string(models.Ascending)
		}
		srt = &models.Sort{Field: models.Field(field), Direction: models.Direction(order)}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrorBody("invalid query", fields))
		return
	}

	res, err := h.store.Query(r.Context(), models.Filter{Keyword: q.Get("q")}, srt, models.Page{Index: page, Size: size})
	if err != nil {
		writeStoreError(w, "query records", "", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{
		Items: res.Items,
		Total: res.Total,
		Page:  page,
		Size:  size,
	})
}

// GetRecord handles GET /api/records/{id}.
//
//	@Summary		Get a single record by id
//	@Tags			records
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	Record
//	@Header			200	{string}	ETag	"Record checksum"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, "get record", id, err)
		return
	}
	w.Header().Set("ETag", etag(rec))
	writeJSON(w, http.StatusOK, rec)
}

// CreateRecord handles POST /api/records.
//
//	@Summary		Create a new record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RecordRequest	true	"Record to create"
//	@Success		201		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records [post]
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRecordRequest(w, r)
	if !ok {
		return
	}
	rec, err := h.store.Add(r.Context(), req.input())
	if err != nil {
		writeStoreError(w, "create record", "", err)
		return
	}
	w.Header().Set("ETag", etag(rec))
	writeJSON(w, http.StatusCreated, rec)
}

// UpdateRecord handles PUT /api/records/{id}.
//
//	@Summary		Update a record with optimistic concurrency
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string			true	"Record id"
//	@Param			If-Match	header		string			false	"Record checksum for optimistic concurrency"
//	@Param			body		body		RecordRequest	true	"Updated fields"
//	@Success		200			{object}	Record
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [put]
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := decodeRecordRequest(w, r)
	if !ok {
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	rec, err := h.store.UpdateIfMatch(r.Context(), id, ifMatch, req.input())
	if err != nil {
		writeStoreError(w, "update record", id, err)
		return
	}
	w.Header().Set("ETag", etag(rec))
	writeJSON(w, http.StatusOK, rec)
}

// DeleteRecord handles DELETE /api/records/{id}. It responds once the removal
// has completed.
//
//	@Summary		Delete a record
//	@Tags			records
//	@Param			id	path	string	true	"Record id"
//	@Success		204	"Record deleted"
//	@Security		BearerAuth
//	@Router			/records/{id} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Remove(r.Context(), id); err != nil {
		writeStoreError(w, "delete record", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PageSize handles GET /api/page-size.
//
//	@Summary		Page size for a viewport width
//	@Tags			layout
//	@Produce		json
//	@Param			width	query		int	true	"Viewport width in pixels"
//	@Success		200		{object}	PageSizeResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/page-size [get]
func (h *Handler) PageSize(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("width"))
	width, err := strconv.Atoi(raw)
	if raw == "" || err != nil || width < 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrorBody("invalid query", map[string]string{
			"width": "must be a non-negative integer",
		}))
		return
	}
	writeJSON(w, http.StatusOK, PageSizeResponse{Size: view.PageSizeFor(width)})
}
