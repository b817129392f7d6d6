package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ogfetch/internal/apperr"
	"github.com/starford/ogfetch/internal/index"
	"github.com/starford/ogfetch/internal/models"
	"github.com/starford/ogfetch/internal/ogservice"
	"github.com/starford/ogfetch/internal/scanner"
)

// Handler holds API route handlers.
type Handler struct {
	svc      *ogservice.Service
	scanner  *scanner.Scanner
	history  index.History
	defaults BatchDefaults
	now      func() time.Time
}

// NewHandler creates a new Handler. history may be nil, in which case the
// history routes answer 404.
func NewHandler(svc *ogservice.Service, sc *scanner.Scanner, history index.History, defaults BatchDefaults) *Handler {
	return &Handler{
		svc:      svc,
		scanner:  sc,
		history:  history,
		defaults: defaults,
		now:      time.Now,
	}
}

// documentPath extracts the document path from the URL (everything after /api/documents/).
// Supports encoded slashes from OpenAPI clients (e.g. links%2Fpost.md).
func documentPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// decode reads a JSON body into v and runs its validation rules.
func decode(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNoActiveDocument), errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrNoURLFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrMissingCredential):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrFetchExhausted), errors.Is(err, apperr.ErrInvalidResponse):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status for err. Unknown failures are logged
// and reported as an internal error.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Code: apperr.Code(err)})
		return
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Code: apperr.Code(err)})
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List documents that reference a URL
//	@Tags			documents
//	@Produce		json
//	@Param			dir	query		string	false	"Vault subdirectory"
//	@Success		200	{object}	DocumentListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	docs, err := h.scanner.Scan(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, errorBody("directory not found"))
			return
		}
		writeError(w, "scan", err)
		return
	}
	if docs == nil {
		docs = []models.FileInfo{}
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Read the parsed frontmatter of a document
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	FrontmatterResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	b, err := h.svc.ReadFrontmatter(r.Context(), path)
	if err != nil {
		writeError(w, "read frontmatter", err)
		return
	}
	writeJSON(w, http.StatusOK, FrontmatterResponse{Path: path, Frontmatter: b.Map()})
}

// CreateDocument handles POST /api/documents.
//
//	@Summary		Create a document from a URL
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Folder and URL"
//	@Success		201		{object}	ogservice.Result
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.CreateDocument(r.Context(), req.Folder, req.URL, ogservice.ProcessOptions{Overrides: req.Overrides})
	if err != nil {
		writeError(w, "create document", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Fetch handles POST /api/fetch.
//
//	@Summary		Fetch metadata for one document
//	@Tags			fetch
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FetchRequest	true	"Document path and options"
//	@Success		200		{object}	ogservice.Result
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fetch [post]
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ProcessDocument(r.Context(), req.Path, ogservice.ProcessOptions{
		Overrides: req.Overrides,
		Force:     req.Force,
	})
	if err != nil {
		writeError(w, "fetch", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StartBatch handles POST /api/batch.
//
//	@Summary		Start a background batch
//	@Tags			batch
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BatchRequest	true	"Selection and pacing"
//	@Success		202		{object}	BatchStartedResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/batch [post]
func (h *Handler) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decode(w, r, &req) {
		return
	}
	opts := ogservice.BatchOptions{
		Process: ogservice.ProcessOptions{Overrides: req.Overrides, Force: req.Force},
		Delay:   h.defaults.Delay,
	}
	if req.DelayMS != nil {
		opts.Delay = time.Duration(*req.DelayMS) * time.Millisecond
	}
	policy := h.svc.Policy().Apply(req.Overrides)
	if err := policy.Validate(); err != nil {
		writeError(w, "start batch", err)
		return
	}

	paths := req.Paths
	if len(paths) == 0 {
		selected, err := h.scanner.Select(req.Dir, policy, h.defaults.RefreshAfter, h.now())
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				writeJSON(w, http.StatusNotFound, errorBody("directory not found"))
				return
			}
			writeError(w, "select batch", err)
			return
		}
		paths = selected
	}

	// The batch outlives the request.
	b, err := h.svc.StartBatch(context.WithoutCancel(r.Context()), paths, opts)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("a batch is already running"))
			return
		}
		writeError(w, "start batch", err)
		return
	}
	writeJSON(w, http.StatusAccepted, BatchStartedResponse{
		RunID: b.ID(),
		Total: len(paths),
		Delay: opts.Delay.String(),
	})
}

// BatchStatus handles GET /api/batch.
//
//	@Summary		Progress of the running batch, or the last summary
//	@Tags			batch
//	@Produce		json
//	@Success		200	{object}	BatchStatusResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/batch [get]
func (h *Handler) BatchStatus(w http.ResponseWriter, _ *http.Request) {
	if b := h.svc.ActiveBatch(); b != nil {
		p := b.Progress()
		writeJSON(w, http.StatusOK, BatchStatusResponse{Running: true, Progress: &p})
		return
	}
	sum, ok := h.svc.LastSummary()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no batch has run"))
		return
	}
	writeJSON(w, http.StatusOK, BatchStatusResponse{Summary: &sum})
}

// CancelBatch handles DELETE /api/batch.
//
//	@Summary		Cancel the running batch
//	@Tags			batch
//	@Success		202	"Cancellation requested"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/batch [delete]
func (h *Handler) CancelBatch(w http.ResponseWriter, _ *http.Request) {
	if !h.svc.CancelBatch() {
		writeJSON(w, http.StatusNotFound, errorBody("no batch is running"))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListHistory handles GET /api/history.
//
//	@Summary		List recorded fetch outcomes
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			status	query		string	false	"Filter by status"	Enums(ok, error)
//	@Success		200		{object}	HistoryResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusNotFound, errorBody("history is disabled"))
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	status := q.Get("status")
	if err := validation.Validate(status, validation.In(index.StatusOK, index.StatusError)); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("status: "+err.Error()))
		return
	}

	rows, total, err := h.history.List(limit, offset, status)
	if err != nil {
		writeError(w, "list history", err)
		return
	}
	if rows == nil {
		rows = []index.FetchRow{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: rows, Total: total})
}

// SearchHistory handles GET /api/history/search.
//
//	@Summary		Search fetch history by path, URL, title or error
//	@Tags			history
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	HistorySearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/history/search [get]
func (h *Handler) SearchHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusNotFound, errorBody("history is disabled"))
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.history.Search(q, limit)
	if err != nil {
		slog.Error("history search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if rows == nil {
		rows = []index.FetchRow{}
	}
	writeJSON(w, http.StatusOK, HistorySearchResponse{Results: rows})
}

// ClearCache handles DELETE /api/cache.
//
//	@Summary		Drop cached metadata for one URL, or all of it
//	@Tags			cache
//	@Param			url	query	string	false	"URL to invalidate"
//	@Success		204	"Cache cleared"
//	@Security		BearerAuth
//	@Router			/cache [delete]
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearCache(r.URL.Query().Get("url"))
	w.WriteHeader(http.StatusNoContent)
}
