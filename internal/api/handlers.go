package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"pride-store/internal/filter"
	"pride-store/internal/metrics"
	"pride-store/internal/query"
	"pride-store/internal/reconcile"
	"pride-store/internal/repository"
	"pride-store/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds the size of one uploaded record.
const maxBodyBytes = 8 * 1024 * 1024

// Paging defaults applied when the query string leaves them out.
const (
	DefaultPageSize = 20
	MaxPageSize     = 1000
)

// APIResponse defines the base structure for all JSON responses.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// SendJSONResponse is a helper function to send any JSON response.
func SendJSONResponse(w http.ResponseWriter, success bool, message string, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	resp := APIResponse{
		Success: success,
		Message: message,
		Data:    data,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// BackupRunner is the part of the backup manager exposed over HTTP.
type BackupRunner interface {
	PerformBackup(ctx context.Context) (string, error)
	ListBackups() ([]string, error)
}

// Options configures a Handlers value. Backups may be nil, which disables the admin routes.
type Options struct {
	Metrics *metrics.Metrics
	Auth    *Authenticator
	Backups BackupRunner
}

// Handlers serves the entity repositories over HTTP.
type Handlers struct {
	registry *repository.Registry
	opts     Options
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(registry *repository.Registry, opts Options) *Handlers {
	return &Handlers{registry: registry, opts: opts}
}

// Routes builds the request router, wrapped in the logging middleware.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.HealthHandler)
	mux.Handle("GET /metrics", h.opts.Metrics.Handler())
	mux.Handle("GET /auth", h.opts.Auth.Require(http.HandlerFunc(h.AuthHandler)))
	mux.HandleFunc("GET /api", h.ListEntitiesHandler)
	mux.HandleFunc("GET /api/{entity}", h.SearchHandler)
	mux.HandleFunc("GET /api/{entity}/count", h.CountHandler)
	mux.Handle("POST /api/{entity}", h.opts.Auth.Require(http.HandlerFunc(h.SaveHandler)))
	mux.Handle("DELETE /api/{entity}", h.opts.Auth.Require(http.HandlerFunc(h.DeleteAllHandler)))
	if h.opts.Backups != nil {
		mux.Handle("POST /admin/backups", h.opts.Auth.Require(http.HandlerFunc(h.BackupHandler)))
		mux.Handle("GET /admin/backups", h.opts.Auth.Require(http.HandlerFunc(h.ListBackupsHandler)))
	}
	return LogRequest(h.opts.Metrics, mux)
}

// HealthHandler handles GET /healthz.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	SendJSONResponse(w, true, "ok", nil, http.StatusOK)
}

// AuthHandler handles GET /auth. It lets clients check their credentials before writing.
func (h *Handlers) AuthHandler(w http.ResponseWriter, r *http.Request) {
	user, _, _ := r.BasicAuth()
	SendJSONResponse(w, true, "Authenticated", user, http.StatusOK)
}

// ListEntitiesHandler handles GET /api.
func (h *Handlers) ListEntitiesHandler(w http.ResponseWriter, r *http.Request) {
	type entity struct {
		Name       string `json:"name"`
		Collection string `json:"collection"`
	}
	names := h.registry.Names()
	entities := make([]entity, 0, len(names))
	for _, name := range names {
		repo, _ := h.registry.Get(name)
		entities = append(entities, entity{Name: name, Collection: repo.Collection()})
	}
	SendJSONResponse(w, true, "Entities retrieved successfully", entities, http.StatusOK)
}

// lookup resolves the {entity} path value, answering 404 itself when it is unknown.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (repository.Dynamic, bool) {
	name := r.PathValue("entity")
	repo, ok := h.registry.Get(name)
	if !ok {
		SendJSONResponse(w, false, fmt.Sprintf("Unknown entity '%s'", name), nil, http.StatusNotFound)
	}
	return repo, ok
}

// SearchHandler handles GET /api/{entity}?filter=&page=&size=&sort=.
func (h *Handlers) SearchHandler(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookup(w, r)
	if !ok {
		return
	}
	req, err := ParsePageRequest(r)
	if err != nil {
		SendJSONResponse(w, false, err.Error(), nil, http.StatusBadRequest)
		return
	}
	expr := r.URL.Query().Get("filter")
	page, err := repo.SearchDocuments(r.Context(), expr, req)
	if err != nil {
		h.sendError(w, repo.Name(), "search", err)
		return
	}
	SendJSONResponse(w, true, fmt.Sprintf("%d of %d %s records", len(page.Content), page.TotalElements, repo.Name()), page, http.StatusOK)
}

// CountHandler handles GET /api/{entity}/count?filter=.
func (h *Handlers) CountHandler(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookup(w, r)
	if !ok {
		return
	}
	n, err := repo.Count(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		h.sendError(w, repo.Name(), "count", err)
		return
	}
	SendJSONResponse(w, true, fmt.Sprintf("%d %s records", n, repo.Name()), n, http.StatusOK)
}

// SaveHandler handles POST /api/{entity}. The body is one record in its stored document form.
func (h *Handlers) SaveHandler(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookup(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		SendJSONResponse(w, false, "Request body too large or unreadable", nil, http.StatusRequestEntityTooLarge)
		return
	}
	doc, err := store.DecodeDocument(body)
	if err != nil || doc == nil {
		SendJSONResponse(w, false, "Request body must be a JSON object", nil, http.StatusBadRequest)
		return
	}
	saved, err := repo.SaveDocument(r.Context(), doc)
	if err != nil {
		h.sendError(w, repo.Name(), "save", err)
		return
	}
	SendJSONResponse(w, true, fmt.Sprintf("%s record saved", repo.Name()), saved, http.StatusOK)
}

// DeleteAllHandler handles DELETE /api/{entity}.
func (h *Handlers) DeleteAllHandler(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := repo.DeleteAll(r.Context()); err != nil {
		h.sendError(w, repo.Name(), "delete all", err)
		return
	}
	log.Warn().Str("entity", repo.Name()).Msg("All records deleted")
	SendJSONResponse(w, true, fmt.Sprintf("All %s records deleted", repo.Name()), nil, http.StatusOK)
}

// BackupHandler handles POST /admin/backups.
func (h *Handlers) BackupHandler(w http.ResponseWriter, r *http.Request) {
	name, err := h.opts.Backups.PerformBackup(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Manual backup failed")
		SendJSONResponse(w, false, fmt.Sprintf("Backup failed: %v", err), nil, http.StatusInternalServerError)
		return
	}
	SendJSONResponse(w, true, fmt.Sprintf("Backup '%s' created", name), name, http.StatusCreated)
}

// ListBackupsHandler handles GET /admin/backups.
func (h *Handlers) ListBackupsHandler(w http.ResponseWriter, r *http.Request) {
	names, err := h.opts.Backups.ListBackups()
	if err != nil {
		SendJSONResponse(w, false, fmt.Sprintf("Failed to list backups: %v", err), nil, http.StatusInternalServerError)
		return
	}
	SendJSONResponse(w, true, "Backups retrieved successfully", names, http.StatusOK)
}

func (h *Handlers) sendError(w http.ResponseWriter, entity, op string, err error) {
	status := StatusFor(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("entity", entity).Str("op", op).Int("status", status).Msg("Request failed")
	SendJSONResponse(w, false, err.Error(), nil, status)
}

// StatusFor maps a repository error to an HTTP status.
func StatusFor(err error) int {
	var (
		malformed   *filter.MalformedFilterError
		unsupported *filter.UnsupportedOperatorError
		timeout     *query.StorageTimeoutError
		execution   *query.QueryExecutionError
		conflict    *reconcile.ReconciliationConflictError
		write       *reconcile.StorageWriteError
	)
	switch {
	case errors.As(err, &malformed), errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrIncompleteNaturalKey),
		errors.Is(err, repository.ErrInvalidRecord),
		errors.Is(err, query.ErrInvalidPageRequest):
		return http.StatusBadRequest
	// A timeout arrives wrapped in the execution or write error of its call.
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &execution):
		return http.StatusServiceUnavailable
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &write):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ParsePageRequest reads page, size and sort from the query string. Sort takes the form
// "field,asc;field,desc"; the direction defaults to ascending.
func ParsePageRequest(r *http.Request) (query.PageRequest, error) {
	q := r.URL.Query()
	req := query.PageRequest{Page: 0, Size: DefaultPageSize}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 0 {
			return req, fmt.Errorf("%w: page must be a non-negative integer, got %q", query.ErrInvalidPageRequest, v)
		}
		req.Page = page
	}
	if v := q.Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 || size > MaxPageSize {
			return req, fmt.Errorf("%w: size must be between 1 and %d, got %q", query.ErrInvalidPageRequest, MaxPageSize, v)
		}
		req.Size = size
	}
	sort, err := ParseSort(q.Get("sort"))
	if err != nil {
		return req, err
	}
	req.Sort = sort
	return req, nil
}

// ParseSort parses a sort parameter.
func ParseSort(v string) ([]store.SortField, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	var fields []store.SortField
	for _, part := range strings.Split(v, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, _ := strings.Cut(part, ",")
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, fmt.Errorf("%w: empty sort field in %q", query.ErrInvalidPageRequest, part)
		}
		sf := store.SortField{Field: field}
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
		case "desc":
			sf.Desc = true
		default:
			return nil, fmt.Errorf("%w: unknown sort direction %q", query.ErrInvalidPageRequest, dir)
		}
		fields = append(fields, sf)
	}
	return fields, nil
}
