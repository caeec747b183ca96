// Package api exposes the catalog over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	"github.com/VForWaTer/metacatalog-api/internal/catalog/assembler"
	"github.com/VForWaTer/metacatalog-api/internal/catalog/payload"
	"github.com/VForWaTer/metacatalog-api/internal/catalog/repository"
	"github.com/VForWaTer/metacatalog-api/internal/web/cache"
	"github.com/VForWaTer/metacatalog-api/internal/web/middleware"
	"github.com/VForWaTer/metacatalog-api/internal/web/query"
	"github.com/VForWaTer/metacatalog-api/internal/web/ratelimit"
	"github.com/VForWaTer/metacatalog-api/internal/web/request"
	"github.com/VForWaTer/metacatalog-api/internal/web/response"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DefaultEntryLimit bounds entry listings when the client sends no limit
const DefaultEntryLimit = 100

// Pinger reports database reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the handler settings
type Config struct {
	// RootPath mounts every route below the given prefix, e.g. "/api"
	RootPath              string
	AllowAuthorDuplicates bool
	DefaultLimit          int
	CacheTTL              time.Duration
	// WriteLimiter throttles the POST routes per client when set
	WriteLimiter ratelimit.Limiter
}

// Handler serves the catalog routes
type Handler struct {
	repo      *repository.Repository
	assembler *assembler.Assembler
	db        Pinger
	cache     cache.Cache
	parser    *request.Parser
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
}

// New creates a handler. c may be nil to disable response caching.
func New(repo *repository.Repository, asm *assembler.Assembler, db Pinger, c cache.Cache, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultEntryLimit
	}
	return &Handler{
		repo:      repo,
		assembler: asm,
		db:        db,
		cache:     c,
		parser:    request.NewParser(),
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// loggerFor prefers the request scoped logger carrying the request id
func (h *Handler) loggerFor(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value(middleware.LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return h.logger
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	response.RenderError(w, h.loggerFor(r), err)
}

// pathID parses the {id} URL parameter
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, catalog.NewValidationError("id", "must be an integer, got %q", raw)
	}
	return id, nil
}

func (h *Handler) entryQuery(r *http.Request, defaultLimit int) (repository.EntryQuery, error) {
	ids, err := query.ParseIDs(r, "ids")
	if err != nil {
		return repository.EntryQuery{}, err
	}
	page, err := query.ParsePage(r, defaultLimit)
	if err != nil {
		return repository.EntryQuery{}, err
	}
	return repository.EntryQuery{
		Search: r.URL.Query().Get("search"),
		IDs:    ids,
		Filter: query.ParseFilter(r),
		Page:   page,
	}, nil
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	eq, err := h.entryQuery(r, h.cfg.DefaultLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.repo.FindEntries(r.Context(), eq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	response.JSON(w, http.StatusOK, entries)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.repo.GetEntry(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, entry)
}

func (h *Handler) entryLocations(w http.ResponseWriter, r *http.Request) {
	eq, err := h.entryQuery(r, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	locations, err := h.repo.EntryLocations(r.Context(), eq)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, locations)
}

func (h *Handler) allowDuplicates(r *http.Request) (bool, error) {
	return query.ParseBool(r, "allow_author_duplicates", h.cfg.AllowAuthorDuplicates)
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	allow, err := h.allowDuplicates(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in catalog.EntryCreate
	if err := h.parser.ParseJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	h.storeEntry(w, r, in, allow)
}

func (h *Handler) createEntryFromForm(w http.ResponseWriter, r *http.Request) {
	allow, err := h.allowDuplicates(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	form, err := h.parser.ParseForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := payload.FromForm(form, h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.storeEntry(w, r, in, allow)
}

func (h *Handler) storeEntry(w http.ResponseWriter, r *http.Request, in catalog.EntryCreate, allow bool) {
	entry, err := h.assembler.CreateEntry(r.Context(), in, allow)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", h.cfg.RootPath+"/entries/"+strconv.FormatInt(entry.ID, 10))
	response.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) attachDatasource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in catalog.DatasourceCreate
	if err := h.parser.ParseJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.assembler.AttachDatasource(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) listAuthors(w http.ResponseWriter, r *http.Request) {
	entryID, err := query.ParseInt64(r, "entry_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	exclude, err := query.ParseIDs(r, "exclude_ids")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := query.ParsePage(r, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	authors, err := h.repo.GetAuthors(r.Context(), repository.AuthorQuery{
		EntryID:    entryID,
		Name:       r.URL.Query().Get("name"),
		Search:     r.URL.Query().Get("search"),
		ExcludeIDs: exclude,
		Page:       page,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if authors == nil {
		authors = []catalog.Author{}
	}
	response.JSON(w, http.StatusOK, authors)
}

func (h *Handler) getAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	author, err := h.repo.GetAuthor(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, author)
}

func (h *Handler) createAuthor(w http.ResponseWriter, r *http.Request) {
	allow, err := h.allowDuplicates(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in catalog.AuthorCreate
	if err := h.parser.ParseJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	author, err := h.assembler.CreateAuthor(r.Context(), in, !allow)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, author)
}

func (h *Handler) listLicenses(w http.ResponseWriter, r *http.Request) {
	page, err := query.ParsePage(r, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	licenses, err := h.repo.GetLicenses(r.Context(), repository.LicenseQuery{Page: page})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if licenses == nil {
		licenses = []catalog.License{}
	}
	response.JSON(w, http.StatusOK, licenses)
}

func (h *Handler) getLicense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	license, err := h.repo.GetLicense(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, license)
}

func (h *Handler) listVariables(w http.ResponseWriter, r *http.Request) {
	onlyAvailable, err := query.ParseBool(r, "only_available", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := query.ParsePage(r, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	variables, err := h.repo.GetVariables(r.Context(), repository.VariableQuery{OnlyAvailable: onlyAvailable, Page: page})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if variables == nil {
		variables = []catalog.Variable{}
	}
	response.JSON(w, http.StatusOK, variables)
}

func (h *Handler) getVariable(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	variable, err := h.repo.GetVariable(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, variable)
}

func (h *Handler) listDatatypes(w http.ResponseWriter, r *http.Request) {
	id, err := query.ParseInt64(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	types, err := h.repo.GetDatatypes(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if types == nil {
		types = []catalog.DatasourceType{}
	}
	response.JSON(w, http.StatusOK, types)
}

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.loggerFor(r).Warn("health check failed", zap.Error(err))
		response.JSON(w, http.StatusServiceUnavailable, healthStatus{Status: "unavailable", Database: err.Error()})
		return
	}
	response.JSON(w, http.StatusOK, healthStatus{Status: "ok", Database: "reachable"})
}
