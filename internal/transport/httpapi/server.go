// Package httpapi exposes the engine over HTTP: a query endpoint, the
// admin surface for domains and records, and the ops endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/orbis-search/orbis/internal/domain"
	"github.com/orbis-search/orbis/internal/health"
	"github.com/orbis-search/orbis/internal/index"
	"github.com/orbis-search/orbis/internal/orchestrator"
	"github.com/orbis-search/orbis/internal/retrieval"
)

// Registry is the domain registry surface the server needs.
type Registry interface {
	Create(ctx context.Context, d domain.Domain) (domain.Domain, error)
	SetActive(ctx context.Context, name string, active bool) (domain.Domain, error)
	Refresh(ctx context.Context) error
	Snapshot() []domain.Domain
}

// Indexer is the orchestrator surface the server needs.
type Indexer interface {
	AddEmbedding(ctx context.Context, domainName, id string, vector []float32, metadata map[string]string) (orchestrator.AddResult, error)
	GetEmbedding(domainName, id string) (domain.VectorRecord, bool)
	RemoveEmbedding(domainName, id string) bool
	RefreshDomains(ctx context.Context, domains []domain.Domain) error
	Stats(name string) ([]index.Stats, error)
	FlushAll(ctx context.Context) error
	CompactOver(ctx context.Context, ratio float64) []string
}

// Retriever executes retrieval queries.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) domain.RetrievalOutcome
}

// HealthService aggregates readiness checks.
type HealthService interface {
	Check(ctx context.Context) health.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server hosts the HTTP surface.
type Server struct {
	registry      Registry
	indexer       Indexer
	retriever     Retriever
	embedder      domain.Embedder
	health        HealthService
	compactRatio  float64
	apiKeys       []string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// Config wires the server's collaborators.
type Config struct {
	Registry     Registry
	Indexer      Indexer
	Retriever    Retriever
	Embedder     domain.Embedder
	Health       HealthService
	CompactRatio float64
	APIKeys      []string
	Logger       *zap.Logger
}

// NewServer creates the HTTP server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry:     cfg.Registry,
		indexer:      cfg.Indexer,
		retriever:    cfg.Retriever,
		embedder:     cfg.Embedder,
		health:       cfg.Health,
		compactRatio: cfg.CompactRatio,
		apiKeys:      cfg.APIKeys,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDomainNotFound, http.StatusNotFound),
		sentinelHandler(domain.ErrDomainInactive, http.StatusConflict),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict),
		sentinelHandler(domain.ErrInvalidDomain, http.StatusBadRequest),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest),
		sentinelHandler(domain.ErrDegenerateInput, http.StatusBadRequest),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway),
		sentinelHandler(domain.ErrPersistence, http.StatusInternalServerError),
	}
	return s
}

// Router builds the chi router. The ops endpoints stay open; /query and
// /admin sit behind bearer auth when Config.APIKeys is non-empty.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReadiness)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(s.apiKeys))

		r.Post("/query", s.handleQuery)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/domains", s.handleCreateDomain)
			r.Get("/domains", s.handleListDomains)
			r.Patch("/domains/{name}", s.handlePatchDomain)
			r.Get("/domains/{name}/stats", s.handleDomainStats)
			r.Post("/domains/{name}/records", s.handleAddRecord)
			r.Get("/domains/{name}/records/{id}", s.handleGetRecord)
			r.Delete("/domains/{name}/records/{id}", s.handleDeleteRecord)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/flush", s.handleFlush)
			r.Post("/compact", s.handleCompact)
		})
	})

	return r
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthToDTO(report))
}

// handleQuery runs a retrieval query. The outcome is always 200: failures
// surface as a degraded outcome with zero confidence, not transport errors.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.retriever == nil {
		writeError(w, http.StatusServiceUnavailable, "retrieval is unavailable: no embedding provider configured")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	outcome := s.retriever.Retrieve(r.Context(), retrieval.Request{
		Principal: req.Principal,
		Domain:    req.Domain,
		Query:     req.Query,
		TopK:      req.TopK,
	})
	writeJSON(w, http.StatusOK, outcomeToDTO(outcome))
}

func (s *Server) handleCreateDomain(w http.ResponseWriter, r *http.Request) {
	var req createDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	created, err := s.registry.Create(r.Context(), req.toDomain())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.indexer.RefreshDomains(r.Context(), s.registry.Snapshot()); err != nil {
		s.logger.Warn("index refresh after domain create failed", zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, domainToDTO(created))
}

func (s *Server) handleListDomains(w http.ResponseWriter, _ *http.Request) {
	domains := s.registry.Snapshot()
	items := make([]domainDTO, len(domains))
	for i, d := range domains {
		items[i] = domainToDTO(d)
	}
	writeJSON(w, http.StatusOK, listDomainsResponse{Items: items})
}

func (s *Server) handlePatchDomain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req patchDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	updated, err := s.registry.SetActive(r.Context(), name, *req.Active)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.indexer.RefreshDomains(r.Context(), s.registry.Snapshot()); err != nil {
		s.logger.Warn("index refresh after domain patch failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, domainToDTO(updated))
}

func (s *Server) handleDomainStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	stats, err := s.indexer.Stats(name)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]statsDTO, len(stats))
	for i, st := range stats {
		items[i] = statsToDTO(st)
	}
	writeJSON(w, http.StatusOK, statsResponse{Items: items})
}

// handleAddRecord inserts one record. The caller supplies either a raw
// vector or text to embed, not both.
func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req addRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	vector := req.Vector
	switch {
	case len(vector) > 0 && req.Text != "":
		writeError(w, http.StatusBadRequest, "provide either vector or text, not both")
		return
	case len(vector) == 0 && req.Text == "":
		writeError(w, http.StatusBadRequest, "either vector or text is required")
		return
	case req.Text != "":
		if s.embedder == nil {
			writeError(w, http.StatusBadRequest, "no embedding provider configured, supply a vector")
			return
		}
		result, err := s.embedder.Embed(r.Context(), req.Text)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		vector = result.Embedding
	}

	added, err := s.indexer.AddEmbedding(r.Context(), name, req.ID, vector, req.Metadata)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if !added.Inserted {
		status = http.StatusOK
	}
	writeJSON(w, status, addRecordResponse{
		ID:        added.ID,
		Dimension: added.Dimension,
		Inserted:  added.Inserted,
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")

	record, ok := s.indexer.GetEmbedding(name, id)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, recordToDTO(record))
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")

	if !s.indexer.RemoveEmbedding(name, id) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Refresh(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.indexer.RefreshDomains(r.Context(), s.registry.Snapshot()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.FlushAll(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	compacted := s.indexer.CompactOver(r.Context(), s.compactRatio)
	writeJSON(w, http.StatusOK, compactResponse{Compacted: compacted})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// safeDomainMessage returns a sentinel error message for the client
// without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDomainNotFound,
		domain.ErrDomainInactive,
		domain.ErrAlreadyExists,
		domain.ErrInvalidDomain,
		domain.ErrDimensionMismatch,
		domain.ErrDegenerateInput,
		domain.ErrEmbeddingProviderError,
		domain.ErrPersistence,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// NewHTTPServer wraps the router in an http.Server with the configured
// timeouts.
func NewHTTPServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}
