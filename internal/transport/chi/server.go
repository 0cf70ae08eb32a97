package chi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/millarag/internal/domain"
	logpkg "github.com/kailas-cloud/millarag/internal/logger"
	"github.com/kailas-cloud/millarag/internal/usecase/health"
)

const maxBodyBytes = 10 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the REST API.
type Server struct {
	rag           RAGService
	chat          ChatService
	cache         CacheStatter
	vector        VectorStatter
	relay         RelayStatter
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	rag RAGService,
	chat ChatService,
	cache CacheStatter,
	vector VectorStatter,
	relay RelayStatter,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		rag:    rag,
		chat:   chat,
		cache:  cache,
		vector: vector,
		relay:  relay,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests),
		sentinelHandler(domain.ErrProviderNotConfigured, http.StatusServiceUnavailable),
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway),
	}
	return s
}

// Routes registers the API routes on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/rag/ingest", s.IngestDocuments)
		r.Post("/rag/query", s.QueryRAG)
		r.Delete("/rag/document/{id}", s.DeleteDocument)

		r.Post("/chat", s.Chat)
		r.Post("/chat/generate", s.GenerateChat)

		r.Get("/cache/stats", s.CacheStats)
		r.Get("/vector/stats", s.VectorStats)
		r.Get("/websocket/stats", s.RelayStats)
		r.Get("/health", s.HealthCheck)
	})
}

type ingestRequest struct {
	Documents json.RawMessage `json:"documents"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// IngestDocuments handles POST /api/rag/ingest.
func (s *Server) IngestDocuments(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}
	var docs []domain.Document
	if !decodeArray(req.Documents, &docs) {
		writeError(w, http.StatusBadRequest, "Documents array required")
		return
	}

	if err := s.rag.IngestDocuments(r.Context(), docs); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{
		Success: true,
		Message: fmt.Sprintf("Ingested %d documents", len(docs)),
	})
}

type queryRequest struct {
	Query  string         `json:"query"`
	TopK   int            `json:"topK"`
	Filter map[string]any `json:"filter"`
	Rerank *bool          `json:"rerank"`
}

// QueryRAG handles POST /api/rag/query.
func (s *Server) QueryRAG(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query required")
		return
	}

	answer, err := s.rag.Query(r.Context(), domain.QueryRequest{
		Query:  req.Query,
		TopK:   req.TopK,
		Filter: req.Filter,
		Rerank: req.Rerank,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// DeleteDocument handles DELETE /api/rag/document/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.rag.DeleteDocument(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{
		Success: true,
		Message: fmt.Sprintf("Document %s deleted", id),
	})
}

// CacheStats handles GET /api/cache/stats.
func (s *Server) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats(r.Context()))
}

// VectorStats handles GET /api/vector/stats.
func (s *Server) VectorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.vector.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RelayStats handles GET /api/websocket/stats.
func (s *Server) RelayStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.Stats())
}

// HealthCheck handles GET /api/health. A degraded service still answers 200:
// every backend is optional and the report says which ones are down.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	if report.Status != health.Healthy {
		logpkg.FromContext(r.Context()).Debug("health degraded", zap.Any("services", report.Services))
	}
	writeJSON(w, http.StatusOK, report)
}

// decode reads a JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// decodeArray unmarshals raw into dst only if raw is a JSON array.
func decodeArray(raw json.RawMessage, dst any) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
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

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := domain.SafeMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
