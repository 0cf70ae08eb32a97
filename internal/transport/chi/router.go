package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/millarag/internal/metrics"
)

// RouterConfig wires the non-API handlers into the router.
type RouterConfig struct {
	Relay     http.Handler // served on RelayPath when set
	RelayPath string
	APIKeys   []string
	Logger    *zap.Logger
}

// NewRouter builds the HTTP handler: middleware chain, API routes, /metrics and the relay.
func NewRouter(s *Server, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(cfg.Logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEvent(cfg.Logger))
	r.Use(BearerAuthMiddleware(cfg.APIKeys, cfg.RelayPath))
	r.Use(metrics.Middleware())

	s.Routes(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if cfg.Relay != nil && cfg.RelayPath != "" {
		r.Method(http.MethodGet, cfg.RelayPath, cfg.Relay)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
