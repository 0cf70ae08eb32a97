package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "healthy"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// Services holds per-component availability.
type Services struct {
	Redis     bool  `json:"redis"`
	VectorDB  bool  `json:"vectorDB"`
	WebSocket bool  `json:"websocket"`
	Embedding *bool `json:"embedding,omitempty"` // only for remote embedding providers
}

// Report aggregates health check results.
type Report struct {
	Status    Status   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Services  Services `json:"services"`
}

// Service coordinates health checks. Nil checkers report their component as down,
// except embedding which is omitted.
type Service struct {
	cache     CachePinger
	vector    VectorChecker
	relay     RelayChecker
	embedding EmbeddingChecker
	now       func() time.Time
}

// New creates a Service.
func New(cache CachePinger, vector VectorChecker, relay RelayChecker, embedding EmbeddingChecker) *Service {
	return &Service{cache: cache, vector: vector, relay: relay, embedding: embedding, now: time.Now}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	svc := Services{
		Redis:     s.cache != nil && s.cache.Ping(ctx) == nil,
		VectorDB:  s.vectorUp(ctx),
		WebSocket: s.relay != nil && s.relay.Accepting(),
	}
	healthy := svc.Redis && svc.VectorDB && svc.WebSocket

	if s.embedding != nil {
		ok := s.embedding.HealthCheck(ctx) == nil
		svc.Embedding = &ok
		healthy = healthy && ok
	}

	status := Healthy
	if !healthy {
		status = Degraded
	}

	return Report{
		Status:    status,
		Timestamp: s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Services:  svc,
	}
}

func (s *Service) vectorUp(ctx context.Context) bool {
	if s.vector == nil || !s.vector.Available() {
		return false
	}
	_, err := s.vector.Stats(ctx)
	return err == nil
}
