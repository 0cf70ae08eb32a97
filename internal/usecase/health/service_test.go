package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/millarag/internal/domain"
)

// --- Mocks ---

type mockCachePinger struct {
	err error
}

func (m *mockCachePinger) Ping(_ context.Context) error { return m.err }

type mockVector struct {
	available bool
	err       error
}

func (m *mockVector) Available() bool { return m.available }

func (m *mockVector) Stats(_ context.Context) (domain.VectorStats, error) {
	return domain.VectorStats{Count: 1}, m.err
}

type mockRelay struct {
	accepting bool
}

func (m *mockRelay) Accepting() bool { return m.accepting }

type mockEmbeddingChecker struct {
	err error
}

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

func fixedClock(s *Service) {
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 5e6, time.UTC) }
}

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockCachePinger{}, &mockVector{available: true}, &mockRelay{accepting: true}, nil)
	fixedClock(svc)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if !r.Services.Redis || !r.Services.VectorDB || !r.Services.WebSocket {
		t.Errorf("expected all services up, got %+v", r.Services)
	}
	if r.Services.Embedding != nil {
		t.Error("embedding must be omitted without a checker")
	}
	if r.Timestamp != "2024-03-01T12:00:00.005Z" {
		t.Errorf("unexpected timestamp %q", r.Timestamp)
	}
}

func TestCheck_RedisDown(t *testing.T) {
	svc := New(&mockCachePinger{err: errors.New("refused")}, &mockVector{available: true}, &mockRelay{accepting: true}, nil)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Services.Redis {
		t.Error("expected redis down")
	}
}

func TestCheck_NoCacheConfigured(t *testing.T) {
	svc := New(nil, &mockVector{available: true}, &mockRelay{accepting: true}, nil)
	r := svc.Check(context.Background())

	if r.Status != Degraded || r.Services.Redis {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestCheck_VectorStore(t *testing.T) {
	tests := []struct {
		name   string
		vector VectorChecker
		want   bool
	}{
		{"available", &mockVector{available: true}, true},
		{"unavailable", &mockVector{available: false}, false},
		{"stats error", &mockVector{available: true, err: errors.New("timeout")}, false},
		{"nil", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(&mockCachePinger{}, tc.vector, &mockRelay{accepting: true}, nil)
			if got := svc.Check(context.Background()).Services.VectorDB; got != tc.want {
				t.Errorf("VectorDB = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheck_EmbeddingDown(t *testing.T) {
	svc := New(&mockCachePinger{}, &mockVector{available: true}, &mockRelay{accepting: true},
		&mockEmbeddingChecker{err: errors.New("401")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Services.Embedding == nil || *r.Services.Embedding {
		t.Errorf("expected embedding false, got %v", r.Services.Embedding)
	}
}

func TestCheck_RelayClosed(t *testing.T) {
	svc := New(&mockCachePinger{}, &mockVector{available: true}, &mockRelay{accepting: false}, nil)
	if r := svc.Check(context.Background()); r.Status != Degraded || r.Services.WebSocket {
		t.Errorf("unexpected report %+v", r)
	}
}
