// Package ws relays streamed LLM output to WebSocket clients.
package ws

import (
	"context"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kailas-cloud/millarag/internal/domain"
	"github.com/kailas-cloud/millarag/internal/metrics"
)

// Streamer produces a streamed completion.
type Streamer interface {
	Stream(ctx context.Context, req domain.GenerateRequest, onChunk func(string) error) (string, error)
}

// Config holds relay timings and limits. Zero values take the defaults.
type Config struct {
	PingInterval    time.Duration
	IdleTimeout     time.Duration
	SweepInterval   time.Duration
	MaxMessageBytes int64
	AllowedOrigins  []string // empty allows any origin
}

func (c *Config) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
}

// ConnectionInfo describes one open connection. Times are unix milliseconds.
type ConnectionInfo struct {
	UserID         string `json:"userId"`
	ConnectionTime int64  `json:"connectionTime"`
	MessageCount   int    `json:"messageCount"`
	LastActivity   int64  `json:"lastActivity"`
}

// Stats is a snapshot of the relay. TotalMessages and AverageLatency (ms) cover completed streams.
type Stats struct {
	ActiveConnections int              `json:"activeConnections"`
	TotalMessages     int64            `json:"totalMessages"`
	AverageLatency    int64            `json:"averageLatency"`
	Connections       []ConnectionInfo `json:"connections"`
}

// Hub accepts relay connections and tracks them until they close or go idle.
type Hub struct {
	streamer Streamer
	cfg      Config
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu            sync.Mutex
	conns         map[string]*conn
	totalMessages int64
	totalLatency  int64
	closed        bool
}

// NewHub creates a hub.
func NewHub(streamer Streamer, cfg Config, logger *zap.Logger) *Hub {
	cfg.applyDefaults()
	h := &Hub{
		streamer: streamer,
		cfg:      cfg,
		logger:   logger,
		conns:    make(map[string]*conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.Accepting() {
		http.Error(w, "relay is shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := newConn(h, ws, newUserID(time.Now()))
	if !h.register(c) {
		_ = ws.Close()
		return
	}
	h.logger.Info("Relay client connected",
		zap.String("user_id", c.userID), zap.Int("active", h.Stats().ActiveConnections))

	c.serve()

	h.logger.Info("Relay client disconnected",
		zap.String("user_id", c.userID), zap.Int("active", h.Stats().ActiveConnections))
}

// Run sweeps idle connections until ctx is done, then closes the hub.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case now := <-ticker.C:
			h.sweep(now)
		}
	}
}

// Close stops accepting connections and closes the open ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	open := h.snapshot()
	h.mu.Unlock()

	for _, c := range open {
		c.shutdown(websocket.CloseGoingAway, "server shutting down")
	}
}

// Accepting reports whether new connections are accepted.
func (h *Hub) Accepting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

// Stats returns the current connection statistics.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	open := h.snapshot()
	st := Stats{
		ActiveConnections: len(open),
		TotalMessages:     h.totalMessages,
	}
	if h.totalMessages > 0 {
		st.AverageLatency = (h.totalLatency + h.totalMessages/2) / h.totalMessages
	}
	h.mu.Unlock()

	st.Connections = make([]ConnectionInfo, 0, len(open))
	for _, c := range open {
		st.Connections = append(st.Connections, c.info())
	}
	slices.SortFunc(st.Connections, func(a, b ConnectionInfo) int {
		if a.ConnectionTime != b.ConnectionTime {
			return int(a.ConnectionTime - b.ConnectionTime)
		}
		if a.UserID < b.UserID {
			return -1
		}
		return 1
	})
	return st
}

// Broadcast sends v to every connection and returns how many writes succeeded.
func (h *Hub) Broadcast(v any) int {
	h.mu.Lock()
	open := h.snapshot()
	h.mu.Unlock()

	sent := 0
	for _, c := range open {
		if c.send(v) {
			sent++
		}
	}
	return sent
}

// Shutdown tells every client the server is going away, then closes the hub.
func (h *Hub) Shutdown() {
	n := h.Broadcast(shutdownEvent{Type: TypeServerShutdown, Timestamp: nowMillis()})
	h.logger.Info("Relay shutting down", zap.Int("notified", n))
	h.Close()
}

// sweep closes connections idle longer than the idle timeout.
func (h *Hub) sweep(now time.Time) {
	h.mu.Lock()
	var stale []*conn
	for id, c := range h.conns {
		if now.Sub(c.lastSeen()) > h.cfg.IdleTimeout {
			stale = append(stale, c)
			delete(h.conns, id)
			metrics.RelayConnections.Dec()
		}
	}
	h.mu.Unlock()

	for _, c := range stale {
		h.logger.Info("Closing idle relay connection", zap.String("user_id", c.userID))
		metrics.RelayIdleClosedTotal.Inc()
		c.shutdown(websocket.CloseNormalClosure, "idle timeout")
	}
}

func (h *Hub) register(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c.userID] = c
	metrics.RelayConnections.Inc()
	return true
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.conns[c.userID]; ok && cur == c {
		delete(h.conns, c.userID)
		metrics.RelayConnections.Dec()
	}
}

func (h *Hub) recordCompleted(latency time.Duration) {
	h.mu.Lock()
	h.totalMessages++
	h.totalLatency += latency.Milliseconds()
	h.mu.Unlock()
}

// snapshot must be called with h.mu held.
func (h *Hub) snapshot() []*conn {
	out := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, origin)
}

// newUserID returns "user_<unixms>_<9 base36 chars>".
func newUserID(now time.Time) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return "user_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix)
}
