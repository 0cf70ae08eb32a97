package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kailas-cloud/millarag/internal/domain"
	logpkg "github.com/kailas-cloud/millarag/internal/logger"
	"github.com/kailas-cloud/millarag/internal/metrics"
)

const (
	writeWait = 10 * time.Second

	streamTemperature float32 = 0.7
	streamMaxTokens           = 2048
)

type conn struct {
	hub         *Hub
	ws          *websocket.Conn
	userID      string
	connectedAt time.Time

	// отменяется при закрытии сокета, останавливает активные генерации
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu           sync.Mutex
	lastActivity time.Time
	messageCount int

	streams   sync.WaitGroup
	closeOnce sync.Once
}

func newConn(h *Hub, ws *websocket.Conn, userID string) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logpkg.ContextWithLogger(ctx, h.logger.With(zap.String("user_id", userID)))
	now := time.Now()
	return &conn{
		hub:          h,
		ws:           ws,
		userID:       userID,
		connectedAt:  now,
		ctx:          ctx,
		cancel:       cancel,
		lastActivity: now,
	}
}

// serve runs the read loop and blocks until the socket closes and all streams finish.
func (c *conn) serve() {
	defer func() {
		c.close()
		c.hub.unregister(c)
		c.streams.Wait()
	}()

	c.ws.SetReadLimit(c.hub.cfg.MaxMessageBytes)
	c.ws.SetPongHandler(func(string) error {
		c.touch(false)
		return nil
	})

	go c.pingLoop()

	c.send(connectedEvent{Type: TypeConnected, UserID: c.userID, Timestamp: nowMillis()})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("Relay read failed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		received := time.Now()
		c.touch(true)

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.send(errorEvent{Type: TypeError, Error: invalidMessageError, Timestamp: nowMillis()})
			continue
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}

		c.streams.Add(1)
		go func() {
			defer c.streams.Done()
			c.stream(req, received)
		}()
	}
}

// stream relays one request. Chunks of a request are written in generation order.
func (c *conn) stream(req Request, received time.Time) {
	ctx := logpkg.WithFields(c.ctx, zap.String("request_id", req.RequestID))
	log := logpkg.FromContext(ctx)

	c.send(streamStartEvent{Type: TypeStreamStart, RequestID: req.RequestID, Timestamp: nowMillis()})

	var firstToken time.Time
	full, err := c.hub.streamer.Stream(ctx, domain.GenerateRequest{
		Provider:     req.Provider,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Messages:     req.Messages,
		Temperature:  streamTemperature,
		MaxTokens:    streamMaxTokens,
	}, func(chunk string) error {
		// a streaming reply counts as activity for the idle sweep
		c.touch(false)
		if firstToken.IsZero() {
			firstToken = time.Now()
		}
		if !c.send(streamChunkEvent{
			Type: TypeStreamChunk, RequestID: req.RequestID, Chunk: chunk, Timestamp: nowMillis(),
		}) {
			return errConnectionClosed
		}
		return nil
	})

	if err != nil {
		if c.ctx.Err() != nil || errors.Is(err, errConnectionClosed) {
			metrics.RelayStreamsTotal.WithLabelValues("canceled").Inc()
			return
		}
		metrics.RelayStreamsTotal.WithLabelValues("error").Inc()
		log.Warn("Relay stream failed", zap.Error(err))
		c.send(streamErrorEvent{
			Type: TypeStreamError, RequestID: req.RequestID, Error: domain.SafeMessage(err), Timestamp: nowMillis(),
		})
		return
	}

	end := time.Now()
	latency := end.Sub(received)
	m := StreamMetrics{TotalLatency: latency.Milliseconds()}
	if !firstToken.IsZero() {
		m.TTFT = firstToken.Sub(received).Milliseconds()
	}
	if secs := latency.Seconds(); secs > 0 {
		m.TokensPerSecond = float64(utf8.RuneCountInString(full)) / secs
	}

	c.hub.recordCompleted(latency)
	metrics.RelayStreamsTotal.WithLabelValues("complete").Inc()
	metrics.RelayStreamLatency.Observe(latency.Seconds())
	log.Debug("Relay stream complete",
		zap.Int64("latency_ms", m.TotalLatency), zap.Int64("ttft_ms", m.TTFT))

	c.send(streamCompleteEvent{
		Type: TypeStreamComplete, RequestID: req.RequestID, FullText: full, Metrics: m, Timestamp: end.UnixMilli(),
	})
}

var errConnectionClosed = errors.New("connection closed")

func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// send writes one JSON message. It reports false when the socket is closed or the write fails.
func (c *conn) send(v any) bool {
	if c.ctx.Err() != nil {
		return false
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(v); err != nil {
		c.hub.logger.Debug("Relay write failed", zap.String("user_id", c.userID), zap.Error(err))
		return false
	}
	return true
}

// touch records activity; message also bumps the message counter.
func (c *conn) touch(message bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
	if message {
		c.messageCount++
	}
}

func (c *conn) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *conn) info() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionInfo{
		UserID:         c.userID,
		ConnectionTime: c.connectedAt.UnixMilli(),
		MessageCount:   c.messageCount,
		LastActivity:   c.lastActivity.UnixMilli(),
	}
}

// shutdown sends a close frame and closes the socket.
func (c *conn) shutdown(code int, reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	c.close()
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close()
	})
}

func nowMillis() int64 { return time.Now().UnixMilli() }
