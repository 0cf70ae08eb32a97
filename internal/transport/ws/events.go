package ws

import "github.com/kailas-cloud/millarag/internal/domain"

// Event types sent to and received from relay clients.
const (
	TypeConnected      = "connected"
	TypeError          = "error"
	TypeStreamStart    = "stream_start"
	TypeStreamChunk    = "stream_chunk"
	TypeStreamComplete = "stream_complete"
	TypeStreamError    = "stream_error"
	TypeServerShutdown = "server_shutdown"
)

const invalidMessageError = "Failed to process message"

// Request is an inbound relay message.
type Request struct {
	Type         string           `json:"type"`
	Messages     []domain.Message `json:"messages"`
	Provider     string           `json:"provider,omitempty"`
	Model        string           `json:"model,omitempty"`
	SystemPrompt string           `json:"systemPrompt,omitempty"`
	RequestID    string           `json:"requestId"`
}

type connectedEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

type shutdownEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type errorEvent struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

type streamStartEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Timestamp int64  `json:"timestamp"`
}

type streamChunkEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Chunk     string `json:"chunk"`
	Timestamp int64  `json:"timestamp"`
}

// StreamMetrics describes a completed stream. Latencies are milliseconds.
type StreamMetrics struct {
	TotalLatency    int64   `json:"totalLatency"`
	TTFT            int64   `json:"ttft"`
	TokensPerSecond float64 `json:"tokensPerSecond"`
}

type streamCompleteEvent struct {
	Type      string        `json:"type"`
	RequestID string        `json:"requestId"`
	FullText  string        `json:"fullText"`
	Metrics   StreamMetrics `json:"metrics"`
	Timestamp int64         `json:"timestamp"`
}

type streamErrorEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}
