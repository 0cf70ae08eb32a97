package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/millarag/internal/domain"
	logpkg "github.com/kailas-cloud/millarag/internal/logger"
)

type chatRequest struct {
	Messages     json.RawMessage `json:"messages"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	SystemPrompt string          `json:"systemPrompt"`
}

type cachedChatResponse struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Cached  bool   `json:"cached"`
}

// decodeChat parses a chat body, answering 400 on failure.
func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (domain.GenerateRequest, bool) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return domain.GenerateRequest{}, false
	}
	var messages []domain.Message
	if !decodeArray(req.Messages, &messages) {
		writeError(w, http.StatusBadRequest, "Messages array required")
		return domain.GenerateRequest{}, false
	}
	return domain.GenerateRequest{
		Provider:     req.Provider,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Messages:     messages,
	}, true
}

// Chat handles POST /api/chat. A cache hit is answered with JSON, otherwise the
// reply is streamed as server-sent events ending with "data: [DONE]".
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if content, hit := s.chat.Cached(ctx, req.Messages); hit {
		writeJSON(w, http.StatusOK, cachedChatResponse{
			ID:      fmt.Sprintf("cached_%d", time.Now().UnixMilli()),
			Role:    domain.RoleAssistant,
			Content: content,
			Cached:  true,
		})
		return
	}

	sse := newEventStream(w)
	_, err := s.chat.Stream(ctx, req, func(chunk string) error {
		return sse.send(map[string]string{"content": chunk})
	})
	if err != nil {
		if !sse.started {
			s.handleDomainError(w, r, err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		logpkg.FromContext(ctx).Warn("chat stream failed", zap.Error(err))
		_ = sse.send(errorResponse{Error: domain.SafeMessage(err)})
		return
	}
	_ = sse.done()
}

// GenerateChat handles POST /api/chat/generate.
func (s *Server) GenerateChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	reply, err := s.chat.Generate(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// eventStream writes server-sent events. Headers go out with the first event so
// that failures before any output can still be answered with a JSON error.
type eventStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w, rc: http.NewResponseController(w)}
}

func (e *eventStream) start() {
	if e.started {
		return
	}
	e.started = true
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	e.w.WriteHeader(http.StatusOK)
}

func (e *eventStream) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return e.write("data: " + string(data) + "\n\n")
}

func (e *eventStream) done() error {
	return e.write("data: [DONE]\n\n")
}

func (e *eventStream) write(frame string) error {
	e.start()
	if _, err := e.w.Write([]byte(frame)); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := e.rc.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}
