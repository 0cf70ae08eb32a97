package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveAuth(mw func(http.Handler) http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rr, req)
	return rr
}

func TestAuthMiddleware_EmptyKeys_PassThrough(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/vector/stats", http.NoBody)
	rr := serveAuth(BearerAuthMiddleware(nil, "/ws-ai"), req)

	if rr.Code != http.StatusOK {
		t.Errorf("empty keys: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_EmptyStringKeys_PassThrough(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/vector/stats", http.NoBody)
	rr := serveAuth(BearerAuthMiddleware([]string{"", ""}, "/ws-ai"), req)

	if rr.Code != http.StatusOK {
		t.Errorf("empty string keys: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_MissingHeader_401(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/rag/query", http.NoBody)
	rr := serveAuth(BearerAuthMiddleware([]string{"secret"}, "/ws-ai"), req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing header: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error != "missing authorization header" {
		t.Errorf("error: got %q", errResp.Error)
	}
}

func TestAuthMiddleware_BasicScheme_401(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/cache/stats", http.NoBody)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr := serveAuth(BearerAuthMiddleware([]string{"secret"}, "/ws-ai"), req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("basic scheme: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_InvalidToken_401(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/cache/stats", http.NoBody)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rr := serveAuth(BearerAuthMiddleware([]string{"secret"}, "/ws-ai"), req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("invalid token: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_ValidToken_200(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/cache/stats", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")
	rr := serveAuth(BearerAuthMiddleware([]string{"secret"}, "/ws-ai"), req)

	if rr.Code != http.StatusOK {
		t.Errorf("valid token: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_MultipleKeys(t *testing.T) {
	mw := BearerAuthMiddleware([]string{"key1", "key2"}, "/ws-ai")

	for _, key := range []string{"key1", "key2"} {
		req := httptest.NewRequest("GET", "/api/cache/stats", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+key)
		rr := serveAuth(mw, req)

		if rr.Code != http.StatusOK {
			t.Errorf("key %s: got %d, want %d", key, rr.Code, http.StatusOK)
		}
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	mw := BearerAuthMiddleware([]string{"secret"}, "/ws-ai")

	for _, path := range []string{"/api/health", "/metrics"} {
		rr := serveAuth(mw, httptest.NewRequest("GET", path, http.NoBody))

		if rr.Code != http.StatusOK {
			t.Errorf("exempt path %s: got %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}

func TestAuthMiddleware_AccessTokenOnUpgradePath(t *testing.T) {
	mw := BearerAuthMiddleware([]string{"secret"}, "/ws-ai")

	tests := []struct {
		target string
		want   int
	}{
		{"/ws-ai?access_token=secret", http.StatusOK},
		{"/ws-ai?access_token=nope", http.StatusUnauthorized},
		{"/ws-ai", http.StatusUnauthorized},
		// query tokens are only honoured on the upgrade path
		{"/api/cache/stats?access_token=secret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		rr := serveAuth(mw, httptest.NewRequest("GET", tt.target, http.NoBody))
		if rr.Code != tt.want {
			t.Errorf("%s: got %d, want %d", tt.target, rr.Code, tt.want)
		}
	}
}
