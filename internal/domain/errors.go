package domain

import "errors"

var (
	// ErrInvalidInput signals a malformed request (empty query, missing messages, bad document).
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrVectorDimMismatch signals an embedding of unexpected length.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrProviderNotConfigured signals a generation provider without credentials.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrGenerationFailed signals an LLM provider failure.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrRetrievalUnavailable signals that retrieval is required but the vector store is down.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
)

// clientSafe lists sentinels whose text may be shown to API and relay clients.
var clientSafe = []error{
	ErrInvalidInput,
	ErrRateLimited,
	ErrEmbeddingProviderError,
	ErrVectorDimMismatch,
	ErrProviderNotConfigured,
	ErrGenerationFailed,
	ErrRetrievalUnavailable,
}

// SafeMessage returns a sentinel error message for the client without exposing internals.
func SafeMessage(err error) string {
	for _, s := range clientSafe {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}
