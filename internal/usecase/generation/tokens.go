package generation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with the cl100k_base encoding. A nil counter counts zero.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter loads cl100k_base. The first load may download the BPE ranks,
// so callers treat an error as "no token metrics".
func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &TokenCounter{encoding: enc}, nil
}

// Count returns the number of tokens in text.
func (t *TokenCounter) Count(text string) int {
	if t == nil || t.encoding == nil || text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessages sums the content tokens of messages, without per-message framing overhead.
func (t *TokenCounter) CountMessages(contents ...string) int {
	n := 0
	for _, c := range contents {
		n += t.Count(c)
	}
	return n
}
