package rag

import (
	"strings"
	"unicode/utf8"
)

// Chunker defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order; the empty separator splits into characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// TextChunker splits text into overlapping chunks of at most chunkSize characters.
type TextChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

// ChunkerOption configures a TextChunker.
type ChunkerOption func(*TextChunker)

// WithChunkSize sets the maximum chunk length in characters. Non-positive values are ignored.
func WithChunkSize(n int) ChunkerOption {
	return func(c *TextChunker) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithChunkOverlap sets how many trailing characters seed the next chunk.
func WithChunkOverlap(n int) ChunkerOption {
	return func(c *TextChunker) { c.overlap = max(n, 0) }
}

// WithSeparators replaces the separator list.
func WithSeparators(seps ...string) ChunkerOption {
	return func(c *TextChunker) {
		if len(seps) > 0 {
			c.separators = seps
		}
	}
}

// NewTextChunker creates a chunker. An overlap not smaller than the chunk size
// is reset to a quarter of it.
func NewTextChunker(opts ...ChunkerOption) *TextChunker {
	c := &TextChunker{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, o := range opts {
		o(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// ChunkSize returns the configured maximum chunk length.
func (c *TextChunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *TextChunker) Overlap() int { return c.overlap }

// Split returns the chunks of text in order. Every chunk is trimmed and non-empty.
func (c *TextChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		chunks []string
		buf    []rune
	)
	emit := func(r []rune) {
		if s := strings.TrimSpace(string(r)); s != "" {
			chunks = append(chunks, s)
		}
	}

	for _, unit := range c.units(text, c.separators) {
		u := []rune(unit)

		if len(u) > c.chunkSize {
			emit(buf)
			buf = nil
			windows := c.hardSplit(u)
			for _, w := range windows[:len(windows)-1] {
				emit(w)
			}
			// the tail stays open so following units can join it
			buf = append(buf, windows[len(windows)-1]...)
			continue
		}

		if len(buf)+len(u) <= c.chunkSize {
			buf = append(buf, u...)
			continue
		}

		emit(buf)
		if c.overlap > 0 && len(buf) > c.overlap {
			next := make([]rune, 0, c.overlap+len(u))
			next = append(next, buf[len(buf)-c.overlap:]...)
			buf = append(next, u...)
		} else {
			buf = u
		}
		if len(buf) > c.chunkSize {
			// overlap plus unit can still overflow; keep the unit whole
			buf = u
		}
	}
	emit(buf)
	return chunks
}

// units splits text by the first separator present and re-appends it to every unit.
// A unit longer than the chunk size is split again by the separators after that one.
// Text with no separator left is returned whole; Split hard-splits it.
func (c *TextChunker) units(text string, seps []string) []string {
	for i, sep := range seps {
		if sep == "" {
			out := make([]string, 0, utf8.RuneCountInString(text))
			for _, r := range text {
				out = append(out, string(r))
			}
			return out
		}
		if !strings.Contains(text, sep) {
			continue
		}

		parts := strings.Split(text, sep)
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			u := p + sep
			if utf8.RuneCountInString(u) > c.chunkSize {
				out = append(out, c.units(u, seps[i+1:])...)
				continue
			}
			out = append(out, u)
		}
		return out
	}
	return []string{text}
}

// hardSplit cuts an oversized unit into windows of chunkSize advancing by chunkSize-overlap.
func (c *TextChunker) hardSplit(u []rune) [][]rune {
	stride := c.chunkSize - c.overlap
	var windows [][]rune
	for start := 0; ; start += stride {
		end := min(start+c.chunkSize, len(u))
		windows = append(windows, u[start:end])
		if end == len(u) {
			return windows
		}
	}
}
