package redisvec

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/kailas-cloud/millarag/internal/domain"
)

const (
	fieldContent  = "__content"
	fieldVector   = "__vector"
	fieldMetadata = "__metadata"
)

// tagValue encodes a TAG field value as lowercase hex. Raw values would be split on
// the TAG separator and trimmed by the index, so "a,b" would match "a" and "b".
func tagValue(v string) string {
	return hex.EncodeToString([]byte(v))
}

// buildHashFields flattens an entry for HSET. The full metadata is kept as JSON;
// documentId, chunkIndex and configured tag fields are duplicated as indexable fields,
// tags in tagValue form.
func buildHashFields(e domain.VectorEntry, tagFields []string) (map[string]string, error) {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata %s: %w", e.ID, err)
	}

	m := make(map[string]string, 5+len(tagFields))
	m[fieldContent] = e.Content
	m[fieldVector] = vectorToBytes(e.Vector)
	m[fieldMetadata] = string(meta)

	if v, ok := e.Metadata[domain.MetaDocumentID].(string); ok {
		m[domain.MetaDocumentID] = tagValue(v)
	}
	if n, ok := number(e.Metadata[domain.MetaChunkIndex]); ok {
		m[domain.MetaChunkIndex] = strconv.FormatFloat(n, 'f', -1, 64)
	}
	for _, f := range tagFields {
		switch v := e.Metadata[f].(type) {
		case string:
			m[f] = tagValue(v)
		case bool:
			m[f] = tagValue(strconv.FormatBool(v))
		}
	}
	return m, nil
}

// parseMetadata decodes the JSON metadata field; a broken payload yields nil.
func parseMetadata(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
