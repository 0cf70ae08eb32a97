package redis

import (
	"context"
	"strings"

	"github.com/kailas-cloud/millarag/internal/db"
)

// DBSize returns the number of keys in the selected database.
func (s *Store) DBSize(ctx context.Context) (int64, error) {
	n, err := s.do(ctx, s.b().Dbsize().Build()).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpDBSize, Err: err}
	}
	return n, nil
}

// Info runs INFO <section> and parses the "key:value" lines.
func (s *Store) Info(ctx context.Context, section string) (map[string]string, error) {
	raw, err := s.do(ctx, s.b().Info().Section(section).Build()).ToString()
	if err != nil {
		return nil, &db.Error{Op: db.OpInfo, Err: err}
	}
	return parseInfo(raw), nil
}

func parseInfo(raw string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
