package redis

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/millarag/internal/db"
)

// replaceTx is the number of commands sent per item: MULTI, DEL, HSET, EXEC.
const replaceTx = 4

// ReplaceHashes writes every item as MULTI/DEL/HSET/EXEC, all pipelined in one
// round trip. Each key is replaced atomically so readers never see it missing or
// half written; fields dropped from a new version of a hash do not linger.
func (s *Store) ReplaceHashes(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, 0, replaceTx*len(items))
	for _, item := range items {
		if len(item.Fields) == 0 {
			return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: no fields", item.Key)}
		}
		hset := s.b().Hset().Key(item.Key).FieldValue()
		for _, k := range slices.Sorted(maps.Keys(item.Fields)) {
			hset = hset.FieldValue(k, item.Fields[k])
		}
		cmds = append(cmds,
			s.b().Multi().Build(),
			s.b().Del().Key(item.Key).Build(),
			hset.Build(),
			s.b().Exec().Build(),
		)
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, item := range items {
		if op, err := txError(results[i*replaceTx : (i+1)*replaceTx]); err != nil {
			return &db.Error{Op: op, Err: fmt.Errorf("key %s: %w", item.Key, err)}
		}
	}
	return nil
}

// txError reports the first failure of a MULTI/DEL/HSET/EXEC block: a queueing
// error, an aborted EXEC or an error reply inside the EXEC array.
func txError(tx []rueidis.RedisResult) (string, error) {
	if err := tx[0].Error(); err != nil {
		return db.OpHSet, err
	}
	if err := tx[1].Error(); err != nil {
		return db.OpDel, err
	}
	if err := tx[2].Error(); err != nil {
		return db.OpHSet, err
	}
	replies, err := tx[3].ToArray()
	if err != nil {
		return db.OpHSet, err
	}
	for j := range replies {
		if err := replies[j].Error(); err != nil {
			if j == 0 {
				return db.OpDel, err
			}
			return db.OpHSet, err
		}
	}
	return "", nil
}

// Del deletes keys. Missing keys are ignored by Redis.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	cmd := s.b().Del().Key(keys...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}
