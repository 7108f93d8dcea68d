package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/corpus/internal/catalog/vector"
)

// VectorStore implements the vector.Store port on Redis: one hash per
// point, one set per collection tracking point ids. Each port method
// is a single pipelined round trip, as the port contract requires.
type VectorStore struct {
	rdb *redis.Client
}

// NewVectorStore creates a vector store over an existing client.
func NewVectorStore(c *Client) *VectorStore {
	return &VectorStore{rdb: c.rdb}
}

// Key helpers
func pointKey(collectionID, id string) string {
	return fmt.Sprintf("vec:%s:%s", collectionID, id)
}

func collectionKey(collectionID string) string {
	return fmt.Sprintf("vecidx:%s", collectionID)
}

// UpsertBatch writes points into a collection.
func (s *VectorStore) UpsertBatch(
	ctx context.Context,
	collectionID string,
	points []vector.Point,
) error {
	if len(points) == 0 {
		return nil
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range points {
			payload, err := json.Marshal(p.Payload)
			if err != nil {
				return fmt.Errorf("failed to encode payload for %s: %w", p.ID, err)
			}
			pipe.HSet(ctx, pointKey(collectionID, p.ID),
				"vector", encodeVector(p.Vector),
				"payload", payload,
			)
			pipe.SAdd(ctx, collectionKey(collectionID), p.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteByIDs removes points by id.
func (s *VectorStore) DeleteByIDs(ctx context.Context, collectionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = pointKey(collectionID, id)
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		members := make([]any, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe.SRem(ctx, collectionKey(collectionID), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d points: %w", len(ids), err)
	}
	return nil
}

// DeleteByCollection removes every point in a collection plus its
// index set.
func (s *VectorStore) DeleteByCollection(ctx context.Context, collectionID string) error {
	ids, err := s.rdb.SMembers(ctx, collectionKey(collectionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list collection points: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, pointKey(collectionID, id))
	}
	keys = append(keys, collectionKey(collectionID))

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", collectionID, err)
	}
	return nil
}

// encodeVector packs float32s little-endian, 4 bytes per dimension.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
