package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caretalk/caretalk/internal/models"
)

const (
	envelopeTTL  = 30 * 24 * time.Hour
	rateLimitTTL = time.Minute
)

// RedisStore holds the envelope history and rate-limit counters. History
// writes are a fire-and-forget side effect of broadcast: a failed write is
// a degraded-durability condition, never a broadcast-blocking one.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that shares the pool.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// roomEnvelopesKey returns the key for a room's envelope sorted set.
func roomEnvelopesKey(roomID string) string {
	return fmt.Sprintf("room:%s:envelopes", roomID)
}

// rateLimitKey returns the key for a rate limit counter.
func rateLimitKey(bucket, key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", bucket, key)
}

// AppendEnvelope stores a broadcast envelope in the room history, scored by
// its router-assigned sequence number.
func (s *RedisStore) AppendEnvelope(ctx context.Context, env *models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	key := roomEnvelopesKey(env.RoomID)

	err = s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(env.Sequence),
		Member: string(data),
	}).Err()
	if err != nil {
		return err
	}

	s.client.Expire(ctx, key, envelopeTTL)
	return nil
}

// RoomEnvelopes retrieves envelopes from a room's history, newest first.
// A beforeSeq of 0 means "from the latest".
func (s *RedisStore) RoomEnvelopes(ctx context.Context, roomID string, limit int, beforeSeq uint64) ([]models.Envelope, error) {
	key := roomEnvelopesKey(roomID)

	maxScore := "+inf"
	if beforeSeq > 0 {
		maxScore = fmt.Sprintf("(%d", beforeSeq) // exclusive
	}

	results, err := s.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	envelopes := make([]models.Envelope, 0, len(results))
	for _, data := range results {
		var env models.Envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			continue
		}
		envelopes = append(envelopes, env)
	}

	return envelopes, nil
}

// Allow increments the counter for the bucket/key pair and reports whether
// the caller is still within the limit for the window.
func (s *RedisStore) Allow(ctx context.Context, bucket, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		window = rateLimitTTL
	}
	rkey := rateLimitKey(bucket, key)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.Expire(ctx, rkey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return incr.Val() <= int64(limit), nil
}
