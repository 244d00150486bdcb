package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by Redis.Load for unknown ids.
var ErrNotFound = errors.New("sink: not found")

// BatchSummary is appended to "<key>:batches" for every written batch.
type BatchSummary struct {
	Seq       int64     `json:"seq"`
	Size      int       `json:"size"`
	IDs       []string  `json:"ids"`
	WrittenAt time.Time `json:"written_at"`
}

// Redis stores results in a hash keyed by result id, one pipeline per batch:
// HSET <key> <id> <json> for each result and RPUSH <key>:batches <summary>.
type Redis[R any] struct {
	client redis.Cmdable
	key    string
	id     func(R) string
	ttl    time.Duration
	seq    atomic.Int64
	logger zerolog.Logger
}

// RedisOption configures a Redis sink.
type RedisOption func(*redisConfig)

type redisConfig struct {
	ttl    time.Duration
	logger zerolog.Logger
}

// WithTTL expires both keys ttl after the latest batch.
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger. Defaults to the global zerolog logger.
func WithLogger(logger zerolog.Logger) RedisOption {
	return func(c *redisConfig) {
		c.logger = logger
	}
}

// NewRedis creates a Redis sink writing under key. id extracts the hash field
// of each result.
func NewRedis[R any](client redis.Cmdable, key string, id func(R) string, opts ...RedisOption) *Redis[R] {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if id == nil {
		panic("id function cannot be nil")
	}

	cfg := redisConfig{logger: log.Logger}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Redis[R]{
		client: client,
		key:    key,
		id:     id,
		ttl:    cfg.ttl,
		logger: cfg.logger.With().Str("component", "sink").Str("key", key).Logger(),
	}
}

// BatchesKey is the list holding batch summaries.
func (s *Redis[R]) BatchesKey() string {
	return s.key + ":batches"
}

// Write stores one batch atomically. It has the pool.SinkFunc signature.
func (s *Redis[R]) Write(ctx context.Context, batch []R) error {
	if len(batch) == 0 {
		return nil
	}

	summary := BatchSummary{
		Seq:       s.seq.Add(1),
		Size:      len(batch),
		IDs:       make([]string, len(batch)),
		WrittenAt: time.Now().UTC(),
	}

	values := make([]any, 0, len(batch)*2)
	for i, r := range batch {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode result %d: %w", i, err)
		}
		id := s.id(r)
		summary.IDs[i] = id
		values = append(values, id, data)
	}

	summaryData, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode batch summary: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key, values...)
	pipe.RPush(ctx, s.BatchesKey(), summaryData)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
		pipe.Expire(ctx, s.BatchesKey(), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write batch %d: %w", summary.Seq, err)
	}

	s.logger.Debug().
		Int64("seq", summary.Seq).
		Int("size", summary.Size).
		Msg("Batch stored")
	return nil
}

// Load reads one stored result.
func (s *Redis[R]) Load(ctx context.Context, id string) (R, error) {
	var out R
	data, err := s.client.HGet(ctx, s.key, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, ErrNotFound
		}
		return out, fmt.Errorf("redis hget: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode result %q: %w", id, err)
	}
	return out, nil
}

// Batches returns every batch summary in write order.
func (s *Redis[R]) Batches(ctx context.Context) ([]BatchSummary, error) {
	raw, err := s.client.LRange(ctx, s.BatchesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]BatchSummary, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal([]byte(r), &out[i]); err != nil {
			return nil, fmt.Errorf("decode batch summary %d: %w", i, err)
		}
	}
	return out, nil
}

// Count returns the number of stored results.
func (s *Redis[R]) Count(ctx context.Context) (int64, error) {
	return s.client.HLen(ctx, s.key).Result()
}
