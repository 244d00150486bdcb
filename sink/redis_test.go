package sink

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/ocyss/asyncpool/pool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis connects to a local Redis and skips the test when none runs.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func itemID(it item) string { return it.ID }

func TestRedis_Write(t *testing.T) {
	client := setupTestRedis(t)
	s := NewRedis(client, "test:job", itemID, WithLogger(zerolog.Nop()))
	testRedisSink(t, s)
}

func TestRedis_TTL(t *testing.T) {
	client := setupTestRedis(t)
	s := NewRedis(client, "test:ttl", itemID, WithTTL(time.Minute), WithLogger(zerolog.Nop()))

	ctx := context.Background()
	if err := s.Write(ctx, []item{{"a", 1}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for _, key := range []string{"test:ttl", s.BatchesKey()} {
		ttl, err := client.TTL(ctx, key).Result()
		if err != nil || ttl <= 0 || ttl > time.Minute {
			t.Errorf("%s: unexpected ttl %v, %v", key, ttl, err)
		}
	}
}

func TestRedis_AsPoolSink(t *testing.T) {
	client := setupTestRedis(t)
	s := NewRedis(client, "test:pool", itemID, WithLogger(zerolog.Nop()))

	p, err := pool.New(func(ctx context.Context, n int) (item, error) {
		return item{ID: fmt.Sprintf("id-%02d", n), Value: n * n}, nil
	}, 4, pool.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.ResultHooks(s.Write, 10); err != nil {
		t.Fatal(err)
	}
	for i := range 25 {
		_ = p.Run(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ledger, err := p.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}

	count, _ := s.Count(ctx)
	batches, _ := s.Batches(ctx)
	if count != 25 || len(batches) != 3 || ledger.Batches != 3 {
		t.Errorf("count=%d batches=%d ledger=%+v", count, len(batches), ledger)
	}
	got, err := s.Load(ctx, "id-07")
	if err != nil || got.Value != 49 {
		t.Errorf("Load: %+v, %v", got, err)
	}
}

// testRedisSink is shared with the container-backed integration test.
func testRedisSink(t *testing.T, s *Redis[item]) {
	t.Helper()
	ctx := context.Background()

	if err := s.Write(ctx, []item{{"a", 1}, {"b", 2}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(ctx, []item{{"c", 3}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(ctx, nil); err != nil {
		t.Fatalf("empty Write: %v", err)
	}

	count, err := s.Count(ctx)
	if err != nil || count != 3 {
		t.Errorf("expected 3 stored results, got %d (%v)", count, err)
	}

	got, err := s.Load(ctx, "b")
	if err != nil || got != (item{"b", 2}) {
		t.Errorf("Load(b) = %+v, %v", got, err)
	}
	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	batches, err := s.Batches(ctx)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batch summaries, got %d", len(batches))
	}
	if batches[0].Seq != 1 || !slices.Equal(batches[0].IDs, []string{"a", "b"}) {
		t.Errorf("unexpected first summary %+v", batches[0])
	}
	if batches[1].Seq != 2 || batches[1].Size != 1 {
		t.Errorf("unexpected second summary %+v", batches[1])
	}
}
