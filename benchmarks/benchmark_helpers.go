package benchmarks

import (
	"context"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/ocyss/asyncpool/pool"
	"github.com/rs/zerolog"
)

// =============================================================================
// Benchmark Workload Generators
// =============================================================================

// cpuBoundWork simulates a CPU-intensive operation
func cpuBoundWork(iterations int) pool.TaskFunc[int, int] {
	return func(ctx context.Context, task int) (int, error) {
		result := 0
		for i := range iterations {
			result += i * task
		}
		return result, nil
	}
}

// ioBoundWork simulates an API call with a fixed latency
func ioBoundWork(delay time.Duration) pool.TaskFunc[int, int] {
	return func(ctx context.Context, task int) (int, error) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return task * 2, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// mixedWork simulates a realistic workload with variable processing time
func mixedWork() pool.TaskFunc[int, int] {
	return func(ctx context.Context, task int) (int, error) {
		// 0-4ms per item
		time.Sleep(time.Duration(task%5) * time.Millisecond)

		result := 0
		for i := range 1000 {
			result += i
		}
		return result + task, nil
	}
}

// discardSink accepts every batch.
func discardSink(ctx context.Context, batch []int) error {
	return nil
}

// slowSink simulates a batch write endpoint with a fixed round trip.
func slowSink(delay time.Duration) pool.SinkFunc[int] {
	return func(ctx context.Context, batch []int) error {
		time.Sleep(delay)
		return nil
	}
}

// runPool submits taskCount items to a fresh pool and waits for it to settle.
func runPool(b *testing.B, fn pool.TaskFunc[int, int], limit, taskCount int, sink pool.SinkFunc[int], batchSize int, opts ...pool.Option) *pool.Ledger[int] {
	b.Helper()

	opts = append([]pool.Option{pool.WithName("bench"), pool.WithLogger(zerolog.Nop())}, opts...)
	p, err := pool.New(fn, limit, opts...)
	if err != nil {
		b.Fatal(err)
	}
	if sink != nil {
		if err := p.ResultHooks(sink, batchSize); err != nil {
			b.Fatal(err)
		}
	}

	for i := range taskCount {
		if err := p.Run(i); err != nil {
			b.Fatal(err)
		}
	}

	ledger, err := p.All(context.Background())
	if err != nil {
		b.Fatal(err)
	}
	if ledger.Submitted != taskCount {
		b.Fatalf("submitted %d, want %d", ledger.Submitted, taskCount)
	}
	return ledger
}

// reportThroughput reports tasks/sec for taskCount items per iteration.
func reportThroughput(b *testing.B, taskCount int) float64 {
	nsPerOp := float64(b.Elapsed().Nanoseconds()) / float64(b.N)
	tasksPerSec := (float64(taskCount) / nsPerOp) * 1e9
	b.ReportMetric(tasksPerSec, "tasks/sec")
	return tasksPerSec
}

func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	// Nearest-rank: p=0.50 over 100 elements is index 49.
	index := max(int(math.Round(p*float64(len(sorted)-1))), 0)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
