// Package progress provides pool.Progress implementations: a plain counter, a
// terminal progress bar, a periodic log line, and a fan-out.
package progress

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Counter counts completions. It is safe for concurrent use.
type Counter struct {
	total atomic.Int64
	done  atomic.Int64
}

func (c *Counter) SetTotal(total int) {
	c.total.Store(int64(total))
}

func (c *Counter) Increment() {
	c.done.Add(1)
}

// Total returns the last total set, or 0.
func (c *Counter) Total() int {
	return int(c.total.Load())
}

// Done returns the number of completions so far.
func (c *Counter) Done() int {
	return int(c.done.Load())
}

// Percent returns completion in [0, 100], or 0 while the total is unknown.
func (c *Counter) Percent() float64 {
	total := c.total.Load()
	if total <= 0 {
		return 0
	}
	return min(float64(c.done.Load())/float64(total)*100, 100)
}

// Logged writes a progress line every n completions and on the last one.
type Logged struct {
	every  int
	logger zerolog.Logger

	mu    sync.Mutex
	total int
	done  int
}

// NewLogged returns a Logged reporter that logs every n completions.
// n below 1 means 1. A nil logger uses the global logger.
func NewLogged(n int, logger *zerolog.Logger) *Logged {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Logged{
		every:  max(n, 1),
		logger: l.With().Str("component", "progress").Logger(),
	}
}

func (l *Logged) SetTotal(total int) {
	l.mu.Lock()
	l.total = total
	l.mu.Unlock()

	l.logger.Info().Int("total", total).Msg("Total known")
}

func (l *Logged) Increment() {
	l.mu.Lock()
	l.done++
	done, total := l.done, l.total
	l.mu.Unlock()

	if done%l.every != 0 && done != total {
		return
	}

	evt := l.logger.Info().Int("done", done)
	if total > 0 {
		evt = evt.Int("total", total).
			Float64("progress_pct", float64(done)/float64(total)*100)
	}
	evt.Msg("Progress")
}

// Reporter is the interface every type in this package implements.
// It matches pool.Progress.
type Reporter interface {
	SetTotal(total int)
	Increment()
}

// Multi forwards every call to all of its reporters, in order.
type Multi []Reporter

func (m Multi) SetTotal(total int) {
	for _, r := range m {
		r.SetTotal(total)
	}
}

func (m Multi) Increment() {
	for _, r := range m {
		r.Increment()
	}
}
