// Package algorithms holds the retry delay schedules used by pool.Retrying.
package algorithms

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Kind selects a backoff schedule.
type Kind int

const (
	// Exponential doubles the delay on every retry (default).
	Exponential Kind = iota
	// Jittered is exponential with a random ±Jitter fraction applied.
	Jittered
	// Decorrelated picks a random delay between Initial and three times the previous delay.
	Decorrelated
)

func (k Kind) String() string {
	switch k {
	case Jittered:
		return "jittered"
	case Decorrelated:
		return "decorrelated"
	default:
		return "exponential"
	}
}

// ParseKind maps a config value to a Kind. The empty string means Exponential.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exponential":
		return Exponential, nil
	case "jittered", "jitter":
		return Jittered, nil
	case "decorrelated":
		return Decorrelated, nil
	default:
		return Exponential, fmt.Errorf("unknown backoff %q", s)
	}
}

// maxShift keeps 1<<attempt from overflowing.
const maxShift = 62

// Config describes a schedule.
type Config struct {
	Kind    Kind
	Initial time.Duration
	Max     time.Duration
	// Jitter is the ±fraction used by Jittered, clamped to [0, 1].
	Jitter float64
}

// Backoff yields the delay before each retry. attempt is 0 for the first retry.
// Implementations may keep state, so use one Backoff per retried item.
type Backoff interface {
	Next(attempt int) time.Duration
}

// New returns a fresh schedule for cfg. A zero Max means no cap.
func New(cfg Config) Backoff {
	if cfg.Max <= 0 {
		cfg.Max = time.Duration(1<<63 - 1)
	}
	switch cfg.Kind {
	case Jittered:
		return &jittered{cfg: cfg, jitter: clamp(cfg.Jitter, 0, 1)}
	case Decorrelated:
		return &decorrelated{cfg: cfg, prev: cfg.Initial}
	default:
		return exponential{cfg: cfg}
	}
}

type exponential struct {
	cfg Config
}

func (e exponential) Next(attempt int) time.Duration {
	return exponentialDelay(attempt, e.cfg.Initial, e.cfg.Max)
}

type jittered struct {
	cfg    Config
	jitter float64
}

func (j *jittered) Next(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	base := exponentialDelay(attempt, j.cfg.Initial, j.cfg.Max)
	factor := 1 + (rand.Float64()*2-1)*j.jitter // #nosec G404 -- jitter does not need crypto rand
	return clamp(time.Duration(float64(base)*factor), 0, j.cfg.Max)
}

// decorrelated follows the "decorrelated jitter" schedule:
// sleep = min(Max, random(Initial, prev*3)).
type decorrelated struct {
	cfg  Config
	prev time.Duration
}

func (d *decorrelated) Next(attempt int) time.Duration {
	if attempt <= 0 {
		d.prev = d.cfg.Initial
		return d.cfg.Initial
	}

	upper := d.cfg.Max
	if d.prev <= d.cfg.Max/3 {
		upper = d.prev * 3
	}
	span := upper - d.cfg.Initial
	if span <= 0 {
		d.prev = d.cfg.Initial
		return d.cfg.Initial
	}

	d.prev = d.cfg.Initial + time.Duration(rand.Int64N(int64(span))) // #nosec G404
	return d.prev
}

func exponentialDelay(attempt int, initial, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt >= maxShift {
		return maxDelay
	}
	delay := time.Duration(int64(1)<<uint(attempt)) * initial
	if delay > maxDelay || delay < 0 {
		return maxDelay
	}
	return delay
}

func clamp[N int64 | float64 | time.Duration](v, lo, hi N) N {
	return max(lo, min(v, hi))
}
