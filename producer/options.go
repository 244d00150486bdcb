package producer

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPageSize matches the largest page the record API serves.
	DefaultPageSize = 5000
	defaultLogEvery = 10
)

// Option configures Bulk and Selection.
type Option func(*config)

type config struct {
	pageSize    int
	pageTimeout time.Duration
	logEvery    int
	progress    Totaler
	logger      zerolog.Logger
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		pageSize: DefaultPageSize,
		logEvery: defaultLogEvery,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	cfg.logger = cfg.logger.With().Str("component", "producer").Logger()
	return cfg
}

// WithPageSize sets the page size requested from the source. Defaults to 5000.
func WithPageSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithPageTimeout bounds each page or resolve call. Zero means no timeout.
func WithPageTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pageTimeout = d
		}
	}
}

// WithProgress registers the counter that receives the total.
func WithProgress(t Totaler) Option {
	return func(c *config) {
		c.progress = t
	}
}

// WithLogger sets the logger. Defaults to the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithLogEvery logs feed progress every n pages (Bulk) or n items (Selection).
// Zero disables progress logging.
func WithLogEvery(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.logEvery = n
		}
	}
}
