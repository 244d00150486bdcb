// Package config loads the YAML job file used by the CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ocyss/asyncpool/internal/algorithms"
)

const (
	DefaultConfigFile  = "job.yaml"
	DefaultConcurrency = 1000
	DefaultPageSize    = 5000
	DefaultBatchSize   = 2500
	DefaultTimeout     = 30 * time.Second
	DefaultRedisKey    = "asyncpool:results"
	DefaultLogLevel    = "info"
)

// Job modes.
const (
	ModeAll       = "all"
	ModeSelection = "selection"
)

// Sink types.
const (
	SinkAPI    = "api"
	SinkRedis  = "redis"
	SinkStdout = "stdout"
)

// Transform operations.
const (
	OpTrim  = "trim"
	OpUpper = "upper"
	OpLower = "lower"
	OpSet   = "set"
	OpCopy  = "copy"
	OpClear = "clear"
)

var knownOps = map[string]bool{
	OpTrim: true, OpUpper: true, OpLower: true, OpSet: true, OpCopy: true, OpClear: true,
}

type Config struct {
	API     APIConfig     `yaml:"api"`
	Job     JobConfig     `yaml:"job"`
	Sink    SinkConfig    `yaml:"sink"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type JobConfig struct {
	Name string `yaml:"name"`
	// Table and View default to the current selection when empty.
	Table       string      `yaml:"table,omitempty"`
	View        string      `yaml:"view,omitempty"`
	Mode        string      `yaml:"mode"`
	Concurrency int         `yaml:"concurrency"`
	PageSize    int         `yaml:"page_size,omitempty"`
	RateLimit   float64     `yaml:"rate_limit,omitempty"`
	Burst       int         `yaml:"burst,omitempty"`
	Retry       RetryConfig `yaml:"retry,omitempty"`
	Transforms  []Transform `yaml:"transforms"`
	// FailureView creates a filtered grid view listing the failed records.
	FailureView bool `yaml:"failure_view,omitempty"`
}

type RetryConfig struct {
	Attempts     int           `yaml:"attempts,omitempty"`
	Backoff      string        `yaml:"backoff,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     time.Duration `yaml:"max_delay,omitempty"`
	Jitter       float64       `yaml:"jitter,omitempty"`
}

// Enabled reports whether failed batch writes should be retried.
func (r RetryConfig) Enabled() bool {
	return r.Attempts > 1
}

// Transform is one field operation. Field and From are field names.
type Transform struct {
	Op    string `yaml:"op"`
	Field string `yaml:"field"`
	From  string `yaml:"from,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

type SinkConfig struct {
	Type      string      `yaml:"type"`
	BatchSize int         `yaml:"batch_size"`
	Redis     RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	Key      string        `yaml:"key,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type MetricsConfig struct {
	// Addr of the /metrics listener, e.g. ":9090". Empty disables it.
	Addr string `yaml:"addr,omitempty"`
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.Job.Name == "" {
		c.Job.Name = "job"
	}
	if c.Job.Mode == "" {
		c.Job.Mode = ModeAll
	}
	if c.Job.Concurrency == 0 {
		c.Job.Concurrency = DefaultConcurrency
	}
	if c.Job.PageSize == 0 {
		c.Job.PageSize = DefaultPageSize
	}
	if c.Job.RateLimit > 0 && c.Job.Burst == 0 {
		c.Job.Burst = 1
	}
	if c.Sink.Type == "" {
		c.Sink.Type = SinkAPI
	}
	if c.Sink.BatchSize == 0 {
		c.Sink.BatchSize = DefaultBatchSize
	}
	if c.Sink.Type == SinkRedis && c.Sink.Redis.Key == "" {
		c.Sink.Redis.Key = DefaultRedisKey
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}

	switch c.Job.Mode {
	case ModeAll, ModeSelection:
	default:
		errs = append(errs, fmt.Errorf("job.mode must be %q or %q, got %q", ModeAll, ModeSelection, c.Job.Mode))
	}
	if c.Job.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("job.concurrency must be >= 1, got %d", c.Job.Concurrency))
	}
	if c.Job.PageSize < 1 {
		errs = append(errs, fmt.Errorf("job.page_size must be >= 1, got %d", c.Job.PageSize))
	}
	if c.Job.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("job.rate_limit must be >= 0, got %v", c.Job.RateLimit))
	}
	if c.Job.Retry.Attempts < 0 {
		errs = append(errs, fmt.Errorf("job.retry.attempts must be >= 0, got %d", c.Job.Retry.Attempts))
	}
	if _, err := algorithms.ParseKind(c.Job.Retry.Backoff); err != nil {
		errs = append(errs, fmt.Errorf("job.retry.backoff: %w", err))
	}

	if len(c.Job.Transforms) == 0 {
		errs = append(errs, errors.New("job.transforms must not be empty"))
	}
	for i, t := range c.Job.Transforms {
		if err := t.validate(); err != nil {
			errs = append(errs, fmt.Errorf("job.transforms[%d]: %w", i, err))
		}
	}

	switch c.Sink.Type {
	case SinkAPI, SinkStdout:
	case SinkRedis:
		if c.Sink.Redis.Addr == "" {
			errs = append(errs, errors.New("sink.redis.addr is required for the redis sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("sink.type must be one of api, redis, stdout, got %q", c.Sink.Type))
	}
	if c.Sink.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("sink.batch_size must be >= 1, got %d", c.Sink.BatchSize))
	}

	return errors.Join(errs...)
}

func (t Transform) validate() error {
	op := strings.ToLower(t.Op)
	if !knownOps[op] {
		return fmt.Errorf("unknown op %q", t.Op)
	}
	if t.Field == "" {
		return fmt.Errorf("%s: field is required", op)
	}
	if op == OpCopy && t.From == "" {
		return errors.New("copy: from is required")
	}
	if op == OpSet && t.Value == nil {
		return errors.New("set: value is required")
	}
	return nil
}
