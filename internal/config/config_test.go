package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
api:
  base_url: https://base.example.com
  token: ${ASYNCPOOL_TEST_TOKEN}
job:
  name: normalize
  table: tbl1
  mode: selection
  concurrency: 50
  retry:
    attempts: 3
    backoff: jittered
    initial_delay: 200ms
    max_delay: 5s
  transforms:
    - op: trim
      field: Name
    - op: set
      field: Status
      value: done
    - op: copy
      from: Name
      field: Title
sink:
  type: redis
  batch_size: 100
  redis:
    addr: localhost:6379
    ttl: 24h
log:
  level: debug
metrics:
  addr: ":9090"
`

func TestParse(t *testing.T) {
	t.Setenv("ASYNCPOOL_TEST_TOKEN", "s3cret")

	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.API.Token != "s3cret" {
		t.Errorf("token not expanded: %q", cfg.API.Token)
	}
	if cfg.API.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", cfg.API.Timeout)
	}
	if cfg.Job.Mode != ModeSelection || cfg.Job.Concurrency != 50 || cfg.Job.PageSize != DefaultPageSize {
		t.Errorf("unexpected job %+v", cfg.Job)
	}
	if !cfg.Job.Retry.Enabled() || cfg.Job.Retry.InitialDelay != 200*time.Millisecond || cfg.Job.Retry.MaxDelay != 5*time.Second {
		t.Errorf("unexpected retry %+v", cfg.Job.Retry)
	}
	if len(cfg.Job.Transforms) != 3 || cfg.Job.Transforms[1].Value != "done" || cfg.Job.Transforms[2].From != "Name" {
		t.Errorf("unexpected transforms %+v", cfg.Job.Transforms)
	}
	if cfg.Sink.Redis.Key != DefaultRedisKey || cfg.Sink.Redis.TTL != 24*time.Hour {
		t.Errorf("unexpected redis config %+v", cfg.Sink.Redis)
	}
	if cfg.Metrics.Addr != ":9090" || cfg.Log.Level != "debug" {
		t.Errorf("unexpected ambient config %+v %+v", cfg.Metrics, cfg.Log)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
api:
  base_url: http://localhost:8080
job:
  transforms:
    - op: upper
      field: Code
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Job.Mode != ModeAll || cfg.Job.Concurrency != DefaultConcurrency {
		t.Errorf("unexpected job defaults %+v", cfg.Job)
	}
	if cfg.Sink.Type != SinkAPI || cfg.Sink.BatchSize != DefaultBatchSize {
		t.Errorf("unexpected sink defaults %+v", cfg.Sink)
	}
	if cfg.Job.Retry.Enabled() {
		t.Error("retry should be off by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }, "api.base_url is required"},
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }, "not an absolute URL"},
		{"bad mode", func(c *Config) { c.Job.Mode = "some" }, "job.mode"},
		{"zero concurrency", func(c *Config) { c.Job.Concurrency = 0 }, "job.concurrency must be >= 1"},
		{"zero batch size", func(c *Config) { c.Sink.BatchSize = 0 }, "sink.batch_size must be >= 1"},
		{"unknown op", func(c *Config) { c.Job.Transforms[0].Op = "reverse" }, `unknown op "reverse"`},
		{"copy without from", func(c *Config) { c.Job.Transforms = []Transform{{Op: OpCopy, Field: "A"}} }, "copy: from is required"},
		{"set without value", func(c *Config) { c.Job.Transforms = []Transform{{Op: OpSet, Field: "A"}} }, "set: value is required"},
		{"no transforms", func(c *Config) { c.Job.Transforms = nil }, "job.transforms must not be empty"},
		{"bad sink", func(c *Config) { c.Sink.Type = "kafka" }, "sink.type"},
		{"redis without addr", func(c *Config) { c.Sink.Type = SinkRedis }, "sink.redis.addr"},
		{"bad backoff", func(c *Config) { c.Job.Retry.Backoff = "linear" }, "job.retry.backoff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				API: APIConfig{BaseURL: "https://base.example.com"},
				Job: JobConfig{Transforms: []Transform{{Op: OpTrim, Field: "Name"}}},
			}
			cfg.ApplyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Job.Concurrency = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"api.base_url", "job.concurrency", "job.transforms"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}

	t.Setenv("ASYNCPOOL_TEST_TOKEN", "tok")
	path := filepath.Join(dir, "job.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	out := filepath.Join(dir, "saved.yaml")
	if err := Save(cfg, out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, err := Load(out)
	if err != nil {
		t.Fatalf("Load saved: %v", err)
	}
	if again.Job.Name != "normalize" || again.Sink.Redis.TTL != 24*time.Hour || len(again.Job.Transforms) != 3 {
		t.Errorf("round trip lost data: %+v", again)
	}

	if err := Save(&Config{}, out); err == nil {
		t.Error("Save should reject an invalid configuration")
	}
}
