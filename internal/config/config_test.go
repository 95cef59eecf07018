package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/analytica/internal/classifier"
	"github.com/JakeFAU/analytica/internal/social"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
platform:
  base_url: https://x.com
browser:
  headless: false
  settle_delay: 1500ms
collector:
  window: 30
  max_stagnation: 3
  navigations_per_minute: 12
inference:
  models:
    emotion: emotion-v2
pipeline:
  collect_timeout: 90s
  classify_concurrency: 8
storage:
  backend: gcs
  gcs_bucket: archive
  prefix: analytica
standard_jobs:
  nasa-daily:
    kind: profile
    target: "@nasa"
    limit: 25
    dimensions: [sentiment, emotion]
    schedule: "0 6 * * *"
  golang:
    kind: hashtag
    target: golang
    recency: top
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Browser.Headless || cfg.Browser.SettleDelay != 1500*time.Millisecond {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if cfg.Collector.Window != 30 || cfg.Collector.MaxStagnation != 3 || cfg.Collector.ScrollStep != 2000 {
		t.Fatalf("expected collector overrides merged with defaults: %+v", cfg.Collector)
	}
	if cfg.Pipeline.CollectTimeout != 90*time.Second || cfg.Pipeline.ClassifyConcurrency != 8 {
		t.Fatalf("expected pipeline overrides: %+v", cfg.Pipeline)
	}
	if cfg.Inference.Models["emotion"] != "emotion-v2" {
		t.Fatalf("expected model override, got %v", cfg.Inference.Models)
	}

	job, ok := cfg.StandardJobs["nasa-daily"]
	if !ok {
		t.Fatalf("expected standard job to be loaded: %+v", cfg.StandardJobs)
	}
	req := job.Request(cfg.Collector.DefaultLimit)
	if req.Kind != social.TargetProfile || req.Target != "nasa" || req.Limit != 25 || req.Recency != social.RecencyLatest {
		t.Fatalf("unexpected request %+v", req)
	}
	dims, err := job.ParsedDimensions()
	if err != nil || len(dims) != 2 || dims[1] != classifier.Emotion {
		t.Fatalf("unexpected dimensions %v (err %v)", dims, err)
	}

	golang := cfg.StandardJobs["golang"]
	if got := golang.Request(cfg.Collector.DefaultLimit).Limit; got != social.DefaultLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if dims, _ := golang.ParsedDimensions(); len(dims) != len(classifier.All()) {
		t.Fatalf("expected all dimensions when none are configured, got %v", dims)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Collector.Window != 20 || cfg.Collector.MaxStagnation != 5 {
		t.Fatalf("unexpected collector defaults: %+v", cfg.Collector)
	}
	if cfg.Browser.SettleDelay != 3*time.Second {
		t.Fatalf("unexpected settle delay %v", cfg.Browser.SettleDelay)
	}
	if cfg.Collector.ScrollSettle != 1500*time.Millisecond || cfg.Collector.NavSettle != 1500*time.Millisecond {
		t.Fatalf("unexpected collector pacing: scroll %v nav %v", cfg.Collector.ScrollSettle, cfg.Collector.NavSettle)
	}
	if cfg.Scheduler.JobTimeout != 15*time.Minute {
		t.Fatalf("unexpected job timeout %v", cfg.Scheduler.JobTimeout)
	}
	if cfg.Storage.Backend != "none" || cfg.DB.Table != "posts" {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.Storage, cfg.DB)
	}
}

func TestLoadReadsCredentialsFromEnv(t *testing.T) {
	t.Setenv("ANALYTICA_PLATFORM_USERNAME", "collector_bot")
	t.Setenv("ANALYTICA_PLATFORM_PASSWORD", "hunter2")
	t.Setenv("ANALYTICA_PLATFORM_EMAIL", "bot@example.com")
	t.Setenv("ANALYTICA_SERVER_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port override, got %d", cfg.Server.Port)
	}
	creds := cfg.Credentials()
	if creds.Username != "collector_bot" || creds.Email != "bot@example.com" {
		t.Fatalf("unexpected credentials %#v", creds)
	}
	if creds.Password.Reveal() != "hunter2" {
		t.Fatalf("expected password to be loaded")
	}
	if strings.Contains(creds.String(), "hunter2") {
		t.Fatalf("credentials rendered the password")
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "ANALYTICA_DOTENV_PROBE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing dotenv should be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(key+"=from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write dotenv: %v", err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Fatalf("expected dotenv value, got %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Collector: CollectorConfig{Window: 20, MaxStagnation: 5, DefaultLimit: 50},
		Pipeline:  PipelineConfig{ClassifyConcurrency: 4},
		Storage:   StorageConfig{Backend: "none"},
		Scheduler: SchedulerConfig{Concurrency: 1, QueueDepth: 4, Timezone: "UTC"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	withJob := func(job StandardJob) Config {
		c := base
		c.StandardJobs = map[string]StandardJob{"job": job}
		return c
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "zero window",
			cfg: func() Config {
				c := base
				c.Collector.Window = 0
				return c
			}(),
			want: "collector.window",
		},
		{
			name: "zero stagnation cap",
			cfg: func() Config {
				c := base
				c.Collector.MaxStagnation = 0
				return c
			}(),
			want: "collector.max_stagnation",
		},
		{
			name: "zero classify concurrency",
			cfg: func() Config {
				c := base
				c.Pipeline.ClassifyConcurrency = 0
				return c
			}(),
			want: "pipeline.classify_concurrency",
		},
		{
			name: "translation without url",
			cfg: func() Config {
				c := base
				c.Translate.Enabled = true
				return c
			}(),
			want: "translate.url",
		},
		{
			name: "unknown storage backend",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "s3"
				return c
			}(),
			want: "storage.backend",
		},
		{
			name: "gcs without bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "gcs"
				return c
			}(),
			want: "storage.gcs_bucket",
		},
		{
			name: "negative job timeout",
			cfg: func() Config {
				c := base
				c.Scheduler.JobTimeout = -time.Second
				return c
			}(),
			want: "scheduler.job_timeout",
		},
		{
			name: "bad timezone",
			cfg: func() Config {
				c := base
				c.Scheduler.Timezone = "Mars/Olympus"
				return c
			}(),
			want: "scheduler.timezone",
		},
		{
			name: "job with bad cron",
			cfg:  withJob(StandardJob{Kind: social.TargetHashtag, Target: "go", Schedule: "every day"}),
			want: "standard_jobs.job: schedule",
		},
		{
			name: "job with unknown kind",
			cfg:  withJob(StandardJob{Kind: "list", Target: "go"}),
			want: "unknown target kind",
		},
		{
			name: "job with unknown dimension",
			cfg:  withJob(StandardJob{Kind: social.TargetHashtag, Target: "go", Dimensions: []string{"irony"}}),
			want: "unknown dimension",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
