// Package config loads and validates analytica configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/JakeFAU/analytica/internal/classifier"
	"github.com/JakeFAU/analytica/internal/logging"
	"github.com/JakeFAU/analytica/internal/session"
	"github.com/JakeFAU/analytica/internal/social"
	"github.com/JakeFAU/analytica/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. ANALYTICA_PLATFORM_PASSWORD.
const EnvPrefix = "ANALYTICA"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig           `mapstructure:"server"`
	Auth         AuthConfig             `mapstructure:"auth"`
	Logging      LoggingConfig          `mapstructure:"logging"`
	Platform     PlatformConfig         `mapstructure:"platform"`
	Browser      BrowserConfig          `mapstructure:"browser"`
	Collector    CollectorConfig        `mapstructure:"collector"`
	Preprocess   PreprocessConfig       `mapstructure:"preprocess"`
	Translate    TranslateConfig        `mapstructure:"translate"`
	Redis        RedisConfig            `mapstructure:"redis"`
	Inference    InferenceConfig        `mapstructure:"inference"`
	Pipeline     PipelineConfig         `mapstructure:"pipeline"`
	DB           DBConfig               `mapstructure:"db"`
	Storage      StorageConfig          `mapstructure:"storage"`
	PubSub       PubSubConfig           `mapstructure:"pubsub"`
	Scheduler    SchedulerConfig        `mapstructure:"scheduler"`
	StandardJobs map[string]StandardJob `mapstructure:"standard_jobs"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig guards the /v1 routes with an API key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PlatformConfig holds the target site and the account used to log in.
type PlatformConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	LoginURL string `mapstructure:"login_url"`
	Email    string `mapstructure:"email"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// BrowserConfig configures the headless Chrome process.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	UserAgent      string        `mapstructure:"user_agent"`
	ExecPath       string        `mapstructure:"exec_path"`
	MaxTabs        int           `mapstructure:"max_tabs"`
	OpTimeout      time.Duration `mapstructure:"op_timeout"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
}

// CollectorConfig governs the scroll loop.
type CollectorConfig struct {
	Window               int           `mapstructure:"window"`
	MaxStagnation        int           `mapstructure:"max_stagnation"`
	ScrollStep           int           `mapstructure:"scroll_step"`
	ScrollSettle         time.Duration `mapstructure:"scroll_settle"`
	NavSettle            time.Duration `mapstructure:"nav_settle"`
	NavigationsPerMinute float64       `mapstructure:"navigations_per_minute"`
	DefaultLimit         int           `mapstructure:"default_limit"`
}

// PreprocessConfig selects the language classifiers expect.
type PreprocessConfig struct {
	TargetLanguage string  `mapstructure:"target_language"`
	MinConfidence  float64 `mapstructure:"min_confidence"`
}

// TranslateConfig points at a LibreTranslate-compatible server.
type TranslateConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig backs the translation cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// InferenceConfig locates the tokenizer and model servers.
type InferenceConfig struct {
	TokenizerURL string            `mapstructure:"tokenizer_url"`
	ModelURL     string            `mapstructure:"model_url"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	MaxTokens    int               `mapstructure:"max_tokens"`
	LoadTimeout  time.Duration     `mapstructure:"load_timeout"`
	Models       map[string]string `mapstructure:"models"`
}

// PipelineConfig bounds one run.
type PipelineConfig struct {
	CollectTimeout      time.Duration `mapstructure:"collect_timeout"`
	ClassifyConcurrency int           `mapstructure:"classify_concurrency"`
}

// DBConfig controls access to Postgres. An empty DSN keeps posts in memory.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// StorageConfig selects where run archives are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds the run summary topic. An empty project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SchedulerConfig sizes the job queue and worker pool.
type SchedulerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Concurrency int    `mapstructure:"concurrency"`
	QueueDepth  int    `mapstructure:"queue_depth"`
	Timezone    string `mapstructure:"timezone"`
	// JobTimeout bounds one queued run end to end. Zero disables the bound.
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// StandardJob is a named collection that can run on a schedule or on demand.
type StandardJob struct {
	Kind       social.TargetKind `mapstructure:"kind"`
	Target     string            `mapstructure:"target"`
	Limit      int               `mapstructure:"limit"`
	Recency    social.Recency    `mapstructure:"recency"`
	Dimensions []string          `mapstructure:"dimensions"`
	// Schedule is a standard five-field cron expression. Empty means on demand only.
	Schedule string `mapstructure:"schedule"`
}

// Request returns the collection request for the job.
func (j StandardJob) Request(defaultLimit int) social.Request {
	return social.Request{
		Kind:    j.Kind,
		Target:  j.Target,
		Limit:   j.Limit,
		Recency: j.Recency,
	}.WithDefaults(defaultLimit)
}

// ParsedDimensions returns the job's dimensions, or every dimension when none are set.
func (j StandardJob) ParsedDimensions() ([]classifier.Dimension, error) {
	if len(j.Dimensions) == 0 {
		return classifier.All(), nil
	}
	return classifier.ParseDimensions(j.Dimensions)
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDotEnv exports variables from a dotenv file. A missing file is not an error,
// and variables already set in the environment win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("platform.base_url", "https://twitter.com")
	// Credentials have empty defaults so AutomaticEnv can fill them during Unmarshal.
	v.SetDefault("platform.login_url", "")
	v.SetDefault("platform.email", "")
	v.SetDefault("platform.username", "")
	v.SetDefault("platform.password", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_tabs", 4)
	v.SetDefault("browser.op_timeout", 30*time.Second)
	v.SetDefault("browser.probe_timeout", 5*time.Second)
	v.SetDefault("browser.startup_timeout", 45*time.Second)
	v.SetDefault("browser.settle_delay", 3*time.Second)
	v.SetDefault("collector.window", 20)
	v.SetDefault("collector.max_stagnation", 5)
	v.SetDefault("collector.scroll_step", 2000)
	v.SetDefault("collector.scroll_settle", 1500*time.Millisecond)
	v.SetDefault("collector.nav_settle", 1500*time.Millisecond)
	v.SetDefault("collector.navigations_per_minute", 6)
	v.SetDefault("collector.default_limit", social.DefaultLimit)
	v.SetDefault("preprocess.target_language", "en")
	v.SetDefault("preprocess.min_confidence", 0)
	v.SetDefault("translate.enabled", false)
	v.SetDefault("translate.url", "")
	v.SetDefault("translate.api_key", "")
	v.SetDefault("translate.timeout", 10*time.Second)
	v.SetDefault("translate.cache_ttl", 24*time.Hour)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("inference.tokenizer_url", "http://localhost:8000")
	v.SetDefault("inference.model_url", "http://localhost:8001")
	v.SetDefault("inference.timeout", 20*time.Second)
	v.SetDefault("inference.max_tokens", 512)
	v.SetDefault("inference.load_timeout", 30*time.Second)
	v.SetDefault("pipeline.collect_timeout", 5*time.Minute)
	v.SetDefault("pipeline.classify_concurrency", 4)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "posts")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("storage.backend", storage.BackendNone)
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "analytica-runs")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.concurrency", 1)
	v.SetDefault("scheduler.queue_depth", 16)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.job_timeout", 15*time.Minute)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Collector.Window <= 0 {
		return fmt.Errorf("collector.window must be > 0")
	}
	if c.Collector.MaxStagnation <= 0 {
		return fmt.Errorf("collector.max_stagnation must be > 0")
	}
	if c.Collector.DefaultLimit <= 0 {
		return fmt.Errorf("collector.default_limit must be > 0")
	}
	if c.Pipeline.ClassifyConcurrency <= 0 {
		return fmt.Errorf("pipeline.classify_concurrency must be > 0")
	}
	if c.Translate.Enabled && c.Translate.URL == "" {
		return fmt.Errorf("translate.url must be set when translation is enabled")
	}
	switch c.Storage.Backend {
	case storage.BackendNone, storage.BackendMemory, storage.BackendLocal:
	case storage.BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of none, memory, local, gcs", c.Storage.Backend)
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be > 0")
	}
	if c.Scheduler.QueueDepth <= 0 {
		return fmt.Errorf("scheduler.queue_depth must be > 0")
	}
	if c.Scheduler.JobTimeout < 0 {
		return fmt.Errorf("scheduler.job_timeout must be >= 0")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	for name, job := range c.StandardJobs {
		if err := job.validate(c.Collector.DefaultLimit); err != nil {
			return fmt.Errorf("standard_jobs.%s: %w", name, err)
		}
	}
	return nil
}

func (j StandardJob) validate(defaultLimit int) error {
	if err := j.Request(defaultLimit).Validate(); err != nil {
		return err
	}
	if _, err := j.ParsedDimensions(); err != nil {
		return err
	}
	if j.Schedule != "" {
		if _, err := cron.ParseStandard(j.Schedule); err != nil {
			return fmt.Errorf("schedule %q: %w", j.Schedule, err)
		}
	}
	return nil
}

// Credentials returns the platform account used for login.
func (c Config) Credentials() session.Credentials {
	return session.Credentials{
		Email:    c.Platform.Email,
		Username: c.Platform.Username,
		Password: logging.Secret(c.Platform.Password),
	}
}
