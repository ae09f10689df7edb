// Package config loads and validates the runtime configuration for the audit
// service. Defaults live in code; every value can be overridden through the
// environment with the AUDITORIA_ prefix (e.g. AUDITORIA_WORKERS=8).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains the full set of runtime options consumed by the service.
type Config struct {
	// HTTP
	ListenAddr string `mapstructure:"listen_addr"`
	APISecret  string `mapstructure:"api_secret"`

	// Job orchestration
	Workers        int           `mapstructure:"workers"`
	QueueCapacity  int           `mapstructure:"queue_capacity"`
	MaxJobDuration time.Duration `mapstructure:"max_job_duration"`
	StageTimeout   time.Duration `mapstructure:"stage_timeout"`
	JobRetention   time.Duration `mapstructure:"job_retention"`

	// Collection adapters
	CollectRetries int           `mapstructure:"collect_retries"`
	CollectBackoff time.Duration `mapstructure:"collect_backoff"`
	MetricsAPIURL  string        `mapstructure:"metrics_api_url"`
	WebClient      string        `mapstructure:"web_client"`

	// LLM gateway
	LLMEndpoint string        `mapstructure:"llm_endpoint"`
	LLMModel    string        `mapstructure:"llm_model"`
	LLMTimeout  time.Duration `mapstructure:"llm_timeout"`

	// Cache
	CacheFastSize int           `mapstructure:"cache_fast_size"`
	CacheSlowSize int           `mapstructure:"cache_slow_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`

	// Prompt security
	MaxPromptLength int `mapstructure:"max_prompt_length"`
	MaxJSONDepth    int `mapstructure:"max_json_depth"`

	// Storage
	StoragePath string `mapstructure:"storage_path"`
}

// minSecretLength is the minimum accepted API secret size.
const minSecretLength = 32

// Load reads configuration from the environment on top of built-in defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("api_secret", "")
	v.SetDefault("workers", 4)
	v.SetDefault("queue_capacity", 32)
	v.SetDefault("max_job_duration", 5*time.Minute)
	v.SetDefault("stage_timeout", 60*time.Second)
	v.SetDefault("job_retention", 30*time.Minute)
	v.SetDefault("collect_retries", 2)
	v.SetDefault("collect_backoff", 500*time.Millisecond)
	v.SetDefault("metrics_api_url", "http://localhost:8081/pagespeed")
	v.SetDefault("web_client", "nethttp")
	v.SetDefault("llm_endpoint", "http://localhost:11434")
	v.SetDefault("llm_model", "llama3")
	v.SetDefault("llm_timeout", 90*time.Second)
	v.SetDefault("cache_fast_size", 64)
	v.SetDefault("cache_slow_size", 512)
	v.SetDefault("cache_ttl", 10*time.Minute)
	v.SetDefault("max_prompt_length", 8000)
	v.SetDefault("max_json_depth", 5)
	v.SetDefault("storage_path", "auditoria.db")

	v.SetEnvPrefix("AUDITORIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without touching the environment.
// Used by tests and as a fallback for nil configs.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		Workers:         4,
		QueueCapacity:   32,
		MaxJobDuration:  5 * time.Minute,
		StageTimeout:    60 * time.Second,
		JobRetention:    30 * time.Minute,
		CollectRetries:  2,
		CollectBackoff:  500 * time.Millisecond,
		MetricsAPIURL:   "http://localhost:8081/pagespeed",
		WebClient:       "nethttp",
		LLMEndpoint:     "http://localhost:11434",
		LLMModel:        "llama3",
		LLMTimeout:      90 * time.Second,
		CacheFastSize:   64,
		CacheSlowSize:   512,
		CacheTTL:        10 * time.Minute,
		MaxPromptLength: 8000,
		MaxJSONDepth:    5,
		StoragePath:     "auditoria.db",
	}
}

// Validate checks every field and returns one diagnostic per problem so
// startup failures name the exact offending settings instead of the first one.
func (c *Config) Validate() []string {
	var problems []string

	if c.ListenAddr == "" {
		problems = append(problems, "listen_addr must not be empty")
	}
	if c.APISecret != "" && len(c.APISecret) < minSecretLength {
		problems = append(problems, fmt.Sprintf("api_secret must be at least %d characters, got %d", minSecretLength, len(c.APISecret)))
	}
	if c.Workers < 1 {
		problems = append(problems, "workers must be >= 1")
	}
	if c.QueueCapacity < 1 {
		problems = append(problems, "queue_capacity must be >= 1")
	}
	if c.MaxJobDuration <= 0 {
		problems = append(problems, "max_job_duration must be positive")
	}
	if c.StageTimeout <= 0 {
		problems = append(problems, "stage_timeout must be positive")
	}
	if c.StageTimeout > c.MaxJobDuration {
		problems = append(problems, "stage_timeout must not exceed max_job_duration")
	}
	if c.CollectRetries < 0 {
		problems = append(problems, "collect_retries must be >= 0")
	}
	if c.WebClient != "nethttp" && c.WebClient != "chromedp" {
		problems = append(problems, fmt.Sprintf("web_client must be nethttp or chromedp, got %q", c.WebClient))
	}
	if c.LLMEndpoint == "" {
		problems = append(problems, "llm_endpoint must not be empty")
	}
	if c.LLMModel == "" {
		problems = append(problems, "llm_model must not be empty")
	}
	if c.CacheFastSize < 1 || c.CacheSlowSize < 1 {
		problems = append(problems, "cache tier sizes must be >= 1")
	}
	if c.CacheSlowSize < c.CacheFastSize {
		problems = append(problems, "cache_slow_size must be >= cache_fast_size")
	}
	if c.CacheTTL <= 0 {
		problems = append(problems, "cache_ttl must be positive")
	}
	if c.MaxPromptLength < 100 {
		problems = append(problems, "max_prompt_length must be >= 100")
	}
	if c.MaxJSONDepth < 1 {
		problems = append(problems, "max_json_depth must be >= 1")
	}
	if c.StoragePath == "" {
		problems = append(problems, "storage_path must not be empty")
	}

	return problems
}
