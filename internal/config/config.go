// Package config provides configuration management for the ingestion pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	LLM           LLMConfig           `yaml:"llm"`
	TOC           TOCConfig           `yaml:"toc"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DatabaseConfig selects and configures the Document Store backend.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds PostgreSQL settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig configures the advisory job-status cache.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings. URL wins over Addr when set.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// LLMConfig configures the OpenAI-compatible chat endpoint.
type LLMConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// Enabled reports whether AI-backed collaborators can be constructed.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// TOCConfig tunes the AI table-of-contents fallback.
type TOCConfig struct {
	FallbackPages  int `yaml:"fallback_pages"`
	MaxPromptChars int `yaml:"max_prompt_chars"`
}

// ExtractionConfig configures the raw page extractor and content side files.
type ExtractionConfig struct {
	Engine         string        `yaml:"engine"` // auto, mineru or fitz
	MinerUPath     string        `yaml:"mineru_path"`
	Backend        string        `yaml:"backend"`
	Lang           string        `yaml:"lang"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	Timeout        time.Duration `yaml:"timeout"`
	DataDir        string        `yaml:"data_dir"`
	WriteSideFiles bool          `yaml:"write_side_files"`
}

// PipelineConfig configures the background runner.
type PipelineConfig struct {
	Workers            int           `yaml:"workers"`
	QueueSize          int           `yaml:"queue_size"`
	TaskTimeout        time.Duration `yaml:"task_timeout"`
	PreselectThreshold float64       `yaml:"preselect_threshold"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LoadDotEnv loads .env files from the working directory and its parent.
// Missing files are ignored; variables already set win.
func LoadDotEnv() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Database.Driver == "sqlite" && cfg.Database.SQLite.Path != ":memory:" {
			cfg.Database.SQLite.Path = ResolveRelativePath(path, cfg.Database.SQLite.Path)
		}
		cfg.Extraction.DataDir = ResolveRelativePath(path, cfg.Extraction.DataDir)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "data/lazylearn.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        30 * time.Minute,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "lazylearn:",
			},
		},
		LLM: LLMConfig{
			BaseURL:    "https://openrouter.ai/api/v1",
			Model:      "deepseek/deepseek-chat",
			Timeout:    2 * time.Minute,
			MaxRetries: 3,
		},
		TOC: TOCConfig{
			FallbackPages:  5,
			MaxPromptChars: 8000,
		},
		Extraction: ExtractionConfig{
			Engine:         "auto",
			MinerUPath:     "mineru",
			Backend:        "pipeline",
			Lang:           "en",
			MaxConcurrent:  1,
			Timeout:        6 * time.Hour,
			DataDir:        "data",
			WriteSideFiles: true,
		},
		Pipeline: PipelineConfig{
			Workers:            2,
			QueueSize:          64,
			TaskTimeout:        12 * time.Hour,
			PreselectThreshold: 0.6,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires database.postgres.dsn")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Extraction.Engine {
	case "auto", "mineru", "fitz":
	default:
		return fmt.Errorf("invalid extraction engine: %s", c.Extraction.Engine)
	}

	if c.Extraction.MaxConcurrent < 1 {
		return fmt.Errorf("extraction.max_concurrent must be at least 1")
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}

	if c.Pipeline.PreselectThreshold < 0 || c.Pipeline.PreselectThreshold > 1 {
		return fmt.Errorf("pipeline.preselect_threshold must be between 0 and 1")
	}

	if c.TOC.FallbackPages < 1 {
		return fmt.Errorf("toc.fallback_pages must be at least 1")
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.URL = v
	}

	if v := firstEnv("LLM_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("MINERU_PATH"); v != "" {
		cfg.Extraction.MinerUPath = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Extraction.DataDir = v
	}

	if v := os.Getenv("PIPELINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Workers = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}
