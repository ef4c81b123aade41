package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Debug        bool          `yaml:"debug"`
	LogLevel     string        `yaml:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	PoolSize int    `yaml:"pool_size"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

// DSN returns the raw URL when one was supplied (DATABASE_URL), otherwise
// a URL assembled from the discrete fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	dsn := "postgres://" + p.User + ":" + p.Password + "@" + p.Host + ":" +
		strconv.Itoa(p.Port) + "/" + p.Database + "?sslmode=" + p.SSLMode
	if p.PoolSize > 0 {
		dsn += "&pool_max_conns=" + strconv.Itoa(p.PoolSize)
	}
	return dsn
}

type RedisConfig struct {
	URL     string        `yaml:"url"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// Enabled reports whether a Redis URL was configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

type LLMConfig struct {
	DefaultBackend string        `yaml:"default_backend"`
	Claude         ClaudeConfig  `yaml:"claude"`
	Gemini         GeminiConfig  `yaml:"gemini"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxInputChars  int           `yaml:"max_input_chars"`
}

type ClaudeConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// BaseURL overrides the Gemini API endpoint when set
	BaseURL string `yaml:"base_url"`
}

type ScraperConfig struct {
	UserAgent       string        `yaml:"user_agent"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	DetailTimeout   time.Duration `yaml:"detail_timeout"`
	HealthTimeout   time.Duration `yaml:"health_timeout"`
	MaxPerPage      int           `yaml:"max_per_page"`
	DefaultDelay    time.Duration `yaml:"default_delay"`
	DefaultRetries  int           `yaml:"default_retries"`
	FreshnessWindow time.Duration `yaml:"freshness_window"`
	MinSuccessRate  float64       `yaml:"min_success_rate"`
	EnrichDetails   bool          `yaml:"enrich_details"`
	DefaultCategory string        `yaml:"default_category"`
	SourcesFile     string        `yaml:"sources_file"`
	Browser         BrowserConfig `yaml:"browser"`
}

type BrowserConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Timeout  time.Duration `yaml:"timeout"`
	ProxyURL string        `yaml:"proxy_url"`
}

type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
}

type QueueConfig struct {
	Size int `yaml:"size"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Scraper.RequestTimeout <= 0 || c.Scraper.DetailTimeout <= 0 || c.Scraper.HealthTimeout <= 0 {
		return fmt.Errorf("scraper timeouts must be positive")
	}
	if c.Scraper.MaxPerPage <= 0 {
		return fmt.Errorf("scraper.max_per_page must be positive, got %d", c.Scraper.MaxPerPage)
	}
	if c.Queue.Size <= 0 {
		return fmt.Errorf("queue.size must be positive, got %d", c.Queue.Size)
	}
	switch c.LLM.DefaultBackend {
	case "claude", "gemini", "none", "":
	default:
		return fmt.Errorf("llm.default_backend %q is not one of claude, gemini, none", c.LLM.DefaultBackend)
	}
	if c.Scheduler.Enabled && c.Scheduler.Spec == "" {
		return fmt.Errorf("scheduler.spec is required when the scheduler is enabled")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Debug:        false,
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "opportunities",
				Password: "password",
				Database: "opportunities",
				PoolSize: 10,
				SSLMode:  "disable",
				Migrate:  true,
			},
			Redis: RedisConfig{
				LockTTL: 30 * time.Minute,
			},
		},
		LLM: LLMConfig{
			DefaultBackend: "claude",
			Claude: ClaudeConfig{
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 4096,
			},
			Gemini: GeminiConfig{
				Model: "gemini-2.0-flash",
			},
			Timeout:       60 * time.Second,
			MaxInputChars: 8000,
		},
		Scraper: ScraperConfig{
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout:  30 * time.Second,
			DetailTimeout:   15 * time.Second,
			HealthTimeout:   10 * time.Second,
			MaxPerPage:      20,
			DefaultDelay:    2 * time.Second,
			DefaultRetries:  3,
			FreshnessWindow: 24 * time.Hour,
			MinSuccessRate:  20,
			EnrichDetails:   true,
			DefaultCategory: "jobs",
			Browser: BrowserConfig{
				Enabled: false,
				Timeout: 2 * time.Minute,
			},
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Spec:    "@every 6h",
		},
		Queue: QueueConfig{
			Size: 32,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
			MaxAge:         600,
		},
	}
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DEBUG"); v == "true" {
		c.Server.Debug = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}

	// Database
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.Postgres.URL = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Database.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Postgres.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		c.Database.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Database.Postgres.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		c.Database.Postgres.Database = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Database.Redis.URL = v
	}

	// LLM
	if v := os.Getenv("LLM_BACKEND"); v != "" {
		c.LLM.DefaultBackend = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.Claude.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_BASE_URL"); v != "" {
		c.LLM.Gemini.BaseURL = v
	}

	// Scraper
	if v := os.Getenv("SCRAPER_SOURCES_FILE"); v != "" {
		c.Scraper.SourcesFile = v
	}
	if v := os.Getenv("SCRAPER_BROWSER_ENABLED"); v != "" {
		c.Scraper.Browser.Enabled = v == "true"
	}
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		c.Scheduler.Enabled = v == "true"
	}
	if v := os.Getenv("SCHEDULER_SPEC"); v != "" {
		c.Scheduler.Spec = v
	}
}
