package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Role selects which process is loading configuration. Each process only
// validates the settings it actually uses.
type Role string

const (
	RoleServer       Role = "server"
	RoleReviewWorker Role = "review-worker"
	RoleEmailWorker  Role = "email-worker"
)

// Config holds all configuration for the ReviewPulse processes.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Broker     BrokerConfig
	Auth       AuthConfig
	Summarizer SummarizerConfig
	Mail       MailConfig
	Worker     WorkerConfig
	Reaper     ReaperConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	RateLimitPerMin int
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type BrokerConfig struct {
	URL               string
	ConsumerName      string
	Prefetch          int
	Concurrency       int
	BlockTimeout      time.Duration
	VisibilityTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type SummarizerConfig struct {
	Provider string
	Timeout  time.Duration
	Model    ModelConfig
	Gemini   GeminiConfig
}

type ModelConfig struct {
	URL string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type MailConfig struct {
	Transport string
	From      string
	Timeout   time.Duration
	SMTP      SMTPConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type WorkerConfig struct {
	ReviewMaxAttempts int
	EmailMaxAttempts  int
	SkipCleaning      bool
}

type ReaperConfig struct {
	Interval      time.Duration
	PendingMaxAge time.Duration
}

var validProviders = map[string]bool{
	"model":  true,
	"gemini": true,
}

var validTransports = map[string]bool{
	"smtp": true,
	"log":  true,
}

// Load reads configuration from the environment (and a .env file, if present)
// and validates the settings required by role.
func Load(role Role) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	redisURL := os.Getenv("REDIS_URL")
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("PORT", 3000),
			Env:             envString("APP_ENV", "development"),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 60),
			AllowedOrigins:  envList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: redisURL,
		},
		Broker: BrokerConfig{
			URL:               envString("BROKER_URL", redisURL),
			ConsumerName:      os.Getenv("BROKER_CONSUMER_NAME"),
			Prefetch:          envInt("BROKER_PREFETCH", 10),
			Concurrency:       envInt("WORKER_CONCURRENCY", 4),
			BlockTimeout:      envDuration("BROKER_BLOCK_TIMEOUT", 5*time.Second),
			VisibilityTimeout: envDuration("BROKER_VISIBILITY_TIMEOUT", time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Summarizer: SummarizerConfig{
			Provider: envString("SUMMARIZER_PROVIDER", "model"),
			Timeout:  envDuration("SUMMARIZER_TIMEOUT", 60*time.Second),
			Model: ModelConfig{
				URL: os.Getenv("SUMMARIZER_URL"),
			},
			Gemini: GeminiConfig{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  envString("GEMINI_MODEL", "gemini-2.0-flash"),
			},
		},
		Mail: MailConfig{
			Transport: envString("MAIL_TRANSPORT", "smtp"),
			From:      os.Getenv("EMAIL_USER"),
			Timeout:   envDuration("MAIL_TIMEOUT", 30*time.Second),
			SMTP: SMTPConfig{
				Host:     os.Getenv("EMAIL_HOST"),
				Port:     envInt("EMAIL_PORT", 587),
				Username: os.Getenv("EMAIL_USER"),
				Password: os.Getenv("EMAIL_PASSWORD"),
			},
		},
		Worker: WorkerConfig{
			ReviewMaxAttempts: envInt("REVIEW_MAX_ATTEMPTS", 3),
			EmailMaxAttempts:  envInt("EMAIL_MAX_ATTEMPTS", 5),
			SkipCleaning:      envBool("REVIEW_SKIP_CLEANING", false),
		},
		Reaper: ReaperConfig{
			Interval:      envDuration("REAPER_INTERVAL", time.Minute),
			PendingMaxAge: envDuration("PENDING_MAX_AGE", 30*time.Minute),
		},
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		cfg.Mail.From = v
	}

	if err := cfg.validate(role); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate(role Role) error {
	if c.Broker.URL == "" {
		return fmt.Errorf("REDIS_URL or BROKER_URL is required")
	}
	if c.Broker.Prefetch <= 0 {
		return fmt.Errorf("BROKER_PREFETCH must be positive, got %d", c.Broker.Prefetch)
	}
	if c.Broker.BlockTimeout >= c.Broker.VisibilityTimeout {
		return fmt.Errorf("BROKER_BLOCK_TIMEOUT (%s) must be shorter than BROKER_VISIBILITY_TIMEOUT (%s)",
			c.Broker.BlockTimeout, c.Broker.VisibilityTimeout)
	}

	switch role {
	case RoleServer:
		if err := c.requireDatabase(); err != nil {
			return err
		}
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required")
		}
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required")
		}

	case RoleReviewWorker:
		if err := c.requireDatabase(); err != nil {
			return err
		}
		if c.Worker.ReviewMaxAttempts < 1 {
			return fmt.Errorf("REVIEW_MAX_ATTEMPTS must be at least 1, got %d", c.Worker.ReviewMaxAttempts)
		}
		if err := c.validateSummarizer(); err != nil {
			return err
		}

	case RoleEmailWorker:
		if c.Worker.EmailMaxAttempts < 1 {
			return fmt.Errorf("EMAIL_MAX_ATTEMPTS must be at least 1, got %d", c.Worker.EmailMaxAttempts)
		}
		if err := c.validateMail(); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown config role %q", role)
	}

	return nil
}

func (c *Config) requireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func (c *Config) validateSummarizer() error {
	if !validProviders[c.Summarizer.Provider] {
		return fmt.Errorf("SUMMARIZER_PROVIDER must be one of model, gemini; got %q", c.Summarizer.Provider)
	}
	if c.Summarizer.Provider == "model" {
		u := c.Summarizer.Model.URL
		if u == "" {
			return fmt.Errorf("SUMMARIZER_URL is required when SUMMARIZER_PROVIDER is model")
		}
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("SUMMARIZER_URL must start with http:// or https://, got %q", u)
		}
	}
	if c.Summarizer.Provider == "gemini" && c.Summarizer.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when SUMMARIZER_PROVIDER is gemini")
	}
	return nil
}

func (c *Config) validateMail() error {
	if !validTransports[c.Mail.Transport] {
		return fmt.Errorf("MAIL_TRANSPORT must be one of smtp, log; got %q", c.Mail.Transport)
	}
	if c.Mail.Transport == "smtp" {
		if c.Mail.SMTP.Host == "" {
			return fmt.Errorf("EMAIL_HOST is required when MAIL_TRANSPORT is smtp")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("EMAIL_FROM or EMAIL_USER is required when MAIL_TRANSPORT is smtp")
		}
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList splits a comma-separated value, dropping blank entries.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
