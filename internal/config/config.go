package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"

	"forumwatch-go/internal/model"
)

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	TelegramToken    string `validate:"required"`
	TelegramChat     string `validate:"required"`
	TelegramThreadID *int
	TelegramAPIURL   string `validate:"required,url"`

	StateBackend string `validate:"oneof=file sqlite postgres"`
	StateFile    string `validate:"required_if=StateBackend file"`
	SQLitePath   string `validate:"required_if=StateBackend sqlite"`

	Sites []model.Site `validate:"min=1,dive"`

	PollInterval  time.Duration `validate:"gt=0"`
	PollCron      string
	SendDelay     time.Duration `validate:"gte=0"`
	RetryAttempts int           `validate:"gte=1,lte=20"`
	RetryDelay    time.Duration `validate:"gte=0"`
	ErrorCooldown time.Duration `validate:"gte=0"`
	FetchTimeout  time.Duration `validate:"gt=0"`

	HTTPPort  string `validate:"omitempty,numeric"`
	LogLevel  string
	LogFormat string `validate:"omitempty,oneof=console json"`
}

// Load reads the configuration from the environment, after merging an
// optional .env file from the working directory.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DBHost:         envOrDefault("DB_HOST", "localhost"),
		DBPort:         envOrDefault("DB_PORT", "5432"),
		DBUser:         envOrDefault("DB_USERNAME", "postgres"),
		DBPassword:     envOrDefault("DB_PASSWORD", "postgres"),
		DBName:         envOrDefault("DB_DATABASE", "forumwatch"),
		DBSSLMode:      envOrDefault("DB_SSLMODE", "disable"),
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChat:   os.Getenv("TELEGRAM_CHAT_ID"),
		TelegramAPIURL: envOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"),
		StateBackend:   strings.ToLower(envOrDefault("STATE_BACKEND", BackendFile)),
		StateFile:      envOrDefault("STATE_FILE", "sent_proposals.json"),
		SQLitePath:     envOrDefault("SQLITE_PATH", "seen.db"),
		PollCron:       strings.TrimSpace(os.Getenv("POLL_CRON")),
		HTTPPort:       os.Getenv("HTTP_PORT"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		LogFormat:      strings.ToLower(envOrDefault("LOG_FORMAT", "console")),
	}

	var err error
	if cfg.TelegramThreadID, err = envOrIntPtr("TELEGRAM_CHAT_THREAD_ID"); err != nil {
		return cfg, err
	}
	if cfg.RetryAttempts, err = envOrInt("RETRY_ATTEMPTS", 3); err != nil {
		return cfg, err
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"POLL_INTERVAL", 300 * time.Second, &cfg.PollInterval},
		{"SEND_DELAY", time.Second, &cfg.SendDelay},
		{"RETRY_DELAY", 2 * time.Second, &cfg.RetryDelay},
		{"ERROR_COOLDOWN", 60 * time.Second, &cfg.ErrorCooldown},
		{"FETCH_TIMEOUT", 15 * time.Second, &cfg.FetchTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = envOrDuration(d.key, d.fallback); err != nil {
			return cfg, err
		}
	}

	if cfg.Sites, err = loadSites(os.Getenv("SITES_FILE"), os.Getenv("FORUM_SITES")); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.TelegramToken == "" || c.TelegramChat == "" {
		return errors.New("missing TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID")
	}
	if len(c.Sites) == 0 {
		return errors.New("no sites configured: set FORUM_SITES or SITES_FILE")
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

type sitesFile struct {
	Sites []model.Site `yaml:"sites"`
}

// loadSites merges the YAML sites file (first) with the comma-separated
// list; the first occurrence of a URL wins.
func loadSites(path, list string) ([]model.Site, error) {
	var sites []model.Site

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sites file: %w", err)
		}
		var parsed sitesFile
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse sites file %s: %w", path, err)
		}
		sites = append(sites, parsed.Sites...)
	}

	for _, raw := range strings.Split(list, ",") {
		if u := strings.TrimSpace(raw); u != "" {
			sites = append(sites, model.Site{URL: u})
		}
	}

	seen := make(map[string]struct{}, len(sites))
	out := make([]model.Site, 0, len(sites))
	for _, site := range sites {
		site.URL = strings.TrimSpace(site.URL)
		if _, ok := seen[site.URL]; ok {
			continue
		}
		seen[site.URL] = struct{}{}
		out = append(out, site.WithDefaults())
	}
	return out, nil
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envOrIntPtr(key string) (*int, error) {
	val := os.Getenv(key)
	if val == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &parsed, nil
}

func envOrInt(key string, fallback int) (int, error) {
	ptr, err := envOrIntPtr(key)
	if err != nil || ptr == nil {
		return fallback, err
	}
	return *ptr, nil
}

// envOrDuration accepts a bare number of seconds or a Go duration string.
func envOrDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
