package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the LeadForge server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Scraper  ScraperConfig
	Outreach OutreachConfig
	Verifier VerifierConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// ScraperConfig configures the external scraping provider. The run timeout
// is generous because the provider blocks until scraping completes, which
// can take tens of seconds per batch.
type ScraperConfig struct {
	BaseURL      string
	APIKey       string
	RunTimeout   time.Duration
	PollInterval time.Duration
}

// OutreachConfig configures the outreach platform. APIKey is the
// process-wide default credential; client- and account-level keys stored in
// the database take precedence.
type OutreachConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// VerifierConfig configures SMTP probing. HeloDomain and FromAddress
// identify the probe to remote mail servers; they should resolve to a real
// host to avoid being rejected outright.
type VerifierConfig struct {
	HeloDomain   string
	FromAddress  string
	ProbeTimeout time.Duration
	Concurrency  int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LEADFORGE_PORT", 8080),
			Env:  envString("LEADFORGE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scraper: ScraperConfig{
			BaseURL:      os.Getenv("SCRAPER_BASE_URL"),
			APIKey:       os.Getenv("SCRAPER_API_KEY"),
			RunTimeout:   envDuration("SCRAPER_RUN_TIMEOUT", 5*time.Minute),
			PollInterval: envDuration("SCRAPER_POLL_INTERVAL", 2*time.Second),
		},
		Outreach: OutreachConfig{
			BaseURL: os.Getenv("OUTREACH_BASE_URL"),
			APIKey:  os.Getenv("OUTREACH_API_KEY"),
			Timeout: envDuration("OUTREACH_TIMEOUT", 30*time.Second),
		},
		Verifier: VerifierConfig{
			HeloDomain:   envString("VERIFY_HELO_DOMAIN", "verify.leadforge.io"),
			FromAddress:  envString("VERIFY_FROM_ADDRESS", "probe@verify.leadforge.io"),
			ProbeTimeout: envDurationSecs("VERIFY_PROBE_TIMEOUT_SECS", 7*time.Second),
			Concurrency:  envInt("VERIFY_CONCURRENCY", 25),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("SCRAPER_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Scraper.BaseURL, "http://") && !strings.HasPrefix(c.Scraper.BaseURL, "https://") {
		return fmt.Errorf("SCRAPER_BASE_URL must start with http:// or https://, got %q", c.Scraper.BaseURL)
	}
	if c.Scraper.APIKey == "" {
		return fmt.Errorf("SCRAPER_API_KEY is required")
	}

	if c.Outreach.BaseURL == "" {
		return fmt.Errorf("OUTREACH_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Outreach.BaseURL, "http://") && !strings.HasPrefix(c.Outreach.BaseURL, "https://") {
		return fmt.Errorf("OUTREACH_BASE_URL must start with http:// or https://, got %q", c.Outreach.BaseURL)
	}

	if !strings.Contains(c.Verifier.FromAddress, "@") {
		return fmt.Errorf("VERIFY_FROM_ADDRESS must be an email address, got %q", c.Verifier.FromAddress)
	}
	if c.Verifier.Concurrency < 1 {
		return fmt.Errorf("VERIFY_CONCURRENCY must be at least 1, got %d", c.Verifier.Concurrency)
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

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
