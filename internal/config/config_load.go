package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			MigrationsDir: "migrations",
		},
		Storage: StorageConfig{
			URL: "file:///var/lib/lotview/images",
		},
		Scraper: ScraperConfig{
			Cron: "0 3 * * *",
		},
		Posting: PostingConfig{
			WorkerEnabled: true,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; env-only deployments are supported.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets come from env only.
	envStr("LOTVIEW_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("LOTVIEW_JWT_SECRET", &c.Auth.JWTSecret)
	envStr("LOTVIEW_GHL_API_KEY", &c.CRM.APIKey)
	envStr("LOTVIEW_OPENAI_API_KEY", &c.AI.APIKey)
	envStr("LOTVIEW_RENDER_API_KEY", &c.Scraper.RenderAPIKey)
	envStr("LOTVIEW_MARKETCHECK_API_KEY", &c.Scraper.MarketCheckKey)
	envStr("LOTVIEW_SMTP_PASSWORD", &c.SMTP.Password)

	// Server
	envStr("LOTVIEW_HOST", &c.Server.Host)
	if v := os.Getenv("LOTVIEW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	envStr("LOTVIEW_BASE_URL", &c.Server.BaseURL)
	envStr("LOTVIEW_BASE_DOMAIN", &c.Server.BaseDomain)
	envStr("LOTVIEW_LOG_LEVEL", &c.Server.LogLevel)

	// Database
	envStr("LOTVIEW_MIGRATIONS_DIR", &c.Database.MigrationsDir)

	// Storage
	envStr("LOTVIEW_BLOB_URL", &c.Storage.URL)

	// Integrations
	envStr("LOTVIEW_GHL_BASE_URL", &c.CRM.BaseURL)
	envStr("LOTVIEW_FALLBACK_WEBHOOK_URL", &c.CRM.FallbackWebhookURL)
	envStr("LOTVIEW_OPENAI_BASE_URL", &c.AI.BaseURL)

	// Scraper
	envStr("LOTVIEW_SCRAPE_CRON", &c.Scraper.Cron)
	envStr("LOTVIEW_RENDER_API_URL", &c.Scraper.RenderAPIURL)
	envStr("LOTVIEW_BROWSER_WS_URL", &c.Scraper.BrowserWSURL)
	envStr("LOTVIEW_MARKETCHECK_URL", &c.Scraper.MarketCheckURL)
	envStr("LOTVIEW_NHTSA_URL", &c.Scraper.NHTSAURL)
	if v := os.Getenv("LOTVIEW_DISABLE_SCHEDULER"); v != "" {
		c.Scraper.DisableScheduler = v == "true" || v == "1"
	}

	// Posting
	if v := os.Getenv("LOTVIEW_POSTING_WORKER"); v != "" {
		c.Posting.WorkerEnabled = v == "true" || v == "1"
	}
	envStr("LOTVIEW_POSTING_BROWSER_WS_URL", &c.Posting.BrowserWSURL)

	// SMTP
	envStr("LOTVIEW_SMTP_HOST", &c.SMTP.Host)
	if v := os.Getenv("LOTVIEW_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.SMTP.Port = port
		}
	}
	envStr("LOTVIEW_SMTP_USERNAME", &c.SMTP.Username)
	envStr("LOTVIEW_SMTP_FROM", &c.SMTP.From)
}

// Validate checks the fields the server cannot run without.
func (c *Config) Validate() error {
	if c.Database.PostgresDSN == "" {
		return fmt.Errorf("LOTVIEW_POSTGRES_DSN is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("LOTVIEW_JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("LOTVIEW_JWT_SECRET must be at least 32 bytes")
	}
	return nil
}
