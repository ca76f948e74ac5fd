package config

// Config is the root configuration for the LotView server.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Auth     AuthConfig     `json:"auth"`
	Storage  StorageConfig  `json:"storage"`
	CRM      CRMConfig      `json:"crm,omitempty"`
	AI       AIConfig       `json:"ai,omitempty"`
	Scraper  ScraperConfig  `json:"scraper,omitempty"`
	Posting  PostingConfig  `json:"posting,omitempty"`
	SMTP     SMTPConfig     `json:"smtp,omitempty"`
}

// ServerConfig configures the HTTP listener and tenant subdomain matching.
type ServerConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	BaseURL    string `json:"base_url,omitempty"`    // public URL used in reset-password links
	BaseDomain string `json:"base_domain,omitempty"` // e.g. "lotview.app" for subdomain tenancy
	LogLevel   string `json:"log_level,omitempty"`   // debug, info, warn, error
}

// DatabaseConfig configures Postgres.
// PostgresDSN is never read from the config file — env LOTVIEW_POSTGRES_DSN only.
type DatabaseConfig struct {
	PostgresDSN   string `json:"-"`
	MigrationsDir string `json:"migrations_dir,omitempty"`
}

// AuthConfig holds session signing material. JWTSecret comes from env only.
type AuthConfig struct {
	JWTSecret string `json:"-"`
}

// StorageConfig configures the blob backend for hosted vehicle images.
// URL is an afs-style base, e.g. "file:///var/lib/lotview/images" or "s3://bucket/images".
type StorageConfig struct {
	URL string `json:"url,omitempty"`
}

// CRMConfig configures the GoHighLevel integration.
type CRMConfig struct {
	BaseURL            string `json:"base_url,omitempty"`
	APIKey             string `json:"-"` // env LOTVIEW_GHL_API_KEY only
	FallbackWebhookURL string `json:"fallback_webhook_url,omitempty"`
}

// AIConfig configures the OpenAI-compatible completion backend.
type AIConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"-"` // env LOTVIEW_OPENAI_API_KEY only
}

// ScraperConfig configures inventory scraping.
type ScraperConfig struct {
	Cron             string `json:"cron,omitempty"` // schedule for nightly scrapes
	RenderAPIURL     string `json:"render_api_url,omitempty"`
	RenderAPIKey     string `json:"-"` // env LOTVIEW_RENDER_API_KEY only
	BrowserWSURL     string `json:"browser_ws_url,omitempty"`
	MarketCheckURL   string `json:"marketcheck_url,omitempty"`
	MarketCheckKey   string `json:"-"` // env LOTVIEW_MARKETCHECK_API_KEY only
	NHTSAURL         string `json:"nhtsa_url,omitempty"`
	DisableScheduler bool   `json:"disable_scheduler,omitempty"`
}

// PostingConfig configures the marketplace posting worker.
type PostingConfig struct {
	WorkerEnabled bool   `json:"worker_enabled,omitempty"`
	BrowserWSURL  string `json:"browser_ws_url,omitempty"`
}

// SMTPConfig configures outbound email for password resets. When Host is
// empty, reset links are logged instead of sent.
type SMTPConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"-"` // env LOTVIEW_SMTP_PASSWORD only
	From     string `json:"from,omitempty"`
}
