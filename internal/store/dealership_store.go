package store

import (
	"context"
	"regexp"
	"time"
)

// Dealership is the tenant boundary. Every other entity except super-admin
// users belongs to exactly one dealership.
type Dealership struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Subdomain string    `json:"subdomain"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Website   string    `json:"website,omitempty"`
	IsActive  bool      `json:"isActive"`

	// Tenant-configurable knobs, stored on the row rather than in env.
	ScrapeWebhookSecret string `json:"-"`
	ExtensionSigningKey string `json:"-"`
	GHLLocationID       string `json:"-"`
	GHLAPIKey           string `json:"-"`
	MessengerPageID     string `json:"-"`
	ScrapeSourceURL     string `json:"scrapeSourceUrl,omitempty"`
	PostingDailyCap     int    `json:"postingDailyCap"`

	// AI configuration for conversation replies and description generation.
	AIModel       string  `json:"aiModel,omitempty"`
	AITemperature float64 `json:"aiTemperature,omitempty"`
	AIMaxTokens   int     `json:"aiMaxTokens,omitempty"`
	AIReplyPrompt string  `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultPostingDailyCap applies when a dealership row carries no explicit cap.
const DefaultPostingDailyCap = 10

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidSlug reports whether s is a lowercase slug usable as a dealership
// slug or subdomain.
func ValidSlug(s string) bool {
	return s != "" && slugPattern.MatchString(s)
}

// DealershipStore persists tenants.
type DealershipStore interface {
	Create(ctx context.Context, d *Dealership) error
	Get(ctx context.Context, id int64) (*Dealership, error)
	GetBySlug(ctx context.Context, slug string) (*Dealership, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*Dealership, error)
	// GetByGHLLocation resolves a dealership from the external CRM location ID
	// or the messenger page ID, checked in that order.
	GetByGHLLocation(ctx context.Context, externalID string) (*Dealership, error)
	ListActive(ctx context.Context) ([]Dealership, error)
	Update(ctx context.Context, d *Dealership) error
}
