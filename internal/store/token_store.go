package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Capability strings carried by external API tokens.
const (
	CapImportVehicles    = "import:vehicles"
	CapReadVehicles      = "read:vehicles"
	CapUpdateVehicles    = "update:vehicles"
	CapDeleteVehicles    = "delete:vehicles"
	CapAutomationTrigger = "automation:trigger"
)

var validCapabilities = map[string]bool{
	CapImportVehicles:    true,
	CapReadVehicles:      true,
	CapUpdateVehicles:    true,
	CapDeleteVehicles:    true,
	CapAutomationTrigger: true,
}

// ValidCapability reports whether c is a known capability string.
func ValidCapability(c string) bool { return validCapabilities[c] }

// ExternalAPIToken authenticates machine clients. The raw token is returned
// exactly once at creation; storage holds only a bcrypt hash plus an indexed
// prefix used to narrow candidates before the bcrypt compare.
type ExternalAPIToken struct {
	ID           uuid.UUID  `json:"id"`
	DealershipID int64      `json:"dealershipId"`
	TokenName    string     `json:"tokenName"`
	TokenHash    string     `json:"-"`
	TokenPrefix  string     `json:"tokenPrefix"`
	Permissions  []string   `json:"permissions"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	IsActive     bool       `json:"isActive"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// HasPermission reports whether the token carries cap.
func (t *ExternalAPIToken) HasPermission(cap string) bool {
	for _, p := range t.Permissions {
		if p == cap {
			return true
		}
	}
	return false
}

// APITokenStore persists external API tokens.
type APITokenStore interface {
	Create(ctx context.Context, t *ExternalAPIToken) error
	// CandidatesByPrefix returns active tokens sharing the indexed prefix.
	// The prefix is near-unique but not unique; the caller bcrypt-compares
	// the raw token against each candidate.
	CandidatesByPrefix(ctx context.Context, prefix string) ([]ExternalAPIToken, error)
	ListByDealership(ctx context.Context, dealershipID int64) ([]ExternalAPIToken, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	Revoke(ctx context.Context, id uuid.UUID, dealershipID int64) error
}

// PostingToken is a single-use credential authorizing one publish attempt,
// bound to (userId, vehicleId, platform) with a short TTL. Created once,
// marked used, never otherwise mutated.
type PostingToken struct {
	ID        uuid.UUID  `json:"id"`
	Token     string     `json:"token"`
	UserID    int64      `json:"userId"`
	VehicleID int64      `json:"vehicleId"`
	Platform  string     `json:"platform"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
}

// PostingTokenStore persists one-time posting tokens.
type PostingTokenStore interface {
	Create(ctx context.Context, t *PostingToken) error
	// Consume atomically validates and marks the token used. It fails with
	// ErrNotFound when the token is unknown, expired, already consumed, or
	// bound to a different (user, vehicle, platform) tuple. A second consume
	// of the same token never succeeds.
	Consume(ctx context.Context, raw string, userID, vehicleID int64, platform string, now time.Time) (*PostingToken, error)
	// Peek validates the same binding and freshness as Consume without
	// marking the token used, so a failed publish attempt can retry with the
	// same token until its TTL runs out.
	Peek(ctx context.Context, raw string, userID, vehicleID int64, platform string, now time.Time) (*PostingToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
