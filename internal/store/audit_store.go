package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditLog is written on every state-changing admin operation.
type AuditLog struct {
	ID           int64     `json:"id"`
	DealershipID *int64    `json:"dealershipId,omitempty"`
	UserID       int64     `json:"userId"`
	Action       string    `json:"action"`
	Resource     string    `json:"resource"`
	ResourceID   string    `json:"resourceId,omitempty"`
	Details      string    `json:"details,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ImpersonationSession tracks a super-admin acting as another user. At most
// one session per super-admin is active; starting a new one ends the prior.
type ImpersonationSession struct {
	ID               uuid.UUID  `json:"id"`
	SuperAdminID     int64      `json:"superAdminId"`
	TargetUserID     int64      `json:"targetUserId"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	ActionsPerformed int        `json:"actionsPerformed"`
}

// AuditStore persists audit logs and impersonation sessions.
type AuditStore interface {
	Write(ctx context.Context, l *AuditLog) error
	List(ctx context.Context, dealershipID int64, limit int) ([]AuditLog, error)

	// StartImpersonation ends any active session for the super-admin before
	// creating the new one.
	StartImpersonation(ctx context.Context, superAdminID, targetUserID int64) (*ImpersonationSession, error)
	ActiveImpersonation(ctx context.Context, superAdminID int64) (*ImpersonationSession, error)
	EndImpersonation(ctx context.Context, id uuid.UUID) error
	IncrementImpersonationActions(ctx context.Context, id uuid.UUID) error
}

// APICallLog records one adapter call: request summary, status, latency.
type APICallLog struct {
	ID           int64     `json:"id"`
	DealershipID *int64    `json:"dealershipId,omitempty"`
	Service      string    `json:"service"`
	Endpoint     string    `json:"endpoint"`
	Status       int       `json:"status"`
	LatencyMs    int64     `json:"latencyMs"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// APILogStore persists adapter call logs. Writes are best-effort: a failed
// log write never fails the call it describes.
type APILogStore interface {
	Write(ctx context.Context, l *APICallLog) error
	List(ctx context.Context, dealershipID int64, service string, limit int) ([]APICallLog, error)
}
