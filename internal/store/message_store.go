package store

import (
	"context"
	"time"
)

// Direction of a message relative to the platform.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// SyncSource records which system a message row originated from.
type SyncSource string

const (
	SourceProvider SyncSource = "provider"
	SourceCRM      SyncSource = "crm"
	SourceLotview  SyncSource = "lotview"
)

// Message is append-only once deduped. Dedup key is
// (dealershipId, externalMessageId) or (dealershipId, ghlMessageId) —
// a match on either means duplicate.
type Message struct {
	ID                int64      `json:"id"`
	DealershipID      int64      `json:"dealershipId"`
	ConversationID    int64      `json:"conversationId"`
	ExternalMessageID string     `json:"externalMessageId,omitempty"`
	GHLMessageID      string     `json:"ghlMessageId,omitempty"`
	Direction         Direction  `json:"direction"`
	SenderName        string     `json:"senderName,omitempty"`
	Content           string     `json:"content"`
	IsRead            bool       `json:"isRead"`
	SentAt            time.Time  `json:"sentAt"`
	SyncSource        SyncSource `json:"syncSource"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// MessageStore persists messages with strict dedup semantics.
type MessageStore interface {
	// Insert appends a message. When a row already exists for either dedup
	// key it returns the existing row and ErrAlreadyExists; under two racing
	// inserts exactly one persists (unique index + insert-or-ignore, never
	// read-then-write).
	Insert(ctx context.Context, m *Message) (*Message, error)

	// Exists reports whether either dedup key matches a stored row.
	Exists(ctx context.Context, dealershipID int64, externalMessageID, ghlMessageID string) (bool, error)

	// ExistsNear reports whether a message with the same conversation,
	// direction, and body was stored within the window around at. Fallback
	// dedup for CRM echoes whose ghlMessageId never persisted.
	ExistsNear(ctx context.Context, conversationID int64, direction Direction, body string, at time.Time, window time.Duration) (bool, error)

	ListByConversation(ctx context.Context, conversationID, dealershipID int64, limit int) ([]Message, error)
	SetGHLMessageID(ctx context.Context, id int64, ghlMessageID string) error
	MarkRead(ctx context.Context, conversationID, dealershipID int64) error
}
