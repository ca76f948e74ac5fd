package store

import (
	"context"
	"time"
)

// Channel identifies where a conversation happens.
type Channel string

const (
	ChannelWebsiteChat Channel = "website_chat"
	ChannelMessenger   Channel = "messenger"
	ChannelSMS         Channel = "sms"
	ChannelEmail       Channel = "email"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWebsiteChat, ChannelMessenger, ChannelSMS, ChannelEmail:
		return true
	}
	return false
}

// Conversation is a customer thread, unique per
// (dealershipId, channel, participantId).
type Conversation struct {
	ID               int64    `json:"id"`
	DealershipID     int64    `json:"dealershipId"`
	Channel          Channel  `json:"channel"`
	ParticipantID    string   `json:"participantId"`
	PageAccessToken  string   `json:"-"`
	AssignedToUserID *int64   `json:"assignedToUserId,omitempty"`
	AIEnabled        bool     `json:"aiEnabled"`
	AIWatchMode      bool     `json:"aiWatchMode"`
	LeadStatus       string   `json:"leadStatus,omitempty"`
	PipelineStage    string   `json:"pipelineStage,omitempty"`
	Tags             []string `json:"tags,omitempty"`

	// Mined contact info; written once, never overwriting non-empty values.
	HandoffName  string `json:"handoffName,omitempty"`
	HandoffPhone string `json:"handoffPhone,omitempty"`
	HandoffEmail string `json:"handoffEmail,omitempty"`

	GHLContactID  string     `json:"ghlContactId,omitempty"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ConversationMetadata carries the operator-editable fields.
type ConversationMetadata struct {
	AssignedToUserID *int64    `json:"assignedToUserId"`
	LeadStatus       *string   `json:"leadStatus"`
	PipelineStage    *string   `json:"pipelineStage"`
	Tags             *[]string `json:"tags"`
}

// ConversationList is a paged listing result.
type ConversationList struct {
	Items []Conversation `json:"items"`
	Total int            `json:"total"`
}

// ConversationStore persists customer threads.
type ConversationStore interface {
	// Upsert finds the conversation for (dealershipID, channel, participantID),
	// creating it when absent. Existing rows are returned unchanged.
	Upsert(ctx context.Context, c *Conversation) (*Conversation, error)
	Get(ctx context.Context, id, dealershipID int64) (*Conversation, error)
	List(ctx context.Context, dealershipID int64, channel Channel, page, limit int) (*ConversationList, error)
	Update(ctx context.Context, c *Conversation) error
	// SetHandoff persists mined contact fields, skipping any that already
	// hold a non-empty value.
	SetHandoff(ctx context.Context, id, dealershipID int64, name, phone, email string) error
	TouchLastMessage(ctx context.Context, id int64, preview string, at time.Time) error
}
