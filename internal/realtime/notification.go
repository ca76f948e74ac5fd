package realtime

import (
	"errors"
	"time"
)

// NotificationType enumerates the events pushed to dashboard clients.
type NotificationType string

const (
	TypeNewLead            NotificationType = "new_lead"
	TypeChatMessage        NotificationType = "chat_message"
	TypePostStatus         NotificationType = "post_status"
	TypeInventorySync      NotificationType = "inventory_sync"
	TypeSystem             NotificationType = "system"
	TypeNewMessage         NotificationType = "new_message"
	TypeConversationUpdate NotificationType = "conversation_update"
)

var knownTypes = map[NotificationType]bool{
	TypeNewLead:            true,
	TypeChatMessage:        true,
	TypePostStatus:         true,
	TypeInventorySync:      true,
	TypeSystem:             true,
	TypeNewMessage:         true,
	TypeConversationUpdate: true,
}

// Notification is a single event scoped to one dealership.
type Notification struct {
	Type         NotificationType `json:"type"`
	DealershipID int64            `json:"dealershipId"`
	Title        string           `json:"title,omitempty"`
	Message      string           `json:"message,omitempty"`
	Data         map[string]any   `json:"data,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

var (
	errUnknownType     = errors.New("realtime: unknown notification type")
	errBadDealershipID = errors.New("realtime: dealershipId must be positive")
)

// Validate rejects unknown types and non-positive tenant ids before a
// notification reaches the hub.
func (n *Notification) Validate() error {
	if !knownTypes[n.Type] {
		return errUnknownType
	}
	if n.DealershipID <= 0 {
		return errBadDealershipID
	}
	return nil
}
