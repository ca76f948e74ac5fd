package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openautogroup/lotview/internal/adapters"
	"github.com/openautogroup/lotview/internal/realtime"
	"github.com/openautogroup/lotview/internal/store"
)

// echoWindow bounds the fallback dedup for CRM echoes whose ghlMessageId was
// never stored: same conversation, direction and body within this window of
// the original send counts as a duplicate.
const echoWindow = 10 * time.Second

// historyLimit is how much context the AI reply sees.
const historyLimit = 20

// Service is the conversation hub: webhook ingest, dedup, mining, AI replies
// and the outbound send path.
type Service struct {
	stores *store.Stores
	crm    *adapters.CRM
	ai     *adapters.AI
	hub    *realtime.Hub
	logger *slog.Logger

	// FallbackWebhookURL receives outbound sends when the CRM path fails.
	FallbackWebhookURL string
	fallback           *adapters.Client
}

func NewService(st *store.Stores, crm *adapters.CRM, ai *adapters.AI, hub *realtime.Hub, fallback *adapters.Client, fallbackURL string, logger *slog.Logger) *Service {
	return &Service{
		stores:             st,
		crm:                crm,
		ai:                 ai,
		hub:                hub,
		fallback:           fallback,
		FallbackWebhookURL: fallbackURL,
		logger:             logger,
	}
}

// InboundEvent is a normalized webhook payload. Type arrives as a number
// (1=email, 2=sms, 3=call) or a string; NormalizeChannel maps both.
type InboundEvent struct {
	Channel           store.Channel
	LocationID        string
	PageID            string
	ParticipantID     string
	ExternalMessageID string
	GHLMessageID      string
	Body              string
	Direction         store.Direction
	SenderName        string
	SentAt            time.Time
	Source            store.SyncSource
}

// NormalizeChannel maps the webhook's loose type field to a canonical channel.
func NormalizeChannel(v any) (store.Channel, error) {
	switch t := v.(type) {
	case float64: // JSON numbers decode as float64
		switch int(t) {
		case 1:
			return store.ChannelEmail, nil
		case 2:
			return store.ChannelSMS, nil
		case 3:
			return store.ChannelSMS, nil // calls log against the SMS thread
		}
		return "", fmt.Errorf("unknown numeric message type %v", t)
	case string:
		ch := store.Channel(strings.ToLower(strings.TrimSpace(t)))
		switch ch {
		case store.ChannelWebsiteChat, store.ChannelMessenger, store.ChannelSMS, store.ChannelEmail:
			return ch, nil
		case "fb", "facebook":
			return store.ChannelMessenger, nil
		case "livechat", "live_chat", "chat":
			return store.ChannelWebsiteChat, nil
		}
		return "", fmt.Errorf("unknown message type %q", t)
	}
	return "", fmt.Errorf("message type must be string or number")
}

// InboundResult reports what ingest did, for the webhook response body.
type InboundResult struct {
	Duplicate      bool
	ConversationID int64
	MessageID      int64
}

// ErrUnknownLocation means no dealership maps to the webhook's location or
// page identifier. The handler answers 404.
var ErrUnknownLocation = errors.New("convo: no dealership for location")

// ProcessInbound runs the ingest pipeline: resolve tenant, dedup, upsert
// conversation, append message, mine contact info, maybe schedule an AI
// reply. Dedup first, persist second, react third.
func (s *Service) ProcessInbound(ctx context.Context, ev *InboundEvent) (*InboundResult, error) {
	locator := ev.LocationID
	if locator == "" {
		locator = ev.PageID
	}
	d, err := s.stores.Dealerships.GetByGHLLocation(ctx, locator)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("webhook for unknown location", "location", locator)
			return nil, ErrUnknownLocation
		}
		return nil, err
	}

	if ev.ExternalMessageID != "" || ev.GHLMessageID != "" {
		dup, err := s.stores.Messages.Exists(ctx, d.ID, ev.ExternalMessageID, ev.GHLMessageID)
		if err != nil {
			return nil, err
		}
		if dup {
			return &InboundResult{Duplicate: true}, nil
		}
	}

	conv, err := s.stores.Conversations.Upsert(ctx, &store.Conversation{
		DealershipID:  d.ID,
		Channel:       ev.Channel,
		ParticipantID: ev.ParticipantID,
		AIEnabled:     true,
	})
	if err != nil {
		return nil, err
	}

	// Echo fallback: an outbound CRM echo whose ghlMessageId never made it
	// onto our own outbound row would otherwise duplicate it.
	if ev.Direction == store.DirectionOutbound && ev.Source == store.SourceCRM {
		near, err := s.stores.Messages.ExistsNear(ctx, conv.ID, store.DirectionOutbound, ev.Body, ev.SentAt, echoWindow)
		if err != nil {
			return nil, err
		}
		if near {
			return &InboundResult{Duplicate: true, ConversationID: conv.ID}, nil
		}
	}

	msg := &store.Message{
		DealershipID:      d.ID,
		ConversationID:    conv.ID,
		ExternalMessageID: ev.ExternalMessageID,
		GHLMessageID:      ev.GHLMessageID,
		Direction:         ev.Direction,
		SenderName:        ev.SenderName,
		Content:           ev.Body,
		IsRead:            ev.Direction == store.DirectionOutbound,
		SentAt:            ev.SentAt,
		SyncSource:        ev.Source,
	}
	stored, err := s.stores.Messages.Insert(ctx, msg)
	if errors.Is(err, store.ErrAlreadyExists) {
		res := &InboundResult{Duplicate: true, ConversationID: conv.ID}
		if stored != nil {
			res.MessageID = stored.ID
		}
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.stores.Conversations.TouchLastMessage(ctx, conv.ID, ev.Body, ev.SentAt); err != nil {
		s.logger.Warn("touch last message failed", "conversation", conv.ID, "error", err)
	}

	if ev.Direction == store.DirectionInbound {
		s.mineAndPersist(ctx, conv, ev.Body)
	}

	s.hub.Broadcast(realtime.Notification{
		Type:         realtime.TypeNewMessage,
		DealershipID: d.ID,
		Message:      ev.Body,
		Data: map[string]any{
			"conversationId": conv.ID,
			"messageId":      stored.ID,
			"channel":        string(ev.Channel),
			"direction":      string(ev.Direction),
		},
	})

	if ev.Direction == store.DirectionInbound && conv.AIEnabled && !conv.AIWatchMode {
		s.replyWithAI(ctx, d, conv)
	}

	return &InboundResult{ConversationID: conv.ID, MessageID: stored.ID}, nil
}

func (s *Service) mineAndPersist(ctx context.Context, conv *store.Conversation, body string) {
	if conv.HandoffName != "" && conv.HandoffPhone != "" && conv.HandoffEmail != "" {
		return
	}
	m := MineContact(body)
	if m.Name == "" && m.Phone == "" && m.Email == "" {
		return
	}
	if err := s.stores.Conversations.SetHandoff(ctx, conv.ID, conv.DealershipID, m.Name, m.Phone, m.Email); err != nil {
		s.logger.Warn("persist mined contact failed", "conversation", conv.ID, "error", err)
		return
	}
	if (conv.HandoffName == "" && m.Name != "") || (conv.HandoffPhone == "" && m.Phone != "") {
		s.hub.Broadcast(realtime.Notification{
			Type:         realtime.TypeNewLead,
			DealershipID: conv.DealershipID,
			Title:        "New lead contact info",
			Data:         map[string]any{"conversationId": conv.ID},
		})
	}
}

func (s *Service) replyWithAI(ctx context.Context, d *store.Dealership, conv *store.Conversation) {
	history, err := s.stores.Messages.ListByConversation(ctx, conv.ID, d.ID, historyLimit)
	if err != nil {
		s.logger.Error("ai reply: history load failed", "conversation", conv.ID, "error", err)
		return
	}
	turns := make([]adapters.Turn, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Direction == store.DirectionOutbound {
			role = "assistant"
		}
		turns = append(turns, adapters.Turn{Role: role, Content: m.Content})
	}

	reply, err := s.ai.Reply(ctx, d, turns)
	if err != nil {
		s.logger.Error("ai reply failed", "conversation", conv.ID, "error", err)
		return
	}
	if _, err := s.SendOutbound(ctx, d, conv, reply, "AI Assistant", store.SourceLotview); err != nil {
		s.logger.Error("ai reply send failed", "conversation", conv.ID, "error", err)
	}
}

// SendOutbound pushes a message to the customer through the CRM, persisting
// the outbound row with its ghlMessageId before returning so the CRM echo is
// deduped on arrival. On CRM failure a generic webhook sink is tried; the
// conversation is marked handed off either way.
func (s *Service) SendOutbound(ctx context.Context, d *store.Dealership, conv *store.Conversation, body, senderName string, source store.SyncSource) (*store.Message, error) {
	if conv.GHLContactID == "" {
		contact, err := s.crm.FindOrCreateContact(ctx, d, conv.HandoffName, conv.HandoffEmail, conv.HandoffPhone)
		if err != nil {
			s.logger.Warn("crm contact resolve failed", "conversation", conv.ID, "error", err)
		} else {
			conv.GHLContactID = contact.ID
			if err := s.stores.Conversations.Update(ctx, conv); err != nil {
				s.logger.Warn("persist crm contact failed", "conversation", conv.ID, "error", err)
			}
		}
	}

	var ghlID string
	var sendErr error
	if conv.GHLContactID != "" {
		ghlID, sendErr = s.crm.SendMessage(ctx, d, conv.GHLContactID, conv.Channel, body)
	} else {
		sendErr = adapters.ErrNoCRMKey
	}
	if sendErr != nil {
		// A failed CRM send hands the conversation to a human whether or not
		// the fallback sink accepts the message.
		if err := s.stores.Conversations.SetHandoff(ctx, conv.ID, d.ID, conv.HandoffName, conv.HandoffPhone, conv.HandoffEmail); err != nil {
			s.logger.Warn("handoff mark failed", "conversation", conv.ID, "error", err)
		}
		if err := s.sendFallback(ctx, d, conv, body); err != nil {
			return nil, fmt.Errorf("outbound send: crm: %v, fallback: %w", sendErr, err)
		}
	}

	now := time.Now().UTC()
	msg := &store.Message{
		DealershipID:   d.ID,
		ConversationID: conv.ID,
		GHLMessageID:   ghlID,
		Direction:      store.DirectionOutbound,
		SenderName:     senderName,
		Content:        body,
		IsRead:         true,
		SentAt:         now,
		SyncSource:     source,
	}
	stored, err := s.stores.Messages.Insert(ctx, msg)
	if err != nil {
		if !errors.Is(err, store.ErrAlreadyExists) {
			return nil, err
		}
		if stored == nil {
			stored = msg
		}
	}

	if err := s.stores.Conversations.TouchLastMessage(ctx, conv.ID, body, now); err != nil {
		s.logger.Warn("touch last message failed", "conversation", conv.ID, "error", err)
	}

	s.hub.Broadcast(realtime.Notification{
		Type:         realtime.TypeChatMessage,
		DealershipID: d.ID,
		Data: map[string]any{
			"conversationId": conv.ID,
			"messageId":      stored.ID,
			"direction":      "outbound",
		},
	})
	return stored, nil
}

func (s *Service) sendFallback(ctx context.Context, d *store.Dealership, conv *store.Conversation, body string) error {
	if s.FallbackWebhookURL == "" || s.fallback == nil {
		return errors.New("no fallback sink configured")
	}
	payload := map[string]any{
		"dealershipId":   d.ID,
		"conversationId": conv.ID,
		"channel":        string(conv.Channel),
		"participantId":  conv.ParticipantID,
		"message":        body,
		"handoffName":    conv.HandoffName,
		"handoffPhone":   conv.HandoffPhone,
		"handoffEmail":   conv.HandoffEmail,
	}
	return s.fallback.DoJSON(ctx, http.MethodPost, s.FallbackWebhookURL, nil, &d.ID, payload, nil)
}
