package convo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openautogroup/lotview/internal/adapters"
	"github.com/openautogroup/lotview/internal/realtime"
	"github.com/openautogroup/lotview/internal/store"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDealerships struct {
	store.DealershipStore
	dealerships map[int64]*store.Dealership
}

func (f *fakeDealerships) GetByGHLLocation(ctx context.Context, externalID string) (*store.Dealership, error) {
	for _, d := range f.dealerships {
		if d.GHLLocationID == externalID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeConversations struct {
	store.ConversationStore
	nextID        int64
	conversations map[int64]*store.Conversation
	handoffs      int
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{conversations: map[int64]*store.Conversation{}}
}

func (f *fakeConversations) Upsert(ctx context.Context, c *store.Conversation) (*store.Conversation, error) {
	for _, ex := range f.conversations {
		if ex.DealershipID == c.DealershipID && ex.Channel == c.Channel && ex.ParticipantID == c.ParticipantID {
			cp := *ex
			return &cp, nil
		}
	}
	f.nextID++
	c.ID = f.nextID
	cp := *c
	f.conversations[c.ID] = &cp
	out := *c
	return &out, nil
}

func (f *fakeConversations) Update(ctx context.Context, c *store.Conversation) error {
	if _, ok := f.conversations[c.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *c
	f.conversations[c.ID] = &cp
	return nil
}

func (f *fakeConversations) SetHandoff(ctx context.Context, id, dealershipID int64, name, phone, email string) error {
	c, ok := f.conversations[id]
	if !ok || c.DealershipID != dealershipID {
		return store.ErrNotFound
	}
	f.handoffs++
	if c.HandoffName == "" {
		c.HandoffName = name
	}
	if c.HandoffPhone == "" {
		c.HandoffPhone = phone
	}
	if c.HandoffEmail == "" {
		c.HandoffEmail = email
	}
	return nil
}

func (f *fakeConversations) TouchLastMessage(ctx context.Context, id int64, preview string, at time.Time) error {
	c, ok := f.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	c.LastMessage = preview
	c.LastMessageAt = &at
	return nil
}

type fakeMessages struct {
	store.MessageStore
	nextID int64
	// raceLostInsert simulates losing a dedup race where the winning row
	// cannot be read back: Insert answers (nil, ErrAlreadyExists).
	raceLostInsert bool
	messages       []*store.Message
}

func (f *fakeMessages) Insert(ctx context.Context, m *store.Message) (*store.Message, error) {
	if f.raceLostInsert {
		return nil, store.ErrAlreadyExists
	}
	for _, ex := range f.messages {
		if ex.DealershipID != m.DealershipID {
			continue
		}
		if (m.ExternalMessageID != "" && ex.ExternalMessageID == m.ExternalMessageID) ||
			(m.GHLMessageID != "" && ex.GHLMessageID == m.GHLMessageID) {
			cp := *ex
			return &cp, store.ErrAlreadyExists
		}
	}
	f.nextID++
	m.ID = f.nextID
	cp := *m
	f.messages = append(f.messages, &cp)
	out := *m
	return &out, nil
}

func (f *fakeMessages) Exists(ctx context.Context, dealershipID int64, externalMessageID, ghlMessageID string) (bool, error) {
	for _, ex := range f.messages {
		if ex.DealershipID != dealershipID {
			continue
		}
		if (externalMessageID != "" && ex.ExternalMessageID == externalMessageID) ||
			(ghlMessageID != "" && ex.GHLMessageID == ghlMessageID) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMessages) ExistsNear(ctx context.Context, conversationID int64, direction store.Direction, body string, at time.Time, window time.Duration) (bool, error) {
	for _, ex := range f.messages {
		if ex.ConversationID != conversationID || ex.Direction != direction || ex.Content != body {
			continue
		}
		if ex.SentAt.After(at.Add(-window)) && ex.SentAt.Before(at.Add(window)) {
			return true, nil
		}
	}
	return false, nil
}

func hubStores() (*store.Stores, *fakeConversations, *fakeMessages) {
	conversations := newFakeConversations()
	messages := &fakeMessages{}
	st := &store.Stores{
		Dealerships: &fakeDealerships{dealerships: map[int64]*store.Dealership{
			1: {ID: 1, Name: "Main", IsActive: true, GHLLocationID: "loc-1"},
		}},
		Conversations: conversations,
		Messages:      messages,
	}
	return st, conversations, messages
}

func TestProcessInbound_RaceLostInsertIsDuplicate(t *testing.T) {
	st, _, messages := hubStores()
	messages.raceLostInsert = true
	svc := NewService(st, nil, nil, realtime.NewHub(quiet()), nil, "", quiet())

	res, err := svc.ProcessInbound(context.Background(), &InboundEvent{
		Channel:       store.ChannelSMS,
		LocationID:    "loc-1",
		ParticipantID: "contact-9",
		GHLMessageID:  "msg-1",
		Body:          "hello",
		Direction:     store.DirectionInbound,
		SentAt:        time.Now(),
		Source:        store.SourceCRM,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Duplicate {
		t.Error("a race-lost insert must still report the delivery as duplicate")
	}
	if res.ConversationID == 0 {
		t.Error("duplicate result must carry the conversation id")
	}
}

func TestSendOutbound_HandsOffEvenWhenFallbackFails(t *testing.T) {
	// The CRM rejects the send and no fallback sink is configured; the
	// conversation still goes to a human.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"msg":"no such contact"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	st, conversations, _ := hubStores()
	crm := adapters.NewCRM(adapters.NewClient("ghl", time.Second, nil, quiet()), srv.URL, "platform-key")
	svc := NewService(st, crm, nil, realtime.NewHub(quiet()), nil, "", quiet())

	d := &store.Dealership{ID: 1, Name: "Main", GHLAPIKey: "dealer-key", GHLLocationID: "loc-1"}
	conv := &store.Conversation{ID: 7, DealershipID: 1, Channel: store.ChannelSMS, ParticipantID: "contact-9", GHLContactID: "c-1"}
	cp := *conv
	conversations.conversations[7] = &cp

	_, err := svc.SendOutbound(context.Background(), d, conv, "hi there", "Agent", store.SourceLotview)
	if err == nil {
		t.Fatal("send with no working delivery path must fail")
	}
	if conversations.handoffs == 0 {
		t.Error("conversation must be marked handed off even when the fallback also fails")
	}
}

func TestNormalizeChannel(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    store.Channel
		wantErr bool
	}{
		{"numeric email", float64(1), store.ChannelEmail, false},
		{"numeric sms", float64(2), store.ChannelSMS, false},
		{"numeric call maps to sms", float64(3), store.ChannelSMS, false},
		{"numeric unknown", float64(9), "", true},
		{"string sms", "sms", store.ChannelSMS, false},
		{"string messenger", "messenger", store.ChannelMessenger, false},
		{"fb alias", "fb", store.ChannelMessenger, false},
		{"facebook alias", "Facebook", store.ChannelMessenger, false},
		{"livechat alias", "livechat", store.ChannelWebsiteChat, false},
		{"chat alias", "chat", store.ChannelWebsiteChat, false},
		{"whitespace trimmed", "  email ", store.ChannelEmail, false},
		{"unknown string", "pigeon", "", true},
		{"wrong type", true, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeChannel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeChannel(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
