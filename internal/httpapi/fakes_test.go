package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/store"
)

// The handler tests drive real routes on a ServeMux with the identity
// injected straight into the request context, the way the resolver
// middleware would. Fakes embed the store interfaces so only the methods a
// handler touches need bodies.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonRequest(method, target string, body any) *http.Request {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		rd = bytes.NewReader(b)
	}
	r := httptest.NewRequest(method, target, rd)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func asIdentity(r *http.Request, id *auth.Identity) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), id))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return m
}

type fakeUsers struct {
	store.UserStore
	users  map[int64]*store.User
	resets map[int64]*store.PasswordResetToken
}

func (f *fakeUsers) Get(ctx context.Context, id int64) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) CreateResetToken(ctx context.Context, t *store.PasswordResetToken) error {
	t.ID = int64(len(f.resets) + 1)
	f.resets[t.ID] = t
	return nil
}

func (f *fakeUsers) ActiveResetTokens(ctx context.Context, now time.Time) ([]store.PasswordResetToken, error) {
	var out []store.PasswordResetToken
	for _, t := range f.resets {
		if t.ExpiresAt.After(now) && t.UsedAt == nil {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeDealerships struct {
	store.DealershipStore
	dealerships map[int64]*store.Dealership
}

func (f *fakeDealerships) Get(ctx context.Context, id int64) (*store.Dealership, error) {
	d, ok := f.dealerships[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDealerships) GetByGHLLocation(ctx context.Context, externalID string) (*store.Dealership, error) {
	for _, d := range f.dealerships {
		if d.GHLLocationID == externalID || d.MessengerPageID == externalID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeVehicles struct {
	store.VehicleStore
	nextID   int64
	vehicles map[int64]*store.Vehicle
}

func newFakeVehicles() *fakeVehicles {
	return &fakeVehicles{vehicles: map[int64]*store.Vehicle{}}
}

func (f *fakeVehicles) Create(ctx context.Context, v *store.Vehicle) error {
	for _, ex := range f.vehicles {
		if ex.DealershipID == v.DealershipID && ex.VIN != "" && ex.VIN == v.VIN {
			return store.ErrAlreadyExists
		}
	}
	f.nextID++
	v.ID = f.nextID
	cp := *v
	f.vehicles[v.ID] = &cp
	return nil
}

func (f *fakeVehicles) Get(ctx context.Context, id, dealershipID int64) (*store.Vehicle, error) {
	v, ok := f.vehicles[id]
	if !ok || v.DealershipID != dealershipID {
		return nil, store.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVehicles) GetByVIN(ctx context.Context, vin string, dealershipID int64) (*store.Vehicle, error) {
	for _, v := range f.vehicles {
		if v.DealershipID == dealershipID && v.VIN == vin {
			cp := *v
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeVehicles) List(ctx context.Context, dealershipID int64, opts store.VehicleListOpts) (*store.VehicleList, error) {
	var items []store.Vehicle
	for _, v := range f.vehicles {
		if v.DealershipID == dealershipID {
			items = append(items, *v)
		}
	}
	return &store.VehicleList{Items: items, Total: len(items)}, nil
}

func (f *fakeVehicles) Count(ctx context.Context, dealershipID int64) (int, error) {
	n := 0
	for _, v := range f.vehicles {
		if v.DealershipID == dealershipID {
			n++
		}
	}
	return n, nil
}

func (f *fakeVehicles) Update(ctx context.Context, v *store.Vehicle) error {
	if _, ok := f.vehicles[v.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *v
	f.vehicles[v.ID] = &cp
	return nil
}

func (f *fakeVehicles) Delete(ctx context.Context, id, dealershipID int64) error {
	v, ok := f.vehicles[id]
	if !ok || v.DealershipID != dealershipID {
		return store.ErrNotFound
	}
	delete(f.vehicles, id)
	return nil
}

func (f *fakeVehicles) DeleteByVIN(ctx context.Context, vin string, dealershipID int64) error {
	for id, v := range f.vehicles {
		if v.DealershipID == dealershipID && v.VIN == vin {
			delete(f.vehicles, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeVehicles) VINsNotIn(ctx context.Context, keep []string, dealershipID int64) ([]string, error) {
	keepSet := map[string]bool{}
	for _, k := range keep {
		keepSet[strings.ToUpper(k)] = true
	}
	var vins []string
	for _, v := range f.vehicles {
		if v.DealershipID == dealershipID && v.VIN != "" && !keepSet[v.VIN] {
			vins = append(vins, v.VIN)
		}
	}
	return vins, nil
}

func (f *fakeVehicles) DeleteByVINNotIn(ctx context.Context, keep []string, dealershipID int64) (*store.BulkDeleteResult, error) {
	if len(keep) == 0 {
		return nil, store.ErrInvalid
	}
	vins, _ := f.VINsNotIn(ctx, keep, dealershipID)
	for _, vin := range vins {
		f.DeleteByVIN(ctx, vin, dealershipID)
	}
	return &store.BulkDeleteResult{DeletedVINs: vins, DeletedCount: len(vins)}, nil
}

type fakeConversations struct {
	store.ConversationStore
	nextID        int64
	conversations map[int64]*store.Conversation
	aiEnabled     bool
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
	c.AIEnabled = f.aiEnabled
	cp := *c
	f.conversations[c.ID] = &cp
	out := *c
	return &out, nil
}

func (f *fakeConversations) SetHandoff(ctx context.Context, id, dealershipID int64, name, phone, email string) error {
	c, ok := f.conversations[id]
	if !ok || c.DealershipID != dealershipID {
		return store.ErrNotFound
	}
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
	nextID   int64
	messages []*store.Message
}

func (f *fakeMessages) Insert(ctx context.Context, m *store.Message) (*store.Message, error) {
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
