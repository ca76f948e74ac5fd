package posting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openautogroup/lotview/internal/realtime"
	"github.com/openautogroup/lotview/internal/store"
)

// The fakes embed the store interfaces so only the methods the posting
// package touches need implementations; anything else panics loudly.

type fakeVehicles struct {
	store.VehicleStore
	vehicles map[int64]*store.Vehicle
}

func (f *fakeVehicles) Get(ctx context.Context, id, dealershipID int64) (*store.Vehicle, error) {
	v, ok := f.vehicles[id]
	if !ok || v.DealershipID != dealershipID {
		return nil, store.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVehicles) Update(ctx context.Context, v *store.Vehicle) error {
	if _, ok := f.vehicles[v.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *v
	f.vehicles[v.ID] = &cp
	return nil
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

type fakePostingQueue struct {
	store.PostingStore
	items      map[uuid.UUID]*store.PostingQueueItem
	listings   map[string]*store.MarketplaceListing
	reserved   int
	reserveErr error
}

func newFakePostingQueue() *fakePostingQueue {
	return &fakePostingQueue{
		items:    map[uuid.UUID]*store.PostingQueueItem{},
		listings: map[string]*store.MarketplaceListing{},
	}
}

func (f *fakePostingQueue) Enqueue(ctx context.Context, item *store.PostingQueueItem) error {
	item.CreatedAt = time.Now()
	cp := *item
	f.items[item.ID] = &cp
	return nil
}

func (f *fakePostingQueue) NextReady(ctx context.Context, now time.Time) (*store.PostingQueueItem, error) {
	var best *store.PostingQueueItem
	for _, it := range f.items {
		if it.Status != store.PostingQueued {
			continue
		}
		if it.ScheduledFor != nil && it.ScheduledFor.After(now) {
			continue
		}
		if best == nil || it.Priority < best.Priority ||
			(it.Priority == best.Priority && it.CreatedAt.Before(best.CreatedAt)) {
			best = it
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	best.Status = store.PostingInProgress
	cp := *best
	return &cp, nil
}

func (f *fakePostingQueue) Update(ctx context.Context, item *store.PostingQueueItem) error {
	if _, ok := f.items[item.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *item
	f.items[item.ID] = &cp
	return nil
}

func (f *fakePostingQueue) ReserveDailySlot(ctx context.Context, userID, dealershipID int64, dailyCap int, now time.Time) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	if f.reserved >= dailyCap {
		return store.ErrInvalid
	}
	f.reserved++
	return nil
}

func (f *fakePostingQueue) UpsertListing(ctx context.Context, l *store.MarketplaceListing) error {
	key := l.AccountID + "/" + strconv.FormatInt(l.VehicleID, 10)
	cp := *l
	f.listings[key] = &cp
	return nil
}

type fakePostingTokens struct {
	store.PostingTokenStore
	tokens map[string]*store.PostingToken
}

func newFakePostingTokens() *fakePostingTokens {
	return &fakePostingTokens{tokens: map[string]*store.PostingToken{}}
}

func (f *fakePostingTokens) Create(ctx context.Context, t *store.PostingToken) error {
	cp := *t
	f.tokens[t.Token] = &cp
	return nil
}

func (f *fakePostingTokens) Consume(ctx context.Context, raw string, userID, vehicleID int64, platform string, now time.Time) (*store.PostingToken, error) {
	t, ok := f.tokens[raw]
	if !ok || t.UsedAt != nil || now.After(t.ExpiresAt) ||
		t.UserID != userID || t.VehicleID != vehicleID || t.Platform != platform {
		return nil, store.ErrNotFound
	}
	used := now
	t.UsedAt = &used
	cp := *t
	return &cp, nil
}

func (f *fakePostingTokens) Peek(ctx context.Context, raw string, userID, vehicleID int64, platform string, now time.Time) (*store.PostingToken, error) {
	t, ok := f.tokens[raw]
	if !ok || t.UsedAt != nil || now.After(t.ExpiresAt) ||
		t.UserID != userID || t.VehicleID != vehicleID || t.Platform != platform {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func testStores(dailyCap int) (*store.Stores, *fakeVehicles, *fakePostingQueue, *fakePostingTokens) {
	did := int64(1)
	vehicles := &fakeVehicles{vehicles: map[int64]*store.Vehicle{
		10: {ID: 10, DealershipID: did, VIN: "2T3H1RFV8MC123456", Make: "Toyota", Model: "RAV4", Year: 2021, Price: 31000},
	}}
	queue := newFakePostingQueue()
	tokens := newFakePostingTokens()
	st := &store.Stores{
		Vehicles:      vehicles,
		Dealerships:   &fakeDealerships{dealerships: map[int64]*store.Dealership{did: {ID: did, Name: "Main", PostingDailyCap: dailyCap}}},
		PostingQueue:  queue,
		PostingTokens: tokens,
	}
	return st, vehicles, queue, tokens
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMintToken(t *testing.T) {
	st, _, _, _ := testStores(2)
	svc := NewService(st, quiet())
	u := &store.User{ID: 5, Role: store.RoleSalesperson}

	tok, err := svc.MintToken(context.Background(), u, 1, 10, "facebook")
	if err != nil {
		t.Fatal(err)
	}
	if len(tok.Token) != 48 {
		t.Errorf("Token length = %d, want 48 hex chars", len(tok.Token))
	}
	if tok.UserID != 5 || tok.VehicleID != 10 || tok.Platform != "facebook" {
		t.Errorf("binding = %+v", tok)
	}
	if got := tok.ExpiresAt.Sub(tok.CreatedAt); got != TokenTTL {
		t.Errorf("TTL = %v, want %v", got, TokenTTL)
	}
}

func TestMintToken_DailyCap(t *testing.T) {
	st, _, _, _ := testStores(2)
	svc := NewService(st, quiet())
	u := &store.User{ID: 5}

	for i := 0; i < 2; i++ {
		if _, err := svc.MintToken(context.Background(), u, 1, 10, "facebook"); err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
	}
	_, err := svc.MintToken(context.Background(), u, 1, 10, "facebook")
	if !errors.Is(err, ErrDailyCapReached) {
		t.Errorf("err = %v, want ErrDailyCapReached", err)
	}
}

func TestMintToken_CrossTenantVehicleRefused(t *testing.T) {
	st, _, _, _ := testStores(5)
	svc := NewService(st, quiet())

	_, err := svc.MintToken(context.Background(), &store.User{ID: 5}, 2, 10, "facebook")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for a vehicle outside the tenant", err)
	}
}

func TestConsumeToken_SingleUse(t *testing.T) {
	st, _, _, _ := testStores(5)
	svc := NewService(st, quiet())
	u := &store.User{ID: 5}

	tok, err := svc.MintToken(context.Background(), u, 1, 10, "facebook")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ConsumeToken(context.Background(), tok.Token, 5, 10, "facebook"); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := svc.ConsumeToken(context.Background(), tok.Token, 5, 10, "facebook"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second consume err = %v, want ErrNotFound", err)
	}
}

func TestCheckToken_LeavesTokenUsable(t *testing.T) {
	st, _, _, _ := testStores(5)
	svc := NewService(st, quiet())
	u := &store.User{ID: 5}

	tok, err := svc.MintToken(context.Background(), u, 1, 10, "facebook")
	if err != nil {
		t.Fatal(err)
	}

	// Checking validates the binding without burning; the token still
	// consumes afterwards.
	if _, err := svc.CheckToken(context.Background(), tok.Token, 5, 10, "facebook"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, err := svc.ConsumeToken(context.Background(), tok.Token, 5, 10, "facebook"); err != nil {
		t.Fatalf("consume after check: %v", err)
	}
	if _, err := svc.CheckToken(context.Background(), tok.Token, 5, 10, "facebook"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("check after consume err = %v, want ErrNotFound", err)
	}
}

func TestConsumeToken_WrongBindingRefused(t *testing.T) {
	st, _, _, _ := testStores(5)
	svc := NewService(st, quiet())

	tok, err := svc.MintToken(context.Background(), &store.User{ID: 5}, 1, 10, "facebook")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name              string
		userID, vehicleID int64
		platform          string
	}{
		{"other user", 6, 10, "facebook"},
		{"other vehicle", 5, 11, "facebook"},
		{"other platform", 5, 10, "kijiji"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ConsumeToken(context.Background(), tok.Token, tt.userID, tt.vehicleID, tt.platform); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestEnqueue(t *testing.T) {
	st, _, queue, _ := testStores(5)
	svc := NewService(st, quiet())
	u := &store.User{ID: 5}

	items, err := svc.Enqueue(context.Background(), u, 1, []int64{10}, "acct-1", "tpl-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Status != store.PostingQueued || items[0].Priority != 2 {
		t.Errorf("item = %+v", items[0])
	}
	if len(queue.items) != 1 {
		t.Errorf("queue holds %d items, want 1", len(queue.items))
	}

	if _, err := svc.Enqueue(context.Background(), u, 1, nil, "acct-1", "", 0); !errors.Is(err, store.ErrInvalid) {
		t.Errorf("empty enqueue err = %v, want ErrInvalid", err)
	}
	if _, err := svc.Enqueue(context.Background(), u, 1, []int64{99}, "acct-1", "", 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown vehicle err = %v, want ErrNotFound", err)
	}
}

func TestReportSuccess_StampsVehicle(t *testing.T) {
	st, vehicles, queue, _ := testStores(5)
	svc := NewService(st, quiet())

	tok := &store.PostingToken{UserID: 5, VehicleID: 10, Platform: "facebook"}
	if err := svc.ReportSuccess(context.Background(), tok, 1, "acct-1", "https://fb.test/listing/1"); err != nil {
		t.Fatal(err)
	}
	if len(queue.listings) != 1 {
		t.Errorf("listings = %d, want 1", len(queue.listings))
	}
	if vehicles.vehicles[10].MarketplacePostedAt == nil {
		t.Error("MarketplacePostedAt must be stamped after a successful post")
	}
}

type fakePoster struct {
	res *PostResult
	err error
}

func (f *fakePoster) Post(ctx context.Context, req *PostRequest) (*PostResult, error) {
	return f.res, f.err
}

func TestWorker_ProcessOneSuccess(t *testing.T) {
	st, vehicles, queue, _ := testStores(5)
	item := &store.PostingQueueItem{ID: uuid.Must(uuid.NewV7()), DealershipID: 1, UserID: 5, VehicleID: 10, AccountID: "acct-1", Status: store.PostingQueued}
	queue.Enqueue(context.Background(), item)

	w := NewWorker(st, &fakePoster{res: &PostResult{Success: true, ListingURL: "https://fb.test/l/1"}}, realtime.NewHub(quiet()), quiet())
	if !w.processOne(context.Background()) {
		t.Fatal("processOne found no item")
	}

	got := queue.items[item.ID]
	if got.Status != store.PostingPosted || got.PostedAt == nil {
		t.Errorf("item = %+v, want posted", got)
	}
	if got.ExternalListingID != "https://fb.test/l/1" {
		t.Errorf("ExternalListingID = %q", got.ExternalListingID)
	}
	if vehicles.vehicles[10].MarketplacePostedAt == nil {
		t.Error("vehicle not stamped")
	}
}

func TestWorker_RetriesThenFails(t *testing.T) {
	st, _, queue, _ := testStores(5)
	item := &store.PostingQueueItem{ID: uuid.Must(uuid.NewV7()), DealershipID: 1, UserID: 5, VehicleID: 10, AccountID: "acct-1", Status: store.PostingQueued}
	queue.Enqueue(context.Background(), item)

	w := NewWorker(st, &fakePoster{err: errors.New("form never loaded")}, realtime.NewHub(quiet()), quiet())

	// First two attempts back off and requeue.
	for attempt := 1; attempt < maxAttempts; attempt++ {
		// Clear the backoff so NextReady picks the item up again.
		queue.items[item.ID].ScheduledFor = nil
		if !w.processOne(context.Background()) {
			t.Fatalf("attempt %d: no item claimed", attempt)
		}
		got := queue.items[item.ID]
		if got.Status != store.PostingQueued || got.AttemptCount != attempt {
			t.Fatalf("attempt %d: status=%s attempts=%d, want requeued", attempt, got.Status, got.AttemptCount)
		}
		if got.ScheduledFor == nil || !got.ScheduledFor.After(time.Now()) {
			t.Fatalf("attempt %d: retry must be scheduled in the future", attempt)
		}
	}

	queue.items[item.ID].ScheduledFor = nil
	w.processOne(context.Background())
	got := queue.items[item.ID]
	if got.Status != store.PostingFailed || got.AttemptCount != maxAttempts {
		t.Errorf("final status=%s attempts=%d, want failed/%d", got.Status, got.AttemptCount, maxAttempts)
	}
	if got.LastError == "" {
		t.Error("LastError must carry the cause")
	}
}

func TestWorker_EmptyQueue(t *testing.T) {
	st, _, _, _ := testStores(5)
	w := NewWorker(st, &fakePoster{}, realtime.NewHub(quiet()), quiet())
	if w.processOne(context.Background()) {
		t.Error("processOne on an empty queue must report false")
	}
}

func TestListingDescription(t *testing.T) {
	v := &store.Vehicle{Description: "scraped", ManualDescription: "hand-written", IsManuallyEdited: true}
	if got := listingDescription(v); got != "hand-written" {
		t.Errorf("got %q, want manual copy", got)
	}
	v.IsManuallyEdited = false
	if got := listingDescription(v); got != "scraped" {
		t.Errorf("got %q, want scraped copy", got)
	}
}
