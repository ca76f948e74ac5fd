package posting

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openautogroup/lotview/internal/store"
)

// TokenTTL is the posting-token lifetime: long enough for a browser session
// to fill the listing form, short enough that a stale token is worthless.
const TokenTTL = 15 * time.Minute

// ErrDailyCapReached is returned when the user has exhausted today's posts.
// The handler maps it to 429.
var ErrDailyCapReached = errors.New("posting: daily posting limit reached")

// Service mints one-time posting tokens and manages the queue. The daily cap
// is enforced here, server-side at token issuance; the browser extension is
// untrusted.
type Service struct {
	stores *store.Stores
	logger *slog.Logger
}

func NewService(st *store.Stores, logger *slog.Logger) *Service {
	return &Service{stores: st, logger: logger}
}

// MintToken re-checks the cap, verifies vehicle ownership, and issues a
// single-use token bound to (user, vehicle, platform). The cap re-check and
// the slot reservation are one atomic store operation, so 100 concurrent
// mints at cap-1 produce exactly one token.
func (s *Service) MintToken(ctx context.Context, u *store.User, dealershipID, vehicleID int64, platform string) (*store.PostingToken, error) {
	if _, err := s.stores.Vehicles.Get(ctx, vehicleID, dealershipID); err != nil {
		return nil, err
	}

	d, err := s.stores.Dealerships.Get(ctx, dealershipID)
	if err != nil {
		return nil, err
	}
	dailyCap := d.PostingDailyCap
	if dailyCap <= 0 {
		dailyCap = store.DefaultPostingDailyCap
	}

	now := time.Now().UTC()
	if err := s.stores.PostingQueue.ReserveDailySlot(ctx, u.ID, dealershipID, dailyCap, now); err != nil {
		if errors.Is(err, store.ErrInvalid) {
			return nil, ErrDailyCapReached
		}
		return nil, err
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	tok := &store.PostingToken{
		ID:        uuid.Must(uuid.NewV7()),
		Token:     hex.EncodeToString(buf),
		UserID:    u.ID,
		VehicleID: vehicleID,
		Platform:  platform,
		ExpiresAt: now.Add(TokenTTL),
		CreatedAt: now,
	}
	if err := s.stores.PostingTokens.Create(ctx, tok); err != nil {
		return nil, err
	}
	s.logger.Info("posting token minted", "user", u.ID, "vehicle", vehicleID, "platform", platform)
	return tok, nil
}

// ConsumeToken validates and burns a posting token. A second call with the
// same raw token fails.
func (s *Service) ConsumeToken(ctx context.Context, raw string, userID, vehicleID int64, platform string) (*store.PostingToken, error) {
	return s.stores.PostingTokens.Consume(ctx, raw, userID, vehicleID, platform, time.Now().UTC())
}

// CheckToken validates a posting token's binding and freshness without
// burning it. Used when the extension reports a failed attempt: the token
// stays live so the user can retry until the TTL expires.
func (s *Service) CheckToken(ctx context.Context, raw string, userID, vehicleID int64, platform string) (*store.PostingToken, error) {
	return s.stores.PostingTokens.Peek(ctx, raw, userID, vehicleID, platform, time.Now().UTC())
}

// Enqueue adds vehicles to the posting queue, one item per vehicle. Each
// vehicle is ownership-checked against the tenant before queueing.
func (s *Service) Enqueue(ctx context.Context, u *store.User, dealershipID int64, vehicleIDs []int64, accountID, templateID string, priority int) ([]store.PostingQueueItem, error) {
	if len(vehicleIDs) == 0 {
		return nil, store.ErrInvalid
	}
	items := make([]store.PostingQueueItem, 0, len(vehicleIDs))
	for _, vid := range vehicleIDs {
		if _, err := s.stores.Vehicles.Get(ctx, vid, dealershipID); err != nil {
			return nil, err
		}
		item := store.PostingQueueItem{
			ID:           uuid.Must(uuid.NewV7()),
			DealershipID: dealershipID,
			UserID:       u.ID,
			VehicleID:    vid,
			AccountID:    accountID,
			TemplateID:   templateID,
			Status:       store.PostingQueued,
			Priority:     priority,
		}
		if err := s.stores.PostingQueue.Enqueue(ctx, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// ReportSuccess records a completed post: consume the token, upsert the
// listing row, stamp the vehicle.
func (s *Service) ReportSuccess(ctx context.Context, tok *store.PostingToken, dealershipID int64, accountID, listingURL string) error {
	now := time.Now().UTC()
	l := &store.MarketplaceListing{
		ID:           uuid.Must(uuid.NewV7()),
		DealershipID: dealershipID,
		VehicleID:    tok.VehicleID,
		AccountID:    accountID,
		Platform:     tok.Platform,
		ListingURL:   listingURL,
		Status:       "posted",
		PostedAt:     now,
		PostedByID:   tok.UserID,
	}
	if err := s.stores.PostingQueue.UpsertListing(ctx, l); err != nil {
		return err
	}

	v, err := s.stores.Vehicles.Get(ctx, tok.VehicleID, dealershipID)
	if err != nil {
		return err
	}
	v.MarketplacePostedAt = &now
	return s.stores.Vehicles.Update(ctx, v)
}
