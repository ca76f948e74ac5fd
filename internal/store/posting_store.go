package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PostingStatus is the lifecycle of a queue item.
type PostingStatus string

const (
	PostingQueued      PostingStatus = "queued"
	PostingInProgress  PostingStatus = "posting"
	PostingPosted      PostingStatus = "posted"
	PostingFailed      PostingStatus = "failed"
	PostingCancelled   PostingStatus = "cancelled"
	PostingInterrupted PostingStatus = "interrupted"
)

// PostingQueueItem is one listing to publish. Lower priority runs sooner.
type PostingQueueItem struct {
	ID                uuid.UUID     `json:"id"`
	DealershipID      int64         `json:"dealershipId"`
	UserID            int64         `json:"userId"`
	VehicleID         int64         `json:"vehicleId"`
	AccountID         string        `json:"accountId"`
	TemplateID        string        `json:"templateId,omitempty"`
	Status            PostingStatus `json:"status"`
	Priority          int           `json:"priority"`
	AttemptCount      int           `json:"attemptCount"`
	LastError         string        `json:"lastError,omitempty"`
	ScheduledFor      *time.Time    `json:"scheduledFor,omitempty"`
	PostedAt          *time.Time    `json:"postedAt,omitempty"`
	ExternalListingID string        `json:"externalListingId,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// MarketplaceListing records a published listing, unique per
// (vehicleId, accountId).
type MarketplaceListing struct {
	ID           uuid.UUID `json:"id"`
	DealershipID int64     `json:"dealershipId"`
	VehicleID    int64     `json:"vehicleId"`
	AccountID    string    `json:"accountId"`
	Platform     string    `json:"platform"`
	ListingURL   string    `json:"listingUrl,omitempty"`
	Status       string    `json:"status"`
	PostedAt     time.Time `json:"postedAt"`
	PostedByID   int64     `json:"postedById"`
}

// PostingStore persists the queue, listings, and the daily cap counter.
type PostingStore interface {
	Enqueue(ctx context.Context, item *PostingQueueItem) error
	Get(ctx context.Context, id uuid.UUID, dealershipID int64) (*PostingQueueItem, error)
	// NextReady claims the oldest ready queued item ordered by
	// (priority ASC, createdAt ASC), moving it to status=posting. Returns
	// ErrNotFound when the queue is empty.
	NextReady(ctx context.Context, now time.Time) (*PostingQueueItem, error)
	Update(ctx context.Context, item *PostingQueueItem) error
	ListByDealership(ctx context.Context, dealershipID int64, page, limit int) ([]PostingQueueItem, int, error)
	// MarkInterrupted flags in-flight items on shutdown.
	MarkInterrupted(ctx context.Context, id uuid.UUID) error

	// DailySlotsUsed counts the slots a user has reserved since midnight. A
	// reservation is held at token issuance whether or not the publish
	// ultimately succeeded, so this is the number the cap compares against.
	DailySlotsUsed(ctx context.Context, userID, dealershipID int64, now time.Time) (int, error)
	// ReserveDailySlot atomically counts today's reservations and inserts a
	// reservation row when under cap. Two concurrent reservations cannot
	// both succeed at the cap boundary.
	ReserveDailySlot(ctx context.Context, userID, dealershipID int64, cap int, now time.Time) error

	UpsertListing(ctx context.Context, l *MarketplaceListing) error
	ListingsByVehicle(ctx context.Context, vehicleID, dealershipID int64) ([]MarketplaceListing, error)
}
