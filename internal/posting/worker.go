package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openautogroup/lotview/internal/realtime"
	"github.com/openautogroup/lotview/internal/store"
)

const (
	pollInterval = 30 * time.Second
	maxAttempts  = 3
	retryBackoff = 10 * time.Minute
)

// Worker drains the posting queue: claim the next ready item, build the
// listing, drive the poster, record the outcome. One item is in flight at a
// time; the claim uses SKIP LOCKED so multiple workers never double-post.
type Worker struct {
	stores *store.Stores
	poster Poster
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewWorker(st *store.Stores, poster Poster, hub *realtime.Hub, logger *slog.Logger) *Worker {
	return &Worker{stores: st, poster: poster, hub: hub, logger: logger}
}

// Run blocks until ctx is cancelled, then marks any in-flight item
// interrupted.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("posting worker started", "poll", pollInterval)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for w.processOne(ctx) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// processOne claims and handles a single item; it reports whether an item
// was found so the caller can drain the queue within one tick.
func (w *Worker) processOne(ctx context.Context) bool {
	item, err := w.stores.PostingQueue.NextReady(ctx, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			w.logger.Error("queue claim failed", "error", err)
		}
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("posting panic", "item", item.ID, "panic", r)
			item.Status = store.PostingFailed
			item.LastError = fmt.Sprintf("panic: %v", r)
			w.stores.PostingQueue.Update(ctx, item)
		}
	}()

	w.handle(ctx, item)
	return true
}

func (w *Worker) handle(ctx context.Context, item *store.PostingQueueItem) {
	v, err := w.stores.Vehicles.Get(ctx, item.VehicleID, item.DealershipID)
	if err != nil {
		w.fail(ctx, item, fmt.Errorf("load vehicle: %w", err))
		return
	}

	res, err := w.poster.Post(ctx, &PostRequest{
		Vehicle:     v,
		Images:      v.DisplayImages(),
		Description: listingDescription(v),
		AccountID:   item.AccountID,
		Platform:    "facebook",
	})
	if err != nil {
		w.fail(ctx, item, err)
		return
	}
	if !res.Success {
		w.fail(ctx, item, errors.New(res.Error))
		return
	}

	now := time.Now().UTC()
	item.Status = store.PostingPosted
	item.PostedAt = &now
	item.ExternalListingID = res.ListingURL
	if err := w.stores.PostingQueue.Update(ctx, item); err != nil {
		w.logger.Error("record posted item failed", "item", item.ID, "error", err)
	}

	if err := w.stores.PostingQueue.UpsertListing(ctx, &store.MarketplaceListing{
		DealershipID: item.DealershipID,
		VehicleID:    item.VehicleID,
		AccountID:    item.AccountID,
		Platform:     "facebook",
		ListingURL:   res.ListingURL,
		Status:       "posted",
		PostedAt:     now,
		PostedByID:   item.UserID,
	}); err != nil {
		w.logger.Error("record listing failed", "item", item.ID, "error", err)
	}

	v.MarketplacePostedAt = &now
	if err := w.stores.Vehicles.Update(ctx, v); err != nil {
		w.logger.Error("stamp vehicle failed", "vehicle", v.ID, "error", err)
	}

	w.notify(item, "posted", res.ListingURL)
}

func (w *Worker) fail(ctx context.Context, item *store.PostingQueueItem, cause error) {
	item.AttemptCount++
	item.LastError = cause.Error()
	if item.AttemptCount >= maxAttempts {
		item.Status = store.PostingFailed
	} else {
		// Back off and requeue.
		next := time.Now().UTC().Add(retryBackoff * time.Duration(item.AttemptCount))
		item.Status = store.PostingQueued
		item.ScheduledFor = &next
	}
	if err := w.stores.PostingQueue.Update(ctx, item); err != nil {
		w.logger.Error("record failed item failed", "item", item.ID, "error", err)
	}
	w.logger.Warn("posting attempt failed", "item", item.ID,
		"attempt", item.AttemptCount, "status", item.Status, "error", cause)
	if item.Status == store.PostingFailed {
		w.notify(item, "failed", "")
	}
}

func (w *Worker) notify(item *store.PostingQueueItem, status, listingURL string) {
	w.hub.Broadcast(realtime.Notification{
		Type:         realtime.TypePostStatus,
		DealershipID: item.DealershipID,
		Title:        "Posting " + status,
		Data: map[string]any{
			"queueItemId": item.ID.String(),
			"vehicleId":   item.VehicleID,
			"status":      status,
			"listingUrl":  listingURL,
		},
	})
}

// listingDescription prefers manual copy over scraped copy.
func listingDescription(v *store.Vehicle) string {
	if v.IsManuallyEdited && v.ManualDescription != "" {
		return v.ManualDescription
	}
	return v.Description
}
