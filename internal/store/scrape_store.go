package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScrapeTrigger records what started a scrape run.
type ScrapeTrigger string

const (
	TriggerSchedule ScrapeTrigger = "schedule"
	TriggerManual   ScrapeTrigger = "manual"
	TriggerWebhook  ScrapeTrigger = "webhook"
)

// ScrapeRun is the audit record of one inventory scrape.
type ScrapeRun struct {
	ID               uuid.UUID     `json:"id"`
	DealershipID     int64         `json:"dealershipId"`
	TriggeredBy      ScrapeTrigger `json:"triggeredBy"`
	Method           string        `json:"method,omitempty"` // final provider used
	RetryCount       int           `json:"retryCount"`
	VehiclesFound    int           `json:"vehiclesFound"`
	VehiclesInserted int           `json:"vehiclesInserted"`
	VehiclesUpdated  int           `json:"vehiclesUpdated"`
	VehiclesDeleted  int           `json:"vehiclesDeleted"`
	Status           string        `json:"status"` // running, completed, failed, interrupted
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"startedAt"`
	EndedAt          *time.Time    `json:"endedAt,omitempty"`
}

// ScrapeRunStore persists scrape runs.
type ScrapeRunStore interface {
	Create(ctx context.Context, r *ScrapeRun) error
	Update(ctx context.Context, r *ScrapeRun) error
	Get(ctx context.Context, id uuid.UUID, dealershipID int64) (*ScrapeRun, error)
	ListByDealership(ctx context.Context, dealershipID int64, limit int) ([]ScrapeRun, error)

	// MarkRunningInterrupted flips every still-running run to interrupted.
	// Called on shutdown.
	MarkRunningInterrupted(ctx context.Context, at time.Time) (int, error)
}
