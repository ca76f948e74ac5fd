package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openautogroup/lotview/internal/realtime"
	"github.com/openautogroup/lotview/internal/store"
)

// Service runs scrapes end to end: fetch through the provider chain, parse,
// smart-merge into stored inventory, persist images, and record the run.
type Service struct {
	stores *store.Stores
	chain  *Chain
	images *ImagePersister
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewService(st *store.Stores, chain *Chain, images *ImagePersister, hub *realtime.Hub, logger *slog.Logger) *Service {
	return &Service{stores: st, chain: chain, images: images, hub: hub, logger: logger}
}

var ErrNoSourceURL = errors.New("inventory: dealership has no scrape source url")

// Scrape runs one full scrape for the dealership and returns the recorded
// run. The run row is created up front with status running so an interrupted
// process leaves evidence.
func (s *Service) Scrape(ctx context.Context, d *store.Dealership, trigger store.ScrapeTrigger) (*store.ScrapeRun, error) {
	if d.ScrapeSourceURL == "" {
		return nil, ErrNoSourceURL
	}

	run := &store.ScrapeRun{
		ID:           uuid.Must(uuid.NewV7()),
		DealershipID: d.ID,
		TriggeredBy:  trigger,
		Status:       "running",
		StartedAt:    time.Now().UTC(),
	}
	if err := s.stores.ScrapeRuns.Create(ctx, run); err != nil {
		return nil, err
	}

	err := s.scrape(ctx, d, run)
	now := time.Now().UTC()
	run.EndedAt = &now
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
	} else {
		run.Status = "completed"
	}
	if uerr := s.stores.ScrapeRuns.Update(ctx, run); uerr != nil {
		s.logger.Error("scrape run record failed", "run", run.ID, "error", uerr)
	}

	s.hub.Broadcast(realtime.Notification{
		Type:         realtime.TypeInventorySync,
		DealershipID: d.ID,
		Title:        "Inventory sync " + run.Status,
		Data: map[string]any{
			"runId":    run.ID.String(),
			"found":    run.VehiclesFound,
			"inserted": run.VehiclesInserted,
			"updated":  run.VehiclesUpdated,
			"status":   run.Status,
		},
	})
	return run, err
}

func (s *Service) scrape(ctx context.Context, d *store.Dealership, run *store.ScrapeRun) error {
	listing, method, err := s.chain.Fetch(ctx, d.ScrapeSourceURL)
	run.Method = method
	if err != nil {
		return err
	}

	links := ExtractVDPLinks(listing, d.ScrapeSourceURL)
	if len(links) == 0 {
		return fmt.Errorf("no vehicle pages found at %s", d.ScrapeSourceURL)
	}
	run.VehiclesFound = len(links)

	for _, link := range links {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.scrapeVehicle(ctx, d, run, link); err != nil {
			s.logger.Warn("vehicle scrape failed", "dealership", d.ID, "url", link, "error", err)
		}
	}
	return nil
}

func (s *Service) scrapeVehicle(ctx context.Context, d *store.Dealership, run *store.ScrapeRun, vdpURL string) error {
	html, _, err := s.chain.Fetch(ctx, vdpURL)
	if err != nil {
		run.RetryCount++
		return err
	}
	scraped, err := ParseVDP(html, vdpURL)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var v *store.Vehicle
	if ValidVIN(scraped.VIN) {
		v, err = s.stores.Vehicles.GetByVIN(ctx, scraped.VIN, d.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	if v == nil {
		v = &store.Vehicle{DealershipID: d.ID}
		Merge(v, scraped, now)
		if err := s.stores.Vehicles.Create(ctx, v); err != nil {
			return err
		}
		run.VehiclesInserted++
	} else {
		Merge(v, scraped, now)
		if err := s.stores.Vehicles.Update(ctx, v); err != nil {
			return err
		}
		run.VehiclesUpdated++
	}

	s.images.Persist(ctx, v)
	if len(v.LocalImages) > 0 {
		if err := s.stores.Vehicles.Update(ctx, v); err != nil {
			s.logger.Warn("persist local images failed", "vehicle", v.ID, "error", err)
		}
	}
	return nil
}

// MarkInterrupted flips still-running runs to interrupted; called on
// shutdown so no run stays "running" forever.
func (s *Service) MarkInterrupted(ctx context.Context) {
	if n, err := s.stores.ScrapeRuns.MarkRunningInterrupted(ctx, time.Now().UTC()); err != nil {
		s.logger.Error("mark interrupted runs failed", "error", err)
	} else if n > 0 {
		s.logger.Info("scrape runs marked interrupted", "count", n)
	}
}
