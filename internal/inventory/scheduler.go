package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/openautogroup/lotview/internal/store"
)

// DefaultScrapeCron runs the nightly scrape at 03:00.
const DefaultScrapeCron = "0 3 * * *"

// Scheduler drives the recurring scrape. One goroutine ticks every minute
// and checks the cron expression; when due, every active dealership with a
// source URL is scraped sequentially. Manual triggers share the same Scrape
// pathway in Service.
type Scheduler struct {
	svc    *Service
	stores *store.Stores
	cron   string
	logger *slog.Logger
	g      *gronx.Gronx
}

func NewScheduler(svc *Service, st *store.Stores, cron string, logger *slog.Logger) *Scheduler {
	if cron == "" {
		cron = DefaultScrapeCron
	}
	return &Scheduler{svc: svc, stores: st, cron: cron, logger: logger, g: gronx.New()}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.g.IsValid(s.cron) {
		s.logger.Error("invalid scrape cron, scheduler disabled", "cron", s.cron)
		return
	}
	s.logger.Info("scrape scheduler started", "cron", s.cron)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := s.g.IsDue(s.cron, now)
			if err != nil || !due {
				continue
			}
			s.runAll(ctx)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) {
	dealerships, err := s.stores.Dealerships.ListActive(ctx)
	if err != nil {
		s.logger.Error("scheduler: list dealerships failed", "error", err)
		return
	}
	for i := range dealerships {
		d := &dealerships[i]
		if d.ScrapeSourceURL == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if _, err := s.svc.Scrape(ctx, d, store.TriggerSchedule); err != nil {
			s.logger.Error("scheduled scrape failed", "dealership", d.ID, "error", err)
		}
	}
}
