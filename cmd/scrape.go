package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openautogroup/lotview/internal/adapters"
	"github.com/openautogroup/lotview/internal/config"
	"github.com/openautogroup/lotview/internal/inventory"
	"github.com/openautogroup/lotview/internal/realtime"
	"github.com/openautogroup/lotview/internal/store"
	"github.com/openautogroup/lotview/internal/store/pg"
)

func scrapeCmd() *cobra.Command {
	var slug string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run a one-shot inventory scrape for a dealership",
		RunE: func(cmd *cobra.Command, args []string) error {
			if slug == "" {
				return fmt.Errorf("--dealership is required")
			}
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Database.PostgresDSN == "" {
				return fmt.Errorf("LOTVIEW_POSTGRES_DSN environment variable is not set")
			}

			logger := newLogger(cfg.Server.LogLevel)
			slog.SetDefault(logger)

			stores, err := pg.NewPGStores(cfg.Database.PostgresDSN)
			if err != nil {
				return err
			}

			ctx := context.Background()
			d, err := stores.Dealerships.GetBySlug(ctx, slug)
			if err != nil {
				return fmt.Errorf("dealership %q: %w", slug, err)
			}

			scrapeClient := adapters.NewClient("scraper", adapters.DefaultTimeout, stores.APILogs, logger)
			renderClient := adapters.NewClient("render_api", adapters.BrowserTimeout, stores.APILogs, logger)
			browser := adapters.NewBrowser(cfg.Scraper.BrowserWSURL, logger)
			defer browser.Close()

			providers := []inventory.Provider{inventory.NewDirectProvider(scrapeClient)}
			if cfg.Scraper.RenderAPIURL != "" {
				providers = append(providers, inventory.NewRenderAPIProvider(renderClient, cfg.Scraper.RenderAPIURL, cfg.Scraper.RenderAPIKey))
			}
			if cfg.Scraper.BrowserWSURL != "" {
				providers = append(providers, inventory.NewRemoteBrowserProvider(browser))
			} else {
				providers = append(providers, inventory.NewLocalBrowserProvider(browser))
			}
			chain := inventory.NewChain(logger, providers...)
			blob := adapters.NewBlobStore(cfg.Storage.URL)
			images := inventory.NewImagePersister(scrapeClient, blob, logger)

			// No websocket clients in CLI mode; the hub just swallows events.
			hub := realtime.NewHub(logger)
			svc := inventory.NewService(stores, chain, images, hub, logger)

			run, err := svc.Scrape(ctx, d, store.TriggerManual)
			if err != nil {
				logger.Error("scrape failed", "dealership", slug, "error", err)
				os.Exit(1)
			}
			fmt.Printf("scrape %s: %d found, %d inserted, %d updated\n",
				run.Status, run.VehiclesFound, run.VehiclesInserted, run.VehiclesUpdated)
			return nil
		},
	}
	cmd.Flags().StringVar(&slug, "dealership", "", "dealership slug to scrape")
	return cmd
}
