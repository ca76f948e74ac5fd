package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openautogroup/lotview/internal/adapters"
	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/config"
	"github.com/openautogroup/lotview/internal/convo"
	"github.com/openautogroup/lotview/internal/httpapi"
	"github.com/openautogroup/lotview/internal/inventory"
	"github.com/openautogroup/lotview/internal/posting"
	"github.com/openautogroup/lotview/internal/realtime"
	"github.com/openautogroup/lotview/internal/store/pg"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the LotView server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	stores, err := pg.NewPGStores(cfg.Database.PostgresDSN)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	// Realtime fanout.
	hub := realtime.NewHub(logger)
	wsHandler := realtime.NewHandler(hub, cfg.Auth.JWTSecret, logger)

	// Outbound HTTP clients, one per upstream so API logs stay attributable.
	crmClient := adapters.NewClient("ghl", adapters.DefaultTimeout, stores.APILogs, logger)
	aiClient := adapters.NewClient("openai", adapters.BrowserTimeout, stores.APILogs, logger)
	scrapeClient := adapters.NewClient("scraper", adapters.DefaultTimeout, stores.APILogs, logger)
	renderClient := adapters.NewClient("render_api", adapters.BrowserTimeout, stores.APILogs, logger)
	vinClient := adapters.NewClient("vin", adapters.DefaultTimeout, stores.APILogs, logger)
	fallbackClient := adapters.NewClient("fallback_webhook", adapters.DefaultTimeout, stores.APILogs, logger)

	crm := adapters.NewCRM(crmClient, cfg.CRM.BaseURL, cfg.CRM.APIKey)
	ai := adapters.NewAI(aiClient, cfg.AI.BaseURL, cfg.AI.APIKey)
	blob := adapters.NewBlobStore(cfg.Storage.URL)

	// Conversation hub.
	convoSvc := convo.NewService(stores, crm, ai, hub, fallbackClient, cfg.CRM.FallbackWebhookURL, logger)

	// Inventory pipeline: fetch providers cheapest-first.
	localBrowser := adapters.NewBrowser("", logger)
	var remoteBrowser *adapters.Browser
	if cfg.Scraper.BrowserWSURL != "" {
		remoteBrowser = adapters.NewBrowser(cfg.Scraper.BrowserWSURL, logger)
	}
	chain := inventory.NewChain(logger, scrapeProviders(cfg.Scraper, scrapeClient, renderClient, localBrowser, remoteBrowser)...)
	images := inventory.NewImagePersister(scrapeClient, blob, logger)
	scraper := inventory.NewService(stores, chain, images, hub, logger)
	importer := inventory.NewImporter(stores.Vehicles)

	vin := inventory.NewVINDecoder(vinClient, cfg.Scraper.MarketCheckKey)
	if cfg.Scraper.MarketCheckURL != "" {
		vin.MarketCheckURL = cfg.Scraper.MarketCheckURL
	}
	if cfg.Scraper.NHTSAURL != "" {
		vin.NHTSAURL = cfg.Scraper.NHTSAURL
	}

	// Posting automation.
	postingSvc := posting.NewService(stores, logger)
	postingBrowser := localBrowser
	if cfg.Posting.BrowserWSURL != "" {
		if remoteBrowser != nil && cfg.Posting.BrowserWSURL == cfg.Scraper.BrowserWSURL {
			postingBrowser = remoteBrowser
		} else {
			postingBrowser = adapters.NewBrowser(cfg.Posting.BrowserWSURL, logger)
		}
	}
	poster := posting.NewBrowserPoster(postingBrowser, logger)
	worker := posting.NewWorker(stores, poster, hub, logger)

	// Auth fabric and password reset mail.
	resolver := auth.NewResolver(cfg.Auth.JWTSecret, cfg.Server.BaseDomain, stores, logger)
	var mailer adapters.Mailer
	if cfg.SMTP.Host != "" {
		addr := fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port)
		mailer = adapters.NewSMTPMailer(addr, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, logger)
	} else {
		mailer = &adapters.LogMailer{Logger: logger}
	}

	server := httpapi.NewServer(cfg.Server.Host, cfg.Server.Port, resolver, stores, wsHandler, logger,
		httpapi.NewAuthHandler(stores, cfg.Auth.JWTSecret, cfg.Server.BaseURL, mailer, logger),
		httpapi.NewTenancyHandler(stores),
		httpapi.NewVehiclesHandler(stores, scraper, ai, vin, logger),
		httpapi.NewImportHandler(stores, importer, logger),
		httpapi.NewConversationsHandler(stores, convoSvc, logger),
		httpapi.NewWebhooksHandler(stores, convoSvc, scraper, logger),
		httpapi.NewExtensionHandler(stores, postingSvc, logger),
		httpapi.NewTokensHandler(stores, logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("graceful shutdown initiated", "signal", sig)
		cancel()
	}()

	if !cfg.Scraper.DisableScheduler {
		sched := inventory.NewScheduler(scraper, stores, cfg.Scraper.Cron, logger)
		go sched.Run(ctx)
	}
	if cfg.Posting.WorkerEnabled {
		go worker.Run(ctx)
	}

	err = server.Start(ctx)

	// Flag any runs the shutdown cut off, then drop websocket clients.
	cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cleanupCancel()
	scraper.MarkInterrupted(cleanupCtx)
	hub.CloseAll()
	localBrowser.Close()
	if remoteBrowser != nil {
		remoteBrowser.Close()
	}
	if postingBrowser != localBrowser && postingBrowser != remoteBrowser {
		postingBrowser.Close()
	}

	if err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// scrapeProviders assembles the fetch escalation ladder: direct HTTP first,
// then the hosted render API when configured, then a local headless browser,
// and last the remote browser endpoint when one is configured.
func scrapeProviders(cfg config.ScraperConfig, scrapeClient, renderClient *adapters.Client, local, remote *adapters.Browser) []inventory.Provider {
	providers := []inventory.Provider{inventory.NewDirectProvider(scrapeClient)}
	if cfg.RenderAPIURL != "" {
		providers = append(providers, inventory.NewRenderAPIProvider(renderClient, cfg.RenderAPIURL, cfg.RenderAPIKey))
	}
	providers = append(providers, inventory.NewLocalBrowserProvider(local))
	if cfg.BrowserWSURL != "" && remote != nil {
		providers = append(providers, inventory.NewRemoteBrowserProvider(remote))
	}
	return providers
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
