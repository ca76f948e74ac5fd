package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Browser owns a shared headless Chromium instance for scrape providers and
// posting automation. When RemoteWSURL is set we attach to an external
// browser (e.g. a browserless container); otherwise a local one is launched
// lazily on first use.
type Browser struct {
	RemoteWSURL string
	logger      *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	cleanup  func()
	launched bool
}

func NewBrowser(remoteWSURL string, logger *slog.Logger) *Browser {
	return &Browser{RemoteWSURL: remoteWSURL, logger: logger}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.launched {
		return b.browser, nil
	}

	wsURL := b.RemoteWSURL
	var cleanup func()
	if wsURL == "" {
		l := launcher.New().Headless(true).NoSandbox(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser launch: %w", err)
		}
		wsURL = u
		cleanup = l.Cleanup
	}

	br := rod.New().ControlURL(wsURL)
	if err := br.Connect(); err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, fmt.Errorf("browser connect: %w", err)
	}

	b.browser = br
	b.cleanup = cleanup
	b.launched = true
	b.logger.Info("browser connected", "remote", b.RemoteWSURL != "")
	return br, nil
}

// OpenPage navigates a fresh page and waits for load, bounded by ctx (which
// callers derive with BrowserTimeout).
func (b *Browser) OpenPage(ctx context.Context, url string) (*rod.Page, error) {
	br, err := b.connect()
	if err != nil {
		return nil, err
	}
	page, err := br.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("browser page: %w", err)
	}
	page = page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser load %s: %w", url, err)
	}
	return page, nil
}

// Close tears down the browser and any locally launched process.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.launched {
		return
	}
	if b.browser != nil {
		b.browser.Close()
	}
	if b.cleanup != nil {
		b.cleanup()
	}
	b.launched = false
}
