package inventory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/openautogroup/lotview/internal/adapters"
)

// DirectProvider fetches the page straight from the dealer site.
type DirectProvider struct {
	client *adapters.Client
}

func NewDirectProvider(client *adapters.Client) *DirectProvider {
	return &DirectProvider{client: client}
}

func (p *DirectProvider) Name() string { return "direct" }

func (p *DirectProvider) Fetch(ctx context.Context, sourceURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, adapters.DefaultTimeout)
	defer cancel()
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	h.Set("Accept", "text/html,application/xhtml+xml")
	body, err := p.client.Do(ctx, &adapters.Request{Method: http.MethodGet, URL: sourceURL, Header: h})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// RenderAPIProvider fetches through a hosted rendering API (scrapingbee-style
// GET proxy) that executes JavaScript server-side.
type RenderAPIProvider struct {
	client   *adapters.Client
	Endpoint string
	APIKey   string
}

func NewRenderAPIProvider(client *adapters.Client, endpoint, apiKey string) *RenderAPIProvider {
	return &RenderAPIProvider{client: client, Endpoint: endpoint, APIKey: apiKey}
}

func (p *RenderAPIProvider) Name() string { return "render_api" }

func (p *RenderAPIProvider) Fetch(ctx context.Context, sourceURL string) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("render api: no key configured")
	}
	ctx, cancel := context.WithTimeout(ctx, adapters.DefaultTimeout)
	defer cancel()
	q := url.Values{"api_key": {p.APIKey}, "url": {sourceURL}, "render_js": {"true"}}
	body, err := p.client.Do(ctx, &adapters.Request{
		Method: http.MethodGet,
		URL:    p.Endpoint + "?" + q.Encode(),
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// BrowserProvider renders the page in a headless browser, local or remote
// depending on how the adapter was constructed.
type BrowserProvider struct {
	browser *adapters.Browser
	name    string
}

func NewLocalBrowserProvider(b *adapters.Browser) *BrowserProvider {
	return &BrowserProvider{browser: b, name: "browser_local"}
}

func NewRemoteBrowserProvider(b *adapters.Browser) *BrowserProvider {
	return &BrowserProvider{browser: b, name: "browser_remote"}
}

func (p *BrowserProvider) Name() string { return p.name }

func (p *BrowserProvider) Fetch(ctx context.Context, sourceURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, adapters.BrowserTimeout)
	defer cancel()
	page, err := p.browser.OpenPage(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	defer page.Close()
	return page.HTML()
}
