package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/openautogroup/lotview/internal/adapters"
	"github.com/openautogroup/lotview/internal/store"
)

// PostRequest is everything a browser session needs to publish one listing.
type PostRequest struct {
	Vehicle        *store.Vehicle
	Images         []string // hosted localImages URLs when available
	Description    string
	SessionCookies []SessionCookie
	AccountID      string
	Platform       string
}

// SessionCookie is a marketplace session cookie captured by the extension.
type SessionCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// PostResult is the typed outcome of a publish attempt. Expected failures
// land in Error, not in the error return.
type PostResult struct {
	Success    bool   `json:"success"`
	ListingURL string `json:"listingUrl,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Poster publishes one listing. The production implementation drives a
// headless browser; tests substitute fakes.
type Poster interface {
	Post(ctx context.Context, req *PostRequest) (*PostResult, error)
}

const marketplaceComposeURL = "https://www.facebook.com/marketplace/create/vehicle"

// BrowserPoster drives a marketplace listing form through a headless
// browser, authenticated with the extension-captured session cookies.
type BrowserPoster struct {
	browser *adapters.Browser
	logger  *slog.Logger
}

func NewBrowserPoster(b *adapters.Browser, logger *slog.Logger) *BrowserPoster {
	return &BrowserPoster{browser: b, logger: logger}
}

func (p *BrowserPoster) Post(ctx context.Context, req *PostRequest) (*PostResult, error) {
	if len(req.SessionCookies) == 0 {
		return &PostResult{Success: false, Error: "no session cookies"}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, adapters.BrowserTimeout)
	defer cancel()

	page, err := p.browser.OpenPage(ctx, "about:blank")
	if err != nil {
		return nil, err
	}
	defer page.Close()

	cookies := make([]*proto.NetworkCookieParam, 0, len(req.SessionCookies))
	for _, c := range req.SessionCookies {
		cookies = append(cookies, &proto.NetworkCookieParam{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
		})
	}
	if err := page.SetCookies(cookies); err != nil {
		return nil, fmt.Errorf("set cookies: %w", err)
	}

	if err := page.Navigate(marketplaceComposeURL); err != nil {
		return nil, fmt.Errorf("open compose: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("compose load: %w", err)
	}

	// A login redirect means the captured session is stale.
	info, err := page.Info()
	if err != nil {
		return nil, err
	}
	if strings.Contains(info.URL, "/login") {
		return &PostResult{Success: false, Error: "marketplace session expired"}, nil
	}

	if err := p.fillListing(page, req); err != nil {
		return &PostResult{Success: false, Error: err.Error()}, nil
	}

	info, err = page.Info()
	if err != nil {
		return nil, err
	}
	p.logger.Info("marketplace post submitted", "vehicle", req.Vehicle.ID, "url", info.URL)
	return &PostResult{Success: true, ListingURL: info.URL}, nil
}

func (p *BrowserPoster) fillListing(page *rod.Page, req *PostRequest) error {
	v := req.Vehicle
	fields := []struct {
		selector string
		value    string
	}{
		{`input[aria-label="Year"]`, fmt.Sprintf("%d", v.Year)},
		{`input[aria-label="Make"]`, v.Make},
		{`input[aria-label="Model"]`, v.Model},
		{`input[aria-label="Price"]`, fmt.Sprintf("%d", v.Price)},
		{`input[aria-label="Mileage"]`, fmt.Sprintf("%d", v.Odometer)},
		{`textarea[aria-label="Description"]`, req.Description},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		el, err := page.Element(f.selector)
		if err != nil {
			return fmt.Errorf("listing form field %s not found: %w", f.selector, err)
		}
		if err := el.Input(f.value); err != nil {
			return fmt.Errorf("fill %s: %w", f.selector, err)
		}
	}

	submit, err := page.Element(`div[aria-label="Publish"]`)
	if err != nil {
		return errors.New("publish control not found")
	}
	return submit.Click(proto.InputMouseButtonLeft, 1)
}
