package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// retryBudget is the total fetch attempts per scrape run, shared across the
// whole provider chain.
const retryBudget = 3

// Provider fetches the rendered HTML of one dealer page. Implementations
// bound their own call timeout (15s for plain HTTP, 60s for headless).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, sourceURL string) (html string, err error)
}

// Chain tries providers in order until one succeeds or the shared retry
// budget runs out. Method reports the provider that produced the result.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: logger}
}

var ErrBudgetExhausted = errors.New("inventory: scrape retry budget exhausted")

// Fetch walks the chain. The first successful fetch wins; every attempt,
// successful or not, consumes one unit of the run's budget.
func (c *Chain) Fetch(ctx context.Context, sourceURL string) (html, method string, err error) {
	attempts := 0
	var lastErr error
	for _, p := range c.providers {
		if attempts >= retryBudget {
			break
		}
		attempts++
		start := time.Now()
		html, err := p.Fetch(ctx, sourceURL)
		if err == nil {
			c.logger.Info("scrape fetch ok", "provider", p.Name(), "url", sourceURL,
				"attempt", attempts, "elapsed", time.Since(start))
			return html, p.Name(), nil
		}
		lastErr = err
		c.logger.Warn("scrape fetch failed", "provider", p.Name(), "url", sourceURL,
			"attempt", attempts, "error", err)
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
	}
	if lastErr != nil {
		return "", "", fmt.Errorf("%w: %v", ErrBudgetExhausted, lastErr)
	}
	return "", "", ErrBudgetExhausted
}
