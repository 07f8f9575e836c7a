package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/assistant-files/internal/core/ports"
)

// CachedIssuer serves still-valid URLs from a cache and stores newly issued
// ones until they expire.
type CachedIssuer struct {
	next  ports.AccessURLIssuer
	cache ports.AccessURLCache
	now   func() time.Time
}

func NewCachedIssuer(next ports.AccessURLIssuer, cache ports.AccessURLCache, now func() time.Time) *CachedIssuer {
	if now == nil {
		now = time.Now
	}
	return &CachedIssuer{next: next, cache: cache, now: now}
}

func (c *CachedIssuer) IssueAccessURL(ctx context.Context, locator, displayName string) (string, error) {
	cached, ok, err := c.cache.Get(ctx, locator)
	switch {
	case err != nil:
		slog.Warn("access_url_cache_get_failed", "locator", locator, "error", err)
	case ok && !IsAccessURLExpired(cached, c.now()):
		return cached, nil
	}

	url, err := c.next.IssueAccessURL(ctx, locator, displayName)
	if err != nil {
		return "", err
	}

	if expiry, ok := AccessURLExpiry(url); ok {
		if ttl := expiry.Sub(c.now()); ttl > 0 {
			if err := c.cache.Put(ctx, locator, url, ttl); err != nil {
				slog.Warn("access_url_cache_put_failed", "locator", locator, "error", err)
			}
		}
	}
	return url, nil
}
