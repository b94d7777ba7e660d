// Package token caches app access tokens keyed by credential pair, so every
// dispatcher call and gateway session sharing credentials reuses one token
// and concurrent refreshes collapse into a single issuance call.
package token

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultSafetyMargin is subtracted from the token lifetime so callers
// never hand out a token that expires mid-request.
const DefaultSafetyMargin = 60 * time.Second

// AccessToken is an issued token with its absolute expiry.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token is still usable at time now, honoring the
// safety margin.
func (t AccessToken) Valid(now time.Time, margin time.Duration) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// Issuer is the slice of the platform API the cache needs. api.Client
// satisfies it.
type Issuer interface {
	GetAccessToken(ctx context.Context, appID, clientSecret string) (token string, expiresIn time.Duration, err error)
}

// Cache caches tokens per (appId, clientSecret) pair. Two accounts sharing
// credentials share one entry.
type Cache struct {
	issuer Issuer
	margin time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	tokens map[string]AccessToken

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithSafetyMargin overrides the expiry safety margin.
func WithSafetyMargin(margin time.Duration) Option {
	return func(c *Cache) { c.margin = margin }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a token cache over the given issuer.
func NewCache(issuer Issuer, opts ...Option) *Cache {
	c := &Cache{
		issuer: issuer,
		margin: DefaultSafetyMargin,
		now:    time.Now,
		tokens: make(map[string]AccessToken),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a valid token for the credential pair, issuing a fresh one
// when the cached entry is missing or near expiry. Concurrent callers for
// the same pair while a refresh is in flight all wait for the same issuance;
// on failure the cache entry is left untouched and every waiter receives the
// error, so the next call retries immediately.
func (c *Cache) Get(ctx context.Context, appID, clientSecret string) (AccessToken, error) {
	key := cacheKey(appID, clientSecret)

	c.mu.RLock()
	tok, ok := c.tokens[key]
	c.mu.RUnlock()
	if ok && tok.Valid(c.now(), c.margin) {
		return tok, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A coalesced waiter may arrive after the winner already
		// refreshed; don't issue twice.
		c.mu.RLock()
		tok, ok := c.tokens[key]
		c.mu.RUnlock()
		if ok && tok.Valid(c.now(), c.margin) {
			return tok, nil
		}

		value, expiresIn, err := c.issuer.GetAccessToken(ctx, appID, clientSecret)
		if err != nil {
			return AccessToken{}, err
		}
		fresh := AccessToken{Value: value, ExpiresAt: c.now().Add(expiresIn)}

		c.mu.Lock()
		c.tokens[key] = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return AccessToken{}, err
	}
	return v.(AccessToken), nil
}

// Invalidate drops the cached entry for a credential pair. Called when the
// server rejects a token before its nominal expiry.
func (c *Cache) Invalidate(appID, clientSecret string) {
	key := cacheKey(appID, clientSecret)
	c.mu.Lock()
	delete(c.tokens, key)
	c.mu.Unlock()
}

func cacheKey(appID, clientSecret string) string {
	return appID + "\x00" + clientSecret
}
