// Package auth provides access tokens for calls to the batch transform service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultExpirySkew renews a token this long before it actually expires.
const DefaultExpirySkew = 30 * time.Second

// Token is a bearer token and the moment it stops being valid.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Fetcher obtains a fresh token from the identity provider.
type Fetcher interface {
	FetchToken(ctx context.Context) (Token, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) (Token, error)

func (f FetcherFunc) FetchToken(ctx context.Context) (Token, error) {
	return f(ctx)
}

// TokenCache holds one token and refreshes it through its Fetcher once it is
// about to expire. It is safe for concurrent use.
type TokenCache struct {
	fetcher Fetcher
	skew    time.Duration
	now     func() time.Time

	mu    sync.Mutex
	token Token
}

// NewTokenCache creates an empty cache; the first Token call fetches.
func NewTokenCache(fetcher Fetcher, skew time.Duration) *TokenCache {
	return &TokenCache{fetcher: fetcher, skew: skew, now: time.Now}
}

// Token returns the cached token, fetching a new one if needed.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid() {
		return c.token.AccessToken, nil
	}
	tok, err := c.fetcher.FetchToken(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("fetching access token: empty token")
	}
	c.token = tok
	return tok.AccessToken, nil
}

// Invalidate drops the cached token, e.g. after the server rejected it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = Token{}
	c.mu.Unlock()
}

func (c *TokenCache) valid() bool {
	if c.token.AccessToken == "" {
		return false
	}
	// A zero expiry means the token never expires.
	if c.token.ExpiresAt.IsZero() {
		return true
	}
	return c.now().Add(c.skew).Before(c.token.ExpiresAt)
}

// Static returns a fetcher that always yields the same non-expiring token.
func Static(token string) Fetcher {
	return FetcherFunc(func(context.Context) (Token, error) {
		return Token{AccessToken: token}, nil
	})
}
