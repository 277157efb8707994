// Package client holds the process-local API token cache used by callers
// once a session exists.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sumire/setlist/internal/session"
)

// Slot identifies one of the two independent token kinds.
type Slot string

const (
	// SlotVisitor holds the anonymous token.
	SlotVisitor Slot = "visitor"
	// SlotUser holds the authenticated token. Writing it evicts the visitor
	// token, since an authenticated token supersedes anonymous access.
	SlotUser Slot = "user"
)

// expiryBuffer is the safety margin before a token's stated expiry. A token
// inside the buffer is never served; the read evicts it instead.
const expiryBuffer = 5 * time.Minute

// Token is a cached bearer token with its absolute expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// FetchFunc produces a fresh token for a slot on a cache miss.
type FetchFunc func(ctx context.Context) (Token, error)

// TokenCache caches visitor and user tokens in process memory. Concurrent
// misses on the same slot are coalesced into a single in-flight fetch.
type TokenCache struct {
	mu    sync.Mutex
	slots map[Slot]Token
	group singleflight.Group

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// NewTokenCache creates an empty TokenCache.
func NewTokenCache() *TokenCache {
	return &TokenCache{
		slots: make(map[Slot]Token),
		Now:   time.Now,
	}
}

// Read returns the cached token for slot, or false if the slot is empty or
// the token is within the expiry buffer. An expiring token is evicted on
// read so a later read without a rewrite also misses.
func (c *TokenCache) Read(slot Slot) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(slot)
}

func (c *TokenCache) readLocked(slot Slot) (string, bool) {
	tok, ok := c.slots[slot]
	if !ok {
		return "", false
	}
	if !c.Now().Before(tok.ExpiresAt.Add(-expiryBuffer)) {
		delete(c.slots, slot)
		return "", false
	}
	return tok.Value, true
}

// Write stores a token. A user token evicts the visitor token.
func (c *TokenCache) Write(slot Slot, value string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[slot] = Token{Value: value, ExpiresAt: expiresAt}
	if slot == SlotUser {
		delete(c.slots, SlotVisitor)
	}
}

// Clear evicts a slot. Sign-out clears the user slot.
func (c *TokenCache) Clear(slot Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, slot)
}

// Get returns the cached token for slot, fetching and caching a fresh one on
// a miss. Concurrent callers missing on the same slot share one fetch.
func (c *TokenCache) Get(ctx context.Context, slot Slot, fetch FetchFunc) (string, error) {
	if value, ok := c.Read(slot); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(string(slot), func() (any, error) {
		c.mu.Lock()
		if cached, ok := c.readLocked(slot); ok {
			c.mu.Unlock()
			return cached, nil
		}
		c.mu.Unlock()

		tok, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		c.Write(slot, tok.Value, tok.ExpiresAt)
		return tok.Value, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// TokenClient fetches tokens from the issuance endpoints and caches them.
type TokenClient struct {
	cache        *TokenCache
	baseURL      string
	client       *http.Client
	sessionToken string
}

// NewTokenClient creates a TokenClient against the given API base URL.
// sessionToken may be empty when no session exists yet.
func NewTokenClient(baseURL, sessionToken string) *TokenClient {
	return &TokenClient{
		cache:        NewTokenCache(),
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		sessionToken: sessionToken,
	}
}

// Cache exposes the underlying cache, mainly for sign-out eviction.
func (tc *TokenClient) Cache() *TokenCache { return tc.cache }

// VisitorToken returns a valid anonymous token, fetching one if needed.
func (tc *TokenClient) VisitorToken(ctx context.Context) (string, error) {
	return tc.cache.Get(ctx, SlotVisitor, func(ctx context.Context) (Token, error) {
		return tc.fetchToken(ctx, http.MethodPost, "/api/v1/auth/token", false)
	})
}

// UserToken returns a valid authenticated token scoped by the session
// cookie, fetching one if needed.
func (tc *TokenClient) UserToken(ctx context.Context) (string, error) {
	return tc.cache.Get(ctx, SlotUser, func(ctx context.Context) (Token, error) {
		return tc.fetchToken(ctx, http.MethodGet, "/api/v1/auth/session/token", true)
	})
}

func (tc *TokenClient) fetchToken(ctx context.Context, method, path string, withSession bool) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, method, tc.baseURL+path, nil)
	if err != nil {
		return Token{}, fmt.Errorf("create request: %w", err)
	}
	if withSession {
		req.Header.Set("Cookie", session.CookieName+"="+tc.sessionToken)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if grant.AccessToken == "" {
		return Token{}, fmt.Errorf("token endpoint returned empty access_token")
	}

	return Token{
		Value:     grant.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second),
	}, nil
}
