// Package auth resolves auth tokens to trading user IDs through the
// external auth API.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// cacheTTL bounds how long a resolved token is reused before re-checking
// with the auth API.
const cacheTTL = 5 * time.Minute

// Client looks up user identity by auth token, with a small in-process
// cache to keep per-request lookups off the auth API.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedUser
}

type cachedUser struct {
	tradingUserID int
	expires       time.Time
}

// NewClient creates a client against the given auth API base URL
// (e.g. http://demo-trade-auth-api:8050/api).
func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		log:     log,
		cache:   make(map[string]cachedUser),
	}
}

// TradingUserID resolves an auth token to the trading user ID it maps to.
func (c *Client) TradingUserID(ctx context.Context, token string) (int, error) {
	c.mu.Lock()
	if cached, ok := c.cache[token]; ok && time.Now().Before(cached.expires) {
		c.mu.Unlock()
		return cached.tradingUserID, nil
	}
	c.mu.Unlock()

	// Confirm the session is valid before asking for the mapping.
	var me struct {
		User struct {
			ID json.Number `json:"id"`
		} `json:"user"`
	}
	if err := c.get(ctx, "/auth/me", token, &me); err != nil {
		return 0, fmt.Errorf("auth lookup: %w", err)
	}
	if me.User.ID == "" {
		return 0, fmt.Errorf("auth lookup: no user in response")
	}

	var mapping struct {
		TradingUserID int `json:"trading_user_id"`
	}
	if err := c.get(ctx, "/mapping/trading-user-id", token, &mapping); err != nil {
		return 0, fmt.Errorf("trading user mapping: %w", err)
	}

	c.mu.Lock()
	c.cache[token] = cachedUser{tradingUserID: mapping.TradingUserID, expires: time.Now().Add(cacheTTL)}
	c.mu.Unlock()

	c.log.Debug("resolved trading user", zap.Int("tradingUserId", mapping.TradingUserID))
	return mapping.TradingUserID, nil
}

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", "auth_token="+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth api %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
