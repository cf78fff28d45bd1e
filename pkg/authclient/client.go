// Package authclient is a client SDK for the auth service. It attaches the
// access token to outbound requests and transparently refreshes it when the
// server reports it expired. Concurrent requests that hit a 401 at the same
// time share a single refresh exchange instead of each issuing their own.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/healthlinkhq/healthlink-auth/pkg/httpclient"
)

// ErrSessionExpired is returned when the refresh exchange fails and the
// stored tokens have been cleared. The caller must re-authenticate.
var ErrSessionExpired = errors.New("authclient: session expired, re-authentication required")

const refreshPath = "/api/v1/auth/refresh"

// Client wraps httpclient.Client with bearer token handling. It is safe for
// concurrent use.
type Client struct {
	http    *httpclient.Client
	baseURL string

	mu      sync.RWMutex
	access  string
	refresh string

	// group collapses concurrent refresh attempts into one exchange.
	group singleflight.Group
}

// New creates a client for the auth service at baseURL.
func New(baseURL string, cfg httpclient.Config) *Client {
	return &Client{
		http:    httpclient.New(cfg),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SetTokens stores a token pair obtained from login.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = access
	c.refresh = refresh
}

// AccessToken returns the currently stored access token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access
}

// Do executes the request with the stored access token attached. On a 401
// response it refreshes the access token (one exchange shared across all
// concurrent callers) and retries the original request once. Requests with a
// body must set req.GetBody so the retry can rewind it.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	c.authorize(req)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.refreshAccessToken(ctx); err != nil {
		return nil, err
	}

	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, fmt.Errorf("rewind request body: %w", bodyErr)
		}
		req.Body = body
	}
	c.authorize(req)
	return c.http.Do(ctx, req)
}

func (c *Client) authorize(req *http.Request) {
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// refreshAccessToken exchanges the stored refresh token for a new access
// token. Callers arriving while an exchange is in flight wait for its
// outcome instead of starting another one. On failure the stored tokens are
// cleared and every waiter gets ErrSessionExpired.
func (c *Client) refreshAccessToken(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(ctx)
	})
	return err
}

func (c *Client) doRefresh(ctx context.Context) error {
	c.mu.RLock()
	refresh := c.refresh
	c.mu.RUnlock()

	if refresh == "" {
		return ErrSessionExpired
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": refresh})
	if err != nil {
		return fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.clearTokens()
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.clearTokens()
		return ErrSessionExpired
	}

	var body struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Data.AccessToken == "" {
		c.clearTokens()
		return ErrSessionExpired
	}

	c.mu.Lock()
	c.access = body.Data.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *Client) clearTokens() {
	c.mu.Lock()
	c.access = ""
	c.refresh = ""
	c.mu.Unlock()
}
