// Package external proxies a third-party user directory with Redis caching
// so repeated reads do not hammer the upstream.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/aegis-auth/aegis/internal/shared"
)

const (
	usersCacheKey   = "external:users"
	defaultCacheTTL = 5 * time.Minute
)

// Client fetches the upstream user directory. Responses are cached in Redis
// and concurrent cache misses collapse into a single upstream call.
type Client struct {
	httpClient *http.Client
	cache      *redis.Client
	baseURL    string
	ttl        time.Duration
	logger     *slog.Logger
	group      singleflight.Group
}

// NewClient constructs a Client. A zero ttl falls back to five minutes.
func NewClient(httpClient *http.Client, cache *redis.Client, baseURL string, ttl time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Client{httpClient: httpClient, cache: cache, baseURL: baseURL, ttl: ttl, logger: logger}
}

// FetchUsers returns the upstream user list, serving from cache when fresh.
// An unreachable upstream yields shared.ErrUpstreamUnavailable.
func (c *Client) FetchUsers(ctx context.Context) (json.RawMessage, error) {
	if c.cache != nil {
		payload, err := c.cache.Get(ctx, usersCacheKey).Bytes()
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, redis.Nil) && c.logger != nil {
			c.logger.Warn("external cache read", slog.Any("error", err))
		}
	}

	ch := c.group.DoChan(usersCacheKey, func() (any, error) {
		return c.fetchUpstream(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

// Refresh forces an upstream fetch and repopulates the cache. Run from the
// worker to keep the cache warm.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.fetchUpstream(ctx)
	return err
}

func (c *Client) fetchUpstream(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("external fetch", slog.Any("error", err))
		}
		return nil, shared.ErrUpstreamUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.logger != nil {
			c.logger.Error("external fetch", slog.Int("status", resp.StatusCode))
		}
		return nil, shared.ErrUpstreamUnavailable
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, shared.ErrUpstreamUnavailable
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("external: invalid upstream payload")
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, usersCacheKey, body, c.ttl).Err(); err != nil && c.logger != nil {
			c.logger.Warn("external cache write", slog.Any("error", err))
		}
	}
	return json.RawMessage(body), nil
}
