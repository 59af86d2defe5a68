// Package jellyfin is the catalog collaborator: it pages the media server's
// items into library entries and uploads artwork.
package jellyfin

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coversync/coversync-server/internal/ratelimit"
)

const (
	defaultRPS     = 10.0
	defaultBurst   = 20
	defaultTimeout = 30 * time.Second

	limiterKey = "jellyfin"
)

// HTTPDoer describes the HTTP client used by the Jellyfin client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	IncludeEpisodes bool
}

// Client is a rate-limited Jellyfin API client.
type Client struct {
	baseURL         string
	apiKey          string
	includeEpisodes bool
	http            HTTPDoer
	limiter         *ratelimit.KeyedRateLimiter
	logger          *slog.Logger

	libMu     sync.Mutex
	libraries []virtualFolder
}

// New creates a new Jellyfin client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewWithDoer(cfg, &http.Client{Timeout: timeout}, logger)
}

// NewWithDoer creates a client that sends requests through doer.
func NewWithDoer(cfg Config, doer HTTPDoer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:          strings.TrimSpace(cfg.APIKey),
		includeEpisodes: cfg.IncludeEpisodes,
		http:            doer,
		limiter:         ratelimit.New(defaultRPS, defaultBurst),
		logger:          logger,
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// doRequest executes a request with rate limiting and maps status codes to sentinel errors.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("jellyfin request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, ErrServer
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
}

// UploadImage replaces an item's image. imageType is a Jellyfin image type
// such as "Primary" or "Backdrop". The server expects a base64 body.
func (c *Client) UploadImage(ctx context.Context, itemID, imageType, contentType string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	path := fmt.Sprintf("/Items/%s/Images/%s", url.PathEscape(itemID), url.PathEscape(imageType))
	if _, err := c.doRequest(ctx, http.MethodPost, path, nil, bytes.NewBufferString(encoded), contentType); err != nil {
		return wrapError("upload", itemID, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
