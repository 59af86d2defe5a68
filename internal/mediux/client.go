// Package mediux downloads poster sets from mediux.pro and drops each one
// into pending-intake as a zip archive.
package mediux

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainerrors "github.com/coversync/coversync-server/internal/errors"
	"github.com/coversync/coversync-server/internal/ratelimit"
)

const (
	defaultRPS     = 2.0
	defaultBurst   = 6
	defaultTimeout = 30 * time.Second

	limiterKey = "mediux"

	// maxAssetBytes bounds one downloaded image.
	maxAssetBytes = 50 << 20
)

// Config configures a Client.
type Config struct {
	SiteURL  string
	AssetURL string
	Timeout  time.Duration
}

// Client is a rate-limited mediux client.
type Client struct {
	siteURL    string
	assetURL   string
	httpClient *http.Client
	limiter    *ratelimit.KeyedRateLimiter
	logger     *slog.Logger
}

// New creates a new mediux client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		siteURL:    strings.TrimRight(cfg.SiteURL, "/"),
		assetURL:   strings.TrimRight(cfg.AssetURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    ratelimit.New(defaultRPS, defaultBurst),
		logger:     logger,
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// CheckSetURL rejects anything but a set page on the configured site.
// Collection and user pages list several sets and are not supported.
func (c *Client) CheckSetURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return domainerrors.Validationf("not a mediux set link: %q", raw)
	}
	if !strings.HasPrefix(u.String(), c.siteURL+"/sets/") {
		return domainerrors.Validationf("not a mediux set link: %q (collection links are not supported)", raw)
	}
	return nil
}

// FetchSet downloads the set page at setURL and extracts its file list.
func (c *Client) FetchSet(ctx context.Context, setURL string) (*Set, error) {
	if err := c.CheckSetURL(setURL); err != nil {
		return nil, err
	}
	page, err := c.get(ctx, strings.TrimSpace(setURL), "text/html")
	if err != nil {
		return nil, wrapError("set", setURL, err)
	}
	set, err := ExtractSet(string(page))
	if err != nil {
		return nil, wrapError("set", setURL, err)
	}
	return set, nil
}

// FetchAsset downloads the image with the given asset id.
func (c *Client) FetchAsset(ctx context.Context, id string) ([]byte, error) {
	data, err := c.get(ctx, c.assetURL+"/"+url.PathEscape(id), "image/*")
	if err != nil {
		return nil, wrapError("asset", id, err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, target, accept string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(data) > maxAssetBytes {
			return nil, fmt.Errorf("response larger than %d bytes", maxAssetBytes)
		}
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, ErrServer
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}
