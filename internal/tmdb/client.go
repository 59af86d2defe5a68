// Package tmdb looks up localized and alternative titles on The Movie Database.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coversync/coversync-server/internal/domain"
	"github.com/coversync/coversync-server/internal/normalize"
	"github.com/coversync/coversync-server/internal/ratelimit"
)

const (
	// TMDB allows roughly 40 requests per 10 seconds per key.
	defaultRPS     = 4.0
	defaultBurst   = 10
	defaultTimeout = 30 * time.Second

	limiterKey = "tmdb"
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	APIKey    string
	Languages []string
	Timeout   time.Duration
}

// Client is a rate-limited TMDB API client.
type Client struct {
	baseURL    string
	apiKey     string
	languages  []string
	httpClient *http.Client
	limiter    *ratelimit.KeyedRateLimiter
	logger     *slog.Logger
}

// New creates a new TMDB client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		languages:  cfg.Languages,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    ratelimit.New(defaultRPS, defaultBurst),
		logger:     logger,
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

type mediaType string

const (
	mediaMovie mediaType = "movie"
	mediaTV    mediaType = "tv"
)

type searchHit struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	Name          string  `json:"name"`
	OriginalTitle string  `json:"original_title"`
	OriginalName  string  `json:"original_name"`
	OriginalLang  string  `json:"original_language"`
	ReleaseDate   string  `json:"release_date"`
	FirstAirDate  string  `json:"first_air_date"`
	Popularity    float64 `json:"popularity"`

	media mediaType
}

func (h searchHit) title() string {
	if h.Title != "" {
		return h.Title
	}
	return h.Name
}

func (h searchHit) originalTitle() string {
	if h.OriginalTitle != "" {
		return h.OriginalTitle
	}
	return h.OriginalName
}

func (h searchHit) year() int {
	date := h.ReleaseDate
	if date == "" {
		date = h.FirstAirDate
	}
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

type translationsResponse struct {
	Translations []struct {
		ISO3166 string `json:"iso_3166_1"`
		ISO639  string `json:"iso_639_1"`
		Data    struct {
			Title string `json:"title"`
			Name  string `json:"name"`
		} `json:"data"`
	} `json:"translations"`
}

type altTitlesResponse struct {
	Titles  []altTitle `json:"titles"`
	Results []altTitle `json:"results"`
}

type altTitle struct {
	ISO3166 string `json:"iso_3166_1"`
	Title   string `json:"title"`
}

// ResolveTitles searches movies and shows for title and returns the best
// hit's original, localized and alternative titles.
func (c *Client) ResolveTitles(ctx context.Context, title string, year int) ([]domain.AltTitle, error) {
	hit, err := c.bestHit(ctx, title, year)
	if err != nil {
		return nil, err
	}
	if hit == nil {
		return nil, nil
	}

	var out []domain.AltTitle
	seen := make(map[string]bool)
	add := func(lang, t string) {
		t = strings.TrimSpace(t)
		key := normalize.Title(t)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, domain.AltTitle{Language: lang, Title: t})
	}
	seen[normalize.Title(title)] = true

	add(hit.OriginalLang, hit.originalTitle())
	add("", hit.title())

	translations, err := c.translations(ctx, hit)
	if err != nil {
		return nil, err
	}
	for _, lang := range c.languages {
		if t, ok := translations[normalize.LanguageTag(lang)]; ok {
			add(lang, t)
		} else if t, ok := translations[normalize.LanguageCode(lang)]; ok {
			add(lang, t)
		}
	}

	alts, err := c.alternativeTitles(ctx, hit)
	if err != nil {
		// Alternative titles are a bonus; keep what we have.
		c.logger.Debug("alternative titles unavailable", "id", hit.ID, "error", err)
		return out, nil
	}
	for _, a := range alts {
		add(strings.ToLower(a.ISO3166), a.Title)
	}
	return out, nil
}

// bestHit prefers an exact normalized title match, then a year match, then
// popularity.
func (c *Client) bestHit(ctx context.Context, title string, year int) (*searchHit, error) {
	var hits []searchHit
	for _, m := range []mediaType{mediaMovie, mediaTV} {
		res, err := c.search(ctx, m, title, year)
		if err != nil {
			return nil, err
		}
		hits = append(hits, res...)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	want := normalize.Title(title)
	score := func(h searchHit) float64 {
		s := h.Popularity / 1000
		if normalize.Title(h.title()) == want || normalize.Title(h.originalTitle()) == want {
			s += 10
		}
		if year > 0 && h.year() == year {
			s += 5
		}
		return s
	}

	best := 0
	for i := 1; i < len(hits); i++ {
		if score(hits[i]) > score(hits[best]) {
			best = i
		}
	}
	return &hits[best], nil
}

func (c *Client) search(ctx context.Context, m mediaType, title string, year int) ([]searchHit, error) {
	q := url.Values{}
	q.Set("query", title)
	if year > 0 {
		if m == mediaMovie {
			q.Set("year", strconv.Itoa(year))
		} else {
			q.Set("first_air_date_year", strconv.Itoa(year))
		}
	}

	data, err := c.get(ctx, "/search/"+string(m), q)
	if err != nil {
		return nil, wrapError("search", title, err)
	}
	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, wrapError("search", title, fmt.Errorf("decode: %w", err))
	}
	for i := range resp.Results {
		resp.Results[i].media = m
	}
	return resp.Results, nil
}

// translations returns titles keyed by "ll-CC" tag and by bare "ll" code.
func (c *Client) translations(ctx context.Context, hit *searchHit) (map[string]string, error) {
	path := fmt.Sprintf("/%s/%d/translations", hit.media, hit.ID)
	data, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, wrapError("translations", strconv.Itoa(hit.ID), err)
	}
	var resp translationsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, wrapError("translations", strconv.Itoa(hit.ID), fmt.Errorf("decode: %w", err))
	}

	out := make(map[string]string, len(resp.Translations))
	for _, t := range resp.Translations {
		title := t.Data.Title
		if title == "" {
			title = t.Data.Name
		}
		if title == "" {
			continue
		}
		if tag := normalize.LanguageTag(t.ISO639 + "-" + t.ISO3166); tag != "" {
			out[tag] = title
		}
		if code := normalize.LanguageCode(t.ISO639); code != "" {
			if _, ok := out[code]; !ok {
				out[code] = title
			}
		}
	}
	return out, nil
}

func (c *Client) alternativeTitles(ctx context.Context, hit *searchHit) ([]altTitle, error) {
	path := fmt.Sprintf("/%s/%d/alternative_titles", hit.media, hit.ID)
	data, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, wrapError("alternative_titles", strconv.Itoa(hit.ID), err)
	}
	var resp altTitlesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, wrapError("alternative_titles", strconv.Itoa(hit.ID), fmt.Errorf("decode: %w", err))
	}
	// Movies answer with "titles", shows with "results".
	return append(resp.Titles, resp.Results...), nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return io.ReadAll(resp.Body)
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, ErrServer
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}
