// Package remote is the REST client the hybrid layer uses for online
// queries. It speaks PostgREST-style table reads against the LangQuest API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/genesis-ai-dev/langquest-sub009/internal/models"
)

// DefaultRateLimit is requests per minute when Config.RateLimit is unset.
const DefaultRateLimit = 120

// ErrNotConfigured is returned when no API URL is set.
var ErrNotConfigured = errors.New("remote api url not configured")

// Config holds API connection settings.
type Config struct {
	URL       string
	Token     string
	RateLimit int // requests per minute
	Timeout   time.Duration
}

// Client wraps the REST API with rate limiting and bearer auth.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter

	mu           sync.Mutex
	requestCount int
}

// NewClient creates a new API client. An empty URL yields a client whose
// calls all fail with ErrNotConfigured.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{}

	if cfg.URL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
		if err != nil {
			return nil, fmt.Errorf("parse api url: %w", err)
		}
		if base.Scheme == "" || base.Host == "" {
			return nil, fmt.Errorf("api url %q must be absolute", cfg.URL)
		}
		c.base = base
	}

	c.http = &http.Client{}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		c.http = oauth2.NewClient(context.Background(), ts)
	}
	c.http.Timeout = cfg.Timeout
	if c.http.Timeout == 0 {
		c.http.Timeout = 30 * time.Second
	}

	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rateLimit)), rateLimit)

	return c, nil
}

// Configured reports whether the client has an API URL.
func (c *Client) Configured() bool {
	return c.base != nil
}

// RequestCount returns the number of requests sent.
func (c *Client) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestCount
}

// GetJSON reads rows from table filtered by the given column equalities and
// decodes the JSON array into out.
func (c *Client) GetJSON(ctx context.Context, table string, filters map[string]string, order string, out any) error {
	if c.base == nil {
		return ErrNotConfigured
	}

	u := *c.base
	u.Path = u.Path + "/rest/v1/" + table
	q := url.Values{}
	q.Set("select", "*")
	for col, val := range filters {
		q.Set(col, "eq."+val)
	}
	if order != "" {
		q.Set("order", order)
	}
	u.RawQuery = q.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	c.mu.Lock()
	c.requestCount++
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("get %s failed with status %d: %s", table, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}

// ListQuests returns the remote quests of a project, tagged as synced.
func (c *Client) ListQuests(ctx context.Context, projectID string) ([]models.Quest, error) {
	var rows []models.QuestFields
	if err := c.GetJSON(ctx, "quest", map[string]string{"project_id": projectID}, "name.asc", &rows); err != nil {
		return nil, err
	}
	out := make([]models.Quest, len(rows))
	for i, r := range rows {
		out[i] = models.Quest{QuestFields: r, Source: models.SourceSynced}
	}
	return out, nil
}

// ListAssets returns the remote assets of a quest, tagged as synced.
func (c *Client) ListAssets(ctx context.Context, questID string) ([]models.Asset, error) {
	var rows []models.AssetFields
	if err := c.GetJSON(ctx, "asset", map[string]string{"quest_id": questID}, "order_index.asc", &rows); err != nil {
		return nil, err
	}
	out := make([]models.Asset, len(rows))
	for i, r := range rows {
		out[i] = models.Asset{AssetFields: r, Source: models.SourceSynced}
	}
	return out, nil
}
