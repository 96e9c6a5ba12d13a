package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultRateLimit is requests per minute when HTTPConfig.RateLimit is unset.
const DefaultRateLimit = 60

// HTTPConfig holds object store connection configuration.
type HTTPConfig struct {
	// BaseURL is the bucket URL; object keys are appended as path segments.
	BaseURL   string
	Token     string
	RateLimit int // requests per minute
	Timeout   time.Duration
}

// HTTPRemote is a Remote speaking plain object PUT/GET/DELETE to an
// S3-compatible endpoint.
type HTTPRemote struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPRemote creates an HTTPRemote. A bearer token, if set, is attached
// to every request.
func NewHTTPRemote(cfg HTTPConfig) (*HTTPRemote, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse storage url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("storage url %q must be absolute", cfg.BaseURL)
	}

	httpClient := &http.Client{}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	httpClient.Timeout = cfg.Timeout
	if httpClient.Timeout == 0 {
		httpClient.Timeout = 60 * time.Second
	}

	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}

	return &HTTPRemote{
		base:    base,
		client:  httpClient,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rateLimit)), rateLimit),
	}, nil
}

func (r *HTTPRemote) objectURL(key string) string {
	u := *r.base
	u.Path = u.Path + "/" + strings.TrimLeft(key, "/")
	return u.String()
}

func (r *HTTPRemote) do(ctx context.Context, method, key string, body []byte, mediaType string) (*http.Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.objectURL(key), rd)
	if err != nil {
		return nil, err
	}
	if mediaType != "" {
		req.Header.Set("Content-Type", mediaType)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, key, err)
	}
	return resp, nil
}

func statusError(method, key string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s failed with status %d: %s", method, key, resp.StatusCode, strings.TrimSpace(string(body)))
}

// Put implements Remote.
func (r *HTTPRemote) Put(ctx context.Context, key string, data []byte, mediaType string) error {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	resp, err := r.do(ctx, http.MethodPut, key, data, mediaType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return statusError("upload", key, resp)
	}
	return nil
}

// Get implements Remote.
func (r *HTTPRemote) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := r.do(ctx, http.MethodGet, key, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("download", key, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return data, nil
}

// Delete implements Remote. Deleting a missing object is not an error.
func (r *HTTPRemote) Delete(ctx context.Context, key string) error {
	resp, err := r.do(ctx, http.MethodDelete, key, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted, http.StatusNotFound:
		return nil
	default:
		return statusError("delete", key, resp)
	}
}
