package ld

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/felixgeelhaar/activityflow/internal/log"
)

// DefaultMaxDocumentSize bounds a fetched document.
const DefaultMaxDocumentSize int64 = 8 << 20

// HTTPConfig controls remote document fetching.
type HTTPConfig struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	MaxSize      int64
	UserAgent    string
}

// DefaultHTTPConfig returns the fetch policy used when none is configured.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:      15 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 250 * time.Millisecond,
		RetryWaitMax: 4 * time.Second,
		MaxSize:      DefaultMaxDocumentSize,
		UserAgent:    "activityflow",
	}
}

// HTTPFetcher fetches http(s) documents with retries on transient failures.
type HTTPFetcher struct {
	client    *retryablehttp.Client
	maxSize   int64
	userAgent string
}

// NewHTTPFetcher builds an HTTPFetcher. A nil logger silences retry logging.
func NewHTTPFetcher(cfg HTTPConfig, logger *log.Logger) *HTTPFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	if logger != nil {
		client.Logger = logger.WithComponent("http-fetcher")
	} else {
		client.Logger = nil
	}

	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxDocumentSize
	}

	return &HTTPFetcher{client: client, maxSize: maxSize, userAgent: cfg.UserAgent}
}

// Fetch GETs ref and returns the body of a 200 response.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/ld+json, application/json;q=0.9")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("document exceeds %d bytes", f.maxSize)
	}
	return body, nil
}
