// Package client is a Go client for the eprec read endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eplot/eprec/pkg/aggregate"
	"github.com/eplot/eprec/pkg/config"
	"github.com/eplot/eprec/pkg/query"
)

// Config holds client configuration.
type Config struct {
	// BaseURL of the server, e.g. http://localhost:3001
	BaseURL string

	// Timeout per request (default 30s)
	Timeout time.Duration
}

// Client calls the aggregation endpoints.
type Client struct {
	base   *url.URL
	client *http.Client
}

// StatusError is returned for non-2xx responses. Body holds the server's
// plain-text message.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = config.ClientTimeout
	}
	return &Client{
		base:   base,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// SeriesByPeriod fetches series grouped by year-month. The second return
// value is the dataset generation the view was built from.
func (c *Client) SeriesByPeriod(ctx context.Context) (aggregate.PeriodView, uint64, error) {
	var view aggregate.PeriodView
	gen, err := c.post(ctx, "/series_with_year_month", nil, &view)
	if err != nil {
		return nil, 0, err
	}
	return view, gen, nil
}

// ContentBySeriesID fetches up to three abstracts per episode name for the
// given series.
func (c *Client) ContentBySeriesID(ctx context.Context, ids []int64) (aggregate.EpisodeView, uint64, error) {
	if ids == nil {
		ids = []int64{}
	}
	var view aggregate.EpisodeView
	gen, err := c.post(ctx, "/get_content_by_series_id", query.SeriesIDList{IDList: ids}, &view)
	if err != nil {
		return nil, 0, err
	}
	return view, gen, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) (uint64, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	var gen uint64
	if raw := resp.Header.Get(query.GenerationHeader); raw != "" {
		gen, _ = strconv.ParseUint(raw, 10, 64)
	}
	return gen, nil
}
