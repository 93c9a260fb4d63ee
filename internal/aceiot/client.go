// Package aceiot implements the client for the FlightDeck building-sensor
// timeseries API consumed by the sync and backfill workers.
package aceiot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vitals-systems/siphon/internal/metrics"
	"github.com/vitals-systems/siphon/internal/telemetry"
	"github.com/vitals-systems/siphon/pkg/types"
)

const (
	// DefaultPageSize matches the gateway's recommended page size for
	// incremental sync windows.
	DefaultPageSize = 5000

	// MaxPageSize is the largest page the gateway serves reliably.
	MaxPageSize = 50000

	// minShrinkPageSize is the floor when shrinking pages after mid-body
	// transfer failures.
	minShrinkPageSize = 10000

	maxPointsPerBatch       = 400
	configuredPointsPerPage = 1000

	defaultTimeout = 60 * time.Second
)

// Config holds client construction settings.
type Config struct {
	BaseURL    string
	Token      string
	PageSize   int
	Timeout    time.Duration
	Retry      types.RetryPolicy
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client talks to the FlightDeck timeseries API. One circuit breaker is kept
// per site so a single misbehaving gateway cannot stall every fetch.
type Client struct {
	baseURL  string
	token    string
	pageSize int
	retry    types.RetryPolicy
	http     *http.Client
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a Client with defaults applied for unset fields.
func New(cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		pageSize: cfg.PageSize,
		retry:    cfg.Retry,
		http:     httpClient,
		logger:   cfg.Logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Page is one page of readings from the paginated timeseries endpoint.
type Page struct {
	Samples    []types.Sample
	NextCursor string // empty when the window is exhausted
	HasMore    bool
	Dropped    int // rows filtered out: missing name, unparseable time, null/NaN/Inf value
}

// FetchPage fetches a single page of raw samples for [start, end). Transient
// failures are retried with exponential backoff; the page size is shrunk
// before each retry since oversized pages are the usual cause of mid-body
// transfer failures. 4xx responses other than 429 are returned immediately.
func (c *Client) FetchPage(ctx context.Context, site string, start, end time.Time, cursor string) (*Page, error) {
	ctx, span := telemetry.StartSpan(ctx, "aceiot.fetch_page",
		telemetry.AttrSite.String(site))
	defer span.End()

	pageSize := c.pageSize
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		var out pageResponse
		u := c.pageURL(site, start, end, cursor, pageSize)
		err := c.execute(site, func() error {
			return c.doJSON(ctx, http.MethodGet, u, nil, &out)
		})
		if err == nil {
			return c.buildPage(site, out), nil
		}
		lastErr = err
		if !IsRetryable(c.retry, Classify(err)) {
			span.RecordError(err)
			return nil, err
		}
		if attempt == c.retry.MaxAttempts {
			break
		}
		if pageSize > minShrinkPageSize {
			pageSize = max(minShrinkPageSize, int(float64(pageSize)*0.6))
		}
		metrics.APIRetriesTotal.Add(1)
		wait := CalculateBackoff(c.retry, attempt)
		c.logger.Warn("timeseries page fetch failed, retrying",
			"site", site, "attempt", attempt, "pageSize", pageSize, "backoff", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	span.RecordError(lastErr)
	return nil, fmt.Errorf("fetch page for %s: retries exhausted: %w", site, lastErr)
}

// ListSites returns the site names visible to the API token.
func (c *Client) ListSites(ctx context.Context) ([]string, error) {
	var out struct {
		Sites []struct {
			Name string `json:"name"`
		} `json:"sites"`
	}
	err := c.withRetry(ctx, "", func() error {
		out.Sites = nil
		return c.doJSON(ctx, http.MethodGet, c.baseURL+"/sites", nil, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	names := make([]string, 0, len(out.Sites))
	for _, s := range out.Sites {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names, nil
}

// ListConfiguredPoints returns every configured point name for a site,
// walking the page/per_page inventory endpoint to exhaustion.
func (c *Client) ListConfiguredPoints(ctx context.Context, site string) ([]string, error) {
	var names []string
	for page := 1; ; page++ {
		var out struct {
			Items []struct {
				Name string `json:"name"`
			} `json:"items"`
		}
		u := fmt.Sprintf("%s/sites/%s/configured_points?page=%d&per_page=%d",
			c.baseURL, url.PathEscape(site), page, configuredPointsPerPage)
		err := c.withRetry(ctx, site, func() error {
			out.Items = nil
			return c.doJSON(ctx, http.MethodGet, u, nil, &out)
		})
		if err != nil {
			return nil, fmt.Errorf("listing configured points for %s: %w", site, err)
		}
		if len(out.Items) == 0 {
			break
		}
		for _, it := range out.Items {
			if it.Name != "" {
				names = append(names, it.Name)
			}
		}
		if len(out.Items) < configuredPointsPerPage {
			break
		}
	}
	return names, nil
}

// FetchPointsBatch fetches raw samples for an explicit set of point names over
// [start, end). Names are chunked to stay under the gateway's request limits.
// Returns the parsed samples and the count of rows dropped by value filtering.
func (c *Client) FetchPointsBatch(ctx context.Context, site string, pointNames []string, start, end time.Time) ([]types.Sample, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "aceiot.fetch_points_batch",
		telemetry.AttrSite.String(site))
	defer span.End()

	var (
		all     []types.Sample
		dropped int
	)
	for i := 0; i < len(pointNames); i += maxPointsPerBatch {
		chunk := pointNames[i:min(i+maxPointsPerBatch, len(pointNames))]
		payload := map[string]interface{}{
			"point_names": chunk,
			"start_time":  isoTime(start),
			"end_time":    isoTime(end),
		}
		var raw json.RawMessage
		err := c.withRetry(ctx, site, func() error {
			raw = nil
			return c.doJSON(ctx, http.MethodPost, c.baseURL+"/points/get_timeseries", payload, &raw)
		})
		if err != nil {
			span.RecordError(err)
			return nil, dropped, fmt.Errorf("points batch for %s: %w", site, err)
		}
		rows, err := decodeBatchSamples(raw)
		if err != nil {
			return nil, dropped, fmt.Errorf("decoding points batch: %w", err)
		}
		samples, d := parseSamples(site, rows)
		all = append(all, samples...)
		dropped += d
	}
	metrics.SamplesFetched.Add(int64(len(all)))
	metrics.SamplesDropped.Add(int64(dropped))
	return all, dropped, nil
}

// withRetry runs fn through the site breaker, retrying transient failures
// with exponential backoff.
func (c *Client) withRetry(ctx context.Context, site string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		err := c.execute(site, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(c.retry, Classify(err)) {
			return err
		}
		if attempt == c.retry.MaxAttempts {
			break
		}
		metrics.APIRetriesTotal.Add(1)
		wait := CalculateBackoff(c.retry, attempt)
		c.logger.Warn("api request failed, retrying",
			"site", site, "attempt", attempt, "backoff", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("api retries exhausted after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

// execute routes fn through the per-site circuit breaker. Site-less calls
// (site discovery) bypass breaking.
func (c *Client) execute(site string, fn func() error) error {
	if site == "" {
		return fn()
	}
	_, err := c.breaker(site).Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (c *Client) breaker(site string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[site]
	if !ok {
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "aceiot:" + site,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Caller errors mean the gateway is answering; only
			// transient-like failures count toward tripping.
			IsSuccessful: func(err error) bool {
				return err == nil || Classify(err) == types.FailurePermanent
			},
		})
		c.breakers[site] = b
	}
	return b
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	// The gateway rejects the canonicalized Authorization casing, so assign
	// the header map key directly instead of going through Header.Set.
	req.Header["authorization"] = []string{"Bearer " + c.token}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	metrics.APIRequestsTotal.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading api response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 200)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding api response: %w", err)
	}
	return nil
}

func (c *Client) pageURL(site string, start, end time.Time, cursor string, pageSize int) string {
	q := url.Values{}
	q.Set("start_time", isoTime(start))
	q.Set("end_time", isoTime(end))
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("raw_data", "true")
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return fmt.Sprintf("%s/sites/%s/timeseries/paginated?%s", c.baseURL, url.PathEscape(site), q.Encode())
}

func (c *Client) buildPage(site string, resp pageResponse) *Page {
	samples, dropped := parseSamples(site, resp.PointSamples)
	next := ""
	if resp.NextCursor != nil {
		next = *resp.NextCursor
	}
	metrics.APIPagesFetched.Add(1)
	metrics.SamplesFetched.Add(int64(len(samples)))
	metrics.SamplesDropped.Add(int64(dropped))
	return &Page{Samples: samples, NextCursor: next, HasMore: resp.HasMore, Dropped: dropped}
}

type pageResponse struct {
	PointSamples []pointSample `json:"point_samples"`
	NextCursor   *string       `json:"next_cursor"`
	HasMore      bool          `json:"has_more"`
}

// pointSample tolerates the field-name drift across gateway firmware
// versions: name/point/point_name and time/timestamp/ts.
type pointSample struct {
	Name      string          `json:"name"`
	Point     string          `json:"point"`
	PointName string          `json:"point_name"`
	Value     json.RawMessage `json:"value"`
	Time      json.RawMessage `json:"time"`
	Timestamp json.RawMessage `json:"timestamp"`
	TS        json.RawMessage `json:"ts"`
}

func (p pointSample) pointName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Point != "":
		return p.Point
	default:
		return p.PointName
	}
}

func (p pointSample) when() (int64, bool) {
	for _, raw := range []json.RawMessage{p.Time, p.Timestamp, p.TS} {
		if ms, ok := parseTime(raw); ok {
			return ms, true
		}
	}
	return 0, false
}

func decodeBatchSamples(raw json.RawMessage) ([]pointSample, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	// Pointer fields distinguish a key that is present but empty (a day
	// with no samples) from a key that is absent entirely. Only the
	// latter falls through to the bare-list shape.
	var wrapper struct {
		Samples      *[]pointSample `json:"samples"`
		PointSamples *[]pointSample `json:"point_samples"`
		Data         *[]pointSample `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil {
		switch {
		case wrapper.Samples != nil:
			return *wrapper.Samples, nil
		case wrapper.PointSamples != nil:
			return *wrapper.PointSamples, nil
		case wrapper.Data != nil:
			return *wrapper.Data, nil
		}
	}
	var list []pointSample
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	return nil, fmt.Errorf("unrecognized batch response shape: %s", truncate(string(raw), 120))
}

func parseSamples(site string, rows []pointSample) ([]types.Sample, int) {
	samples := make([]types.Sample, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		name := row.pointName()
		if name == "" {
			dropped++
			continue
		}
		ts, ok := row.when()
		if !ok {
			dropped++
			continue
		}
		val, ok := parseValue(row.Value)
		if !ok {
			dropped++
			continue
		}
		samples = append(samples, types.Sample{Site: site, PointName: name, Timestamp: ts, Value: val})
	}
	return samples, dropped
}

// parseValue accepts JSON numbers and numeric strings, rejecting null and
// every NaN/Inf spelling.
func parseValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "nan", "inf", "+inf", "-inf", "infinity", "+infinity", "-infinity":
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseTime accepts epoch milliseconds or an ISO 8601 string.
func parseTime(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return ms, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC().UnixMilli(), true
	}
	return 0, false
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
