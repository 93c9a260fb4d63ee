package aceiot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitals-systems/siphon/pkg/types"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL: srv.URL,
		Token:   "test-token",
		Retry: types.RetryPolicy{
			MaxAttempts:       4,
			BackoffSeconds:    0, // no waiting in tests
			BackoffMultiplier: 2.0,
		},
	})
}

func TestFetchPage_ParsesAndFilters(t *testing.T) {
	var gotQuery map[string]string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/sites/bldg-12/timeseries/paginated", r.URL.Path)
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		fmt.Fprint(w, `{
			"point_samples": [
				{"name": "bldg-12/ahu1/temp", "value": 72.5, "time": 1759276800000},
				{"name": "bldg-12/ahu1/temp", "value": 72.6, "time": "2025-10-01T00:01:00Z"},
				{"point": "bldg-12/ahu2/temp", "value": "68.4", "ts": 1759276800000},
				{"name": "bldg-12/ahu1/mode", "value": null, "time": 1759276800000},
				{"name": "bldg-12/ahu1/flow", "value": "NaN", "time": 1759276800000},
				{"name": "bldg-12/ahu1/psi", "value": "+Inf", "time": 1759276800000},
				{"name": "", "value": 1.0, "time": 1759276800000}
			],
			"next_cursor": "abc123",
			"has_more": true
		}`)
	})

	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	page, err := client.FetchPage(context.Background(), "bldg-12", start, end, "")
	require.NoError(t, err)

	assert.Equal(t, "2025-10-01T00:00:00Z", gotQuery["start_time"])
	assert.Equal(t, "2025-10-01T00:30:00Z", gotQuery["end_time"])
	assert.Equal(t, "true", gotQuery["raw_data"])
	assert.Equal(t, strconv.Itoa(DefaultPageSize), gotQuery["page_size"])
	_, hasCursor := gotQuery["cursor"]
	assert.False(t, hasCursor)

	assert.Equal(t, "abc123", page.NextCursor)
	assert.True(t, page.HasMore)
	assert.Equal(t, 4, page.Dropped)
	require.Len(t, page.Samples, 3)
	assert.Equal(t, types.Sample{
		Site: "bldg-12", PointName: "bldg-12/ahu1/temp", Timestamp: 1759276800000, Value: 72.5,
	}, page.Samples[0])
	assert.Equal(t, int64(1759276860000), page.Samples[1].Timestamp)
	assert.Equal(t, "bldg-12/ahu2/temp", page.Samples[2].PointName)
	assert.Equal(t, 68.4, page.Samples[2].Value)
}

func TestFetchPage_SendsCursor(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "page-2-token", r.URL.Query().Get("cursor"))
		fmt.Fprint(w, `{"point_samples": [], "next_cursor": null, "has_more": false}`)
	})

	page, err := client.FetchPage(context.Background(), "bldg-12", time.Now().Add(-time.Hour), time.Now(), "page-2-token")
	require.NoError(t, err)
	assert.Empty(t, page.NextCursor)
	assert.Empty(t, page.Samples)
}

func TestFetchPage_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"point_samples": [{"name": "p", "value": 1, "time": 1000}], "next_cursor": null}`)
	})

	page, err := client.FetchPage(context.Background(), "bldg-12", time.Now().Add(-time.Hour), time.Now(), "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, page.Samples, 1)
}

func TestFetchPage_NoRetryOnCallerError(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "bad token")
	})

	_, err := client.FetchPage(context.Background(), "bldg-12", time.Now().Add(-time.Hour), time.Now(), "")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, types.FailurePermanent, Classify(err))
}

func TestFetchPage_ShrinksPageSizeOnRetry(t *testing.T) {
	var sizes []string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		sizes = append(sizes, r.URL.Query().Get("page_size"))
		if len(sizes) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"point_samples": [], "next_cursor": null}`)
	})
	client.pageSize = 50000

	_, err := client.FetchPage(context.Background(), "bldg-12", time.Now().Add(-time.Hour), time.Now(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"50000", "30000", "18000"}, sizes)
}

func TestFetchPage_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client.retry.MaxAttempts = 1

	for i := 0; i < 5; i++ {
		_, err := client.FetchPage(context.Background(), "bldg-12", time.Now().Add(-time.Hour), time.Now(), "")
		require.Error(t, err)
	}

	_, err := client.FetchPage(context.Background(), "bldg-12", time.Now().Add(-time.Hour), time.Now(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
}

func TestListSites(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites", r.URL.Path)
		fmt.Fprint(w, `{"sites": [{"name": "bldg-12"}, {"name": "bldg-7"}, {"name": ""}]}`)
	})

	sites, err := client.ListSites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bldg-12", "bldg-7"}, sites)
}

func TestListConfiguredPoints_Paginates(t *testing.T) {
	fullPage := make([]map[string]string, configuredPointsPerPage)
	for i := range fullPage {
		fullPage[i] = map[string]string{"name": fmt.Sprintf("bldg-12/pt-%04d", i)}
	}
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/bldg-12/configured_points", r.URL.Path)
		switch r.URL.Query().Get("page") {
		case "1":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": fullPage})
		case "2":
			fmt.Fprint(w, `{"items": [{"name": "bldg-12/extra-1"}, {"name": "bldg-12/extra-2"}]}`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})

	points, err := client.ListConfiguredPoints(context.Background(), "bldg-12")
	require.NoError(t, err)
	assert.Len(t, points, configuredPointsPerPage+2)
	assert.Equal(t, "bldg-12/pt-0000", points[0])
	assert.Equal(t, "bldg-12/extra-2", points[len(points)-1])
}

func TestFetchPointsBatch_Chunks(t *testing.T) {
	var batchSizes []int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/points/get_timeseries", r.URL.Path)
		var payload struct {
			PointNames []string `json:"point_names"`
			StartTime  string   `json:"start_time"`
			EndTime    string   `json:"end_time"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		batchSizes = append(batchSizes, len(payload.PointNames))
		fmt.Fprintf(w, `{"samples": [{"name": %q, "value": 1.5, "time": 1000}]}`, payload.PointNames[0])
	})

	points := make([]string, 900)
	for i := range points {
		points[i] = fmt.Sprintf("pt-%03d", i)
	}
	samples, dropped, err := client.FetchPointsBatch(context.Background(), "bldg-12", points, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int{400, 400, 100}, batchSizes)
	assert.Equal(t, 0, dropped)
	require.Len(t, samples, 3)
	assert.Equal(t, "bldg-12", samples[0].Site)
	assert.Equal(t, "pt-000", samples[0].PointName)
}

func TestDecodeBatchSamples_Shapes(t *testing.T) {
	rows, err := decodeBatchSamples([]byte(`{"point_samples": [{"name": "p", "value": 1, "time": 1}]}`))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = decodeBatchSamples([]byte(`[{"name": "p", "value": 1, "time": 1}]`))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	// An empty wrapper array is a day with no samples, not a decode
	// failure; surfacing an error here would stall a backfill on that day.
	for _, raw := range []string{`{"data": []}`, `{"samples": []}`, `{"point_samples": []}`, `[]`} {
		rows, err = decodeBatchSamples([]byte(raw))
		require.NoError(t, err, "shape %s", raw)
		assert.Empty(t, rows)
	}

	_, err = decodeBatchSamples([]byte(`{"rows": 3}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized batch response shape")
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw      string
		expected float64
		ok       bool
	}{
		{`72.5`, 72.5, true},
		{`"68.4"`, 68.4, true},
		{`0`, 0, true},
		{`null`, 0, false},
		{`"NaN"`, 0, false},
		{`"nan"`, 0, false},
		{`"Infinity"`, 0, false},
		{`"-Inf"`, 0, false},
		{`"not a number"`, 0, false},
		{`true`, 0, false},
	}

	for _, tc := range tests {
		v, ok := parseValue(json.RawMessage(tc.raw))
		assert.Equal(t, tc.ok, ok, "raw %s", tc.raw)
		if tc.ok {
			assert.Equal(t, tc.expected, v, "raw %s", tc.raw)
		}
	}
}

func TestParseTime(t *testing.T) {
	ms, ok := parseTime(json.RawMessage(`1759276800000`))
	require.True(t, ok)
	assert.Equal(t, int64(1759276800000), ms)

	ms, ok = parseTime(json.RawMessage(`"2025-10-01T00:00:00Z"`))
	require.True(t, ok)
	assert.Equal(t, int64(1759276800000), ms)

	ms, ok = parseTime(json.RawMessage(`"2025-10-01T00:00:00"`))
	require.True(t, ok)
	assert.Equal(t, int64(1759276800000), ms)

	_, ok = parseTime(json.RawMessage(`"yesterday"`))
	assert.False(t, ok)

	_, ok = parseTime(nil)
	assert.False(t, ok)
}
