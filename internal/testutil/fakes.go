// Package testutil provides in-memory fakes for the pipeline's stores and
// the timeseries API, used across package tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vitals-systems/siphon/internal/aceiot"
	"github.com/vitals-systems/siphon/pkg/types"
)

// MemoryState is an in-memory state.Store and state.Locker with optional
// error injection.
type MemoryState struct {
	mu        sync.Mutex
	syncs     map[string]types.SyncState
	backfills map[string]types.BackfillState
	rotation  int
	runs      []types.ArchiveRunMetrics
	locks     map[string]time.Time

	// Error injection. When set, the matching operations fail.
	LockErr  error
	StoreErr error
}

// NewMemoryState creates an empty in-memory state store.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		syncs:     make(map[string]types.SyncState),
		backfills: make(map[string]types.BackfillState),
		locks:     make(map[string]time.Time),
	}
}

func (m *MemoryState) GetSyncState(_ context.Context, site string) (*types.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreErr != nil {
		return nil, m.StoreErr
	}
	st, ok := m.syncs[site]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *MemoryState) PutSyncState(_ context.Context, st types.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreErr != nil {
		return m.StoreErr
	}
	m.syncs[st.Site] = st
	return nil
}

func (m *MemoryState) GetBackfillState(_ context.Context, site string) (*types.BackfillState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreErr != nil {
		return nil, m.StoreErr
	}
	st, ok := m.backfills[site]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *MemoryState) PutBackfillState(_ context.Context, st types.BackfillState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreErr != nil {
		return m.StoreErr
	}
	m.backfills[st.Site] = st
	return nil
}

func (m *MemoryState) DeleteBackfillState(_ context.Context, site string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backfills, site)
	return nil
}

func (m *MemoryState) GetRotationCursor(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotation, nil
}

func (m *MemoryState) PutRotationCursor(_ context.Context, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotation = position
	return nil
}

func (m *MemoryState) PutArchiveMetrics(_ context.Context, run types.ArchiveRunMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append([]types.ArchiveRunMetrics{run}, m.runs...)
	return nil
}

func (m *MemoryState) ListArchiveMetrics(_ context.Context, limit int) ([]types.ArchiveRunMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	out := make([]types.ArchiveRunMetrics, limit)
	copy(out, m.runs[:limit])
	return out, nil
}

func (m *MemoryState) Start(_ context.Context) error { return nil }
func (m *MemoryState) Stop(_ context.Context) error  { return nil }
func (m *MemoryState) Ping(_ context.Context) error  { return m.StoreErr }

func (m *MemoryState) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LockErr != nil {
		return false, m.LockErr
	}
	if exp, held := m.locks[key]; held && time.Now().Before(exp) {
		return false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *MemoryState) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LockErr != nil {
		return m.LockErr
	}
	delete(m.locks, key)
	return nil
}

// MemoryHot is an in-memory hot store keyed by (site, point, timestamp).
type MemoryHot struct {
	mu      sync.Mutex
	samples map[hotKey]float64

	UpsertErr error
	DeleteErr error
}

type hotKey struct {
	site  string
	point string
	ts    int64
}

// NewMemoryHot creates an empty in-memory hot store.
func NewMemoryHot() *MemoryHot {
	return &MemoryHot{samples: make(map[hotKey]float64)}
}

func (m *MemoryHot) Ping(_ context.Context) error { return nil }

func (m *MemoryHot) UpsertSamples(_ context.Context, samples []types.Sample) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return 0, m.UpsertErr
	}
	written := make(map[hotKey]bool, len(samples))
	for _, sm := range samples {
		k := hotKey{sm.Site, sm.PointName, sm.Timestamp}
		m.samples[k] = sm.Value
		written[k] = true
	}
	return len(written), nil
}

func (m *MemoryHot) MaxSampleTime(_ context.Context, site string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var maxTS int64
	found := false
	for k := range m.samples {
		if k.site == site && k.ts > maxTS {
			maxTS = k.ts
			found = true
		}
	}
	return maxTS, found, nil
}

func (m *MemoryHot) DistinctSites(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]bool)
	for k := range m.samples {
		set[k.site] = true
	}
	sites := make([]string, 0, len(set))
	for s := range set {
		sites = append(sites, s)
	}
	sort.Strings(sites)
	return sites, nil
}

func (m *MemoryHot) ListAgedPartitions(_ context.Context, cutoff time.Time) ([]types.Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoffMs := cutoff.UTC().Truncate(24 * time.Hour).UnixMilli()
	counts := make(map[types.Partition]int64)
	for k := range m.samples {
		if k.ts >= cutoffMs {
			continue
		}
		day := time.UnixMilli(k.ts).UTC().Format("2006-01-02")
		counts[types.Partition{Site: k.site, PointName: k.point, Day: day}]++
	}
	parts := make([]types.Partition, 0, len(counts))
	for p, n := range counts {
		p.Rows = n
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].Day != parts[j].Day {
			return parts[i].Day < parts[j].Day
		}
		if parts[i].Site != parts[j].Site {
			return parts[i].Site < parts[j].Site
		}
		return parts[i].PointName < parts[j].PointName
	})
	return parts, nil
}

func (m *MemoryHot) ReadPartitionRows(_ context.Context, p types.Partition) ([]types.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []types.Sample
	for k, v := range m.samples {
		if m.inPartition(k, p) {
			rows = append(rows, types.Sample{Site: k.site, PointName: k.point, Timestamp: k.ts, Value: v})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })
	return rows, nil
}

func (m *MemoryHot) CountPartitionRows(_ context.Context, p types.Partition) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.samples {
		if m.inPartition(k, p) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryHot) DeletePartitionRows(_ context.Context, p types.Partition) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}
	var n int64
	for k := range m.samples {
		if m.inPartition(k, p) {
			delete(m.samples, k)
			n++
		}
	}
	return n, nil
}

// Count returns the total number of hot rows, for test assertions.
func (m *MemoryHot) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

// Value returns a stored sample value, for test assertions.
func (m *MemoryHot) Value(site, point string, ts int64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.samples[hotKey{site, point, ts}]
	return v, ok
}

func (m *MemoryHot) inPartition(k hotKey, p types.Partition) bool {
	if k.site != p.Site || k.point != p.PointName {
		return false
	}
	return time.UnixMilli(k.ts).UTC().Format("2006-01-02") == p.Day
}

// MemoryCold is an in-memory cold store. Objects are JSON-encoded rather
// than parquet; the engines only see opaque bytes.
type MemoryCold struct {
	mu      sync.Mutex
	objects map[string][]byte

	// PutFailures makes the next N Put calls fail, for upload-retry tests.
	PutFailures int
	// DropPuts makes Put report success without storing anything, for
	// verification-failure tests.
	DropPuts  bool
	PutErr    error
	StatErr   error
	EncodeErr error
}

// NewMemoryCold creates an empty in-memory cold store.
func NewMemoryCold() *MemoryCold {
	return &MemoryCold{objects: make(map[string][]byte)}
}

func (m *MemoryCold) PartitionKey(p types.Partition) string {
	return fmt.Sprintf("timeseries/%s/%s/%s.parquet", p.Site, dayPath(p.Day), p.PointName)
}

func (m *MemoryCold) BackfillPageKey(site, day string, page int) string {
	return fmt.Sprintf("timeseries/%s/%s/%s-%04d.parquet", site, dayPath(day), site, page)
}

func dayPath(day string) string {
	if len(day) != 10 {
		return day
	}
	return day[:4] + "/" + day[5:7] + "/" + day[8:]
}

func (m *MemoryCold) Encode(samples []types.Sample) ([]byte, error) {
	if m.EncodeErr != nil {
		return nil, m.EncodeErr
	}
	return json.Marshal(samples)
}

func (m *MemoryCold) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	if m.PutFailures > 0 {
		m.PutFailures--
		return fmt.Errorf("injected put failure for %s", key)
	}
	if m.DropPuts {
		return nil
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryCold) Stat(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StatErr != nil {
		return 0, false, m.StatErr
	}
	data, ok := m.objects[key]
	if !ok {
		return 0, false, nil
	}
	return int64(len(data)), true, nil
}

func (m *MemoryCold) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Stat(ctx, key)
	return ok, err
}

// Object returns a stored object's bytes, for test assertions.
func (m *MemoryCold) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

// ObjectCount returns the number of stored objects.
func (m *MemoryCold) ObjectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Keys returns every stored object key, sorted.
func (m *MemoryCold) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FakeAPI is a function-field mock of the timeseries client.
type FakeAPI struct {
	FetchPageFunc            func(ctx context.Context, site string, start, end time.Time, cursor string) (*aceiot.Page, error)
	FetchPointsBatchFunc     func(ctx context.Context, site string, pointNames []string, start, end time.Time) ([]types.Sample, int, error)
	ListSitesFunc            func(ctx context.Context) ([]string, error)
	ListConfiguredPointsFunc func(ctx context.Context, site string) ([]string, error)
}

func (f *FakeAPI) FetchPage(ctx context.Context, site string, start, end time.Time, cursor string) (*aceiot.Page, error) {
	if f.FetchPageFunc == nil {
		return &aceiot.Page{}, nil
	}
	return f.FetchPageFunc(ctx, site, start, end, cursor)
}

func (f *FakeAPI) FetchPointsBatch(ctx context.Context, site string, pointNames []string, start, end time.Time) ([]types.Sample, int, error) {
	if f.FetchPointsBatchFunc == nil {
		return nil, 0, nil
	}
	return f.FetchPointsBatchFunc(ctx, site, pointNames, start, end)
}

func (f *FakeAPI) ListSites(ctx context.Context) ([]string, error) {
	if f.ListSitesFunc == nil {
		return nil, nil
	}
	return f.ListSitesFunc(ctx)
}

func (f *FakeAPI) ListConfiguredPoints(ctx context.Context, site string) ([]string, error) {
	if f.ListConfiguredPointsFunc == nil {
		return nil, nil
	}
	return f.ListConfiguredPointsFunc(ctx, site)
}
