package types

import "time"

// Sample is a single sensor reading. Samples are unique on (Site, PointName,
// Timestamp); rewriting the same key with the same value is a no-op upsert.
type Sample struct {
	Site      string  `json:"site"`
	PointName string  `json:"pointName"`
	Timestamp int64   `json:"timestamp"` // milliseconds since epoch, UTC
	Value     float64 `json:"value"`
}

// Time returns the sample timestamp as UTC wall time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

// Day returns the sample's UTC calendar date as "2006-01-02".
func (s Sample) Day() string {
	return s.Time().Format("2006-01-02")
}

// SyncState is the durable incremental-sync cursor for one site. LastSync is
// the timestamp of the newest sample actually written to the hot store, never
// the wall clock at sync time.
type SyncState struct {
	Site      string    `json:"site"`
	LastSync  int64     `json:"lastSync"` // milliseconds since epoch
	UpdatedAt time.Time `json:"updatedAt"`
}

// BackfillState is the durable continuation record for one site's historical
// backfill. It is persisted after every page so an interrupted invocation
// resumes mid-day at the exact cursor it left off.
type BackfillState struct {
	Site           string         `json:"site"`
	RangeStart     string         `json:"rangeStart"` // "2006-01-02"
	RangeEnd       string         `json:"rangeEnd"`   // inclusive
	CurrentDate    string         `json:"currentDate"`
	Cursor         string         `json:"cursor,omitempty"` // opaque page cursor within CurrentDate
	PageInDay      int            `json:"pageInDay"`
	NewestFirst    bool           `json:"newestFirst,omitempty"`
	PointNames     []string       `json:"pointNames,omitempty"` // explicit point filter, empty = all
	Status         BackfillStatus `json:"status"`
	CompletedDates []string       `json:"completedDates,omitempty"`
	SamplesFetched int64          `json:"samplesFetched"`
	SamplesWritten int64          `json:"samplesWritten"`
	Errors         []string       `json:"errors,omitempty"`
	StartedAt      time.Time      `json:"startedAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Partition identifies one (site, point, UTC day) slice of the hot store, the
// unit of archival.
type Partition struct {
	Site      string `json:"site"`
	PointName string `json:"pointName"`
	Day       string `json:"day"` // "2006-01-02"
	Rows      int64  `json:"rows"`
}

// ArchiveRunMetrics summarizes one archival run for the status surface.
type ArchiveRunMetrics struct {
	RunID              string     `json:"runId"`
	Cutoff             string     `json:"cutoff"` // "2006-01-02"; partitions strictly older were eligible
	PartitionsExamined int        `json:"partitionsExamined"`
	PartitionsArchived int        `json:"partitionsArchived"`
	PartitionsSkipped  int        `json:"partitionsSkipped"` // already present in cold storage
	PartitionsFailed   int        `json:"partitionsFailed"`
	RowsArchived       int64      `json:"rowsArchived"`
	RowsDeleted        int64      `json:"rowsDeleted"`
	BytesUploaded      int64      `json:"bytesUploaded"`
	Errors             []string   `json:"errors,omitempty"`
	StartedAt          time.Time  `json:"startedAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

// SiteSyncReport is the per-site outcome of one sync pass. A failed site
// carries Error and leaves its cursor untouched.
type SiteSyncReport struct {
	Site           string    `json:"site"`
	WindowStart    time.Time `json:"windowStart"`
	WindowEnd      time.Time `json:"windowEnd"`
	Pages          int       `json:"pages"`
	SamplesFetched int       `json:"samplesFetched"`
	SamplesWritten int       `json:"samplesWritten"`
	SamplesDropped int       `json:"samplesDropped"` // null/NaN/Inf values filtered out
	UniquePoints   int       `json:"uniquePoints"`
	LastSync       int64     `json:"lastSync"` // cursor after this pass, ms epoch
	LagSeconds     float64   `json:"lagSeconds"`
	Error          string    `json:"error,omitempty"`
}

// SyncRunReport is the whole-invocation outcome across selected sites and
// catch-up cycles.
type SyncRunReport struct {
	RunID        string           `json:"runId"`
	SitesTotal   int              `json:"sitesTotal"`
	SitesSynced  int              `json:"sitesSynced"`
	SitesFailed  int              `json:"sitesFailed"`
	Cycles       int              `json:"cycles"`
	LockAcquired bool             `json:"lockAcquired"`
	LockFailOpen bool             `json:"lockFailOpen,omitempty"` // proceeded despite lock-store error
	Sites        []SiteSyncReport `json:"sites"`
	StartedAt    time.Time        `json:"startedAt"`
	DurationMS   int64            `json:"durationMs"`
}

// FreshnessReport is the measured hot-store lag for one site. MaxSample is
// nil when the site has no hot rows at all.
type FreshnessReport struct {
	Site       string     `json:"site"`
	MaxSample  *time.Time `json:"maxSample,omitempty"`
	LagSeconds float64    `json:"lagSeconds"`
	Level      Freshness  `json:"level"`
	CheckedAt  time.Time  `json:"checkedAt"`
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	Level     AlertLevel             `json:"level"`
	Category  string                 `json:"alertType,omitempty"`
	Site      string                 `json:"site,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
