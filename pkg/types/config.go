package types

// APIConfig holds remote timeseries API connection settings.
type APIConfig struct {
	BaseURL  string `yaml:"baseUrl" json:"baseUrl"`
	Token    string `yaml:"token,omitempty" json:"-"`
	PageSize int    `yaml:"pageSize,omitempty" json:"pageSize,omitempty"`
	Timeout  string `yaml:"timeout,omitempty" json:"timeout,omitempty"` // e.g. "60s"
}

// RetryPolicy configures automatic retry behavior for transient failures.
type RetryPolicy struct {
	MaxAttempts       int               `yaml:"maxAttempts" json:"maxAttempts"`
	BackoffSeconds    int               `yaml:"backoffSeconds" json:"backoffSeconds"`
	BackoffMultiplier float64           `yaml:"backoffMultiplier,omitempty" json:"backoffMultiplier,omitempty"`
	RetryableFailures []FailureCategory `yaml:"retryableFailures,omitempty" json:"retryableFailures,omitempty"`
}

// HotStoreConfig holds Postgres connection settings for the hot store.
type HotStoreConfig struct {
	DSN      string `yaml:"dsn" json:"-"`
	MaxConns int32  `yaml:"maxConns,omitempty" json:"maxConns,omitempty"`
}

// ColdStoreConfig holds S3 settings for the cold partition store.
type ColdStoreConfig struct {
	Bucket      string `yaml:"bucket" json:"bucket"`
	Prefix      string `yaml:"prefix,omitempty" json:"prefix,omitempty"` // default "timeseries"
	Region      string `yaml:"region" json:"region"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"` // for local stacks
	Compression string `yaml:"compression,omitempty" json:"compression,omitempty"` // "zstd" (default) or "snappy"
}

// StateStoreConfig holds DynamoDB connection and table settings for cursors,
// continuations, and locks.
type StateStoreConfig struct {
	TableName string `yaml:"tableName" json:"tableName"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// SyncConfig tunes the incremental sync orchestrator.
type SyncConfig struct {
	Sites            []string `yaml:"sites,omitempty" json:"sites,omitempty"` // empty = discover
	LookbackSeconds  int      `yaml:"lookbackSeconds,omitempty" json:"lookbackSeconds,omitempty"`
	FirstRunLookback string   `yaml:"firstRunLookback,omitempty" json:"firstRunLookback,omitempty"` // e.g. "24h"
	MaxWindowMinutes int      `yaml:"maxWindowMinutes,omitempty" json:"maxWindowMinutes,omitempty"`
	MaxSitesPerRun   int      `yaml:"maxSitesPerRun,omitempty" json:"maxSitesPerRun,omitempty"`
	TargetLagSeconds int      `yaml:"targetLagSeconds,omitempty" json:"targetLagSeconds,omitempty"`
	UrgentLag        string   `yaml:"urgentLag,omitempty" json:"urgentLag,omitempty"` // e.g. "15m"
	MaxCycles        int      `yaml:"maxCycles,omitempty" json:"maxCycles,omitempty"`
	Budget           string   `yaml:"budget,omitempty" json:"budget,omitempty"` // wall clock, e.g. "90s"
	LockTTL          string   `yaml:"lockTtl,omitempty" json:"lockTtl,omitempty"`
}

// BackfillConfig tunes the resumable historical backfill engine.
type BackfillConfig struct {
	PagesPerInvocation int    `yaml:"pagesPerInvocation,omitempty" json:"pagesPerInvocation,omitempty"`
	PageSize           int    `yaml:"pageSize,omitempty" json:"pageSize,omitempty"`
	LockTTL            string `yaml:"lockTtl,omitempty" json:"lockTtl,omitempty"`
}

// ArchiveConfig tunes the hot-to-cold archival engine.
type ArchiveConfig struct {
	RetentionDays       int    `yaml:"retentionDays,omitempty" json:"retentionDays,omitempty"`
	MaxPartitionsPerRun int    `yaml:"maxPartitionsPerRun,omitempty" json:"maxPartitionsPerRun,omitempty"`
	UploadAttempts      int    `yaml:"uploadAttempts,omitempty" json:"uploadAttempts,omitempty"`
	Concurrency         int    `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	LockTTL             string `yaml:"lockTtl,omitempty" json:"lockTtl,omitempty"`
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type     AlertType `yaml:"type" json:"type"`
	URL      string    `yaml:"url,omitempty" json:"url,omitempty"`
	TopicARN string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Endpoint   string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"` // OTLP gRPC host:port
	Insecure   bool    `yaml:"insecure,omitempty" json:"insecure,omitempty"`
	SampleRate float64 `yaml:"sampleRate,omitempty" json:"sampleRate,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty" json:"maxRequestBody,omitempty"`
}

// ProjectConfig represents the top-level siphon.yaml configuration.
type ProjectConfig struct {
	API       *APIConfig        `yaml:"api"`
	HotStore  *HotStoreConfig   `yaml:"hotStore"`
	ColdStore *ColdStoreConfig  `yaml:"coldStore"`
	State     *StateStoreConfig `yaml:"state"`
	Server    *ServerConfig     `yaml:"server,omitempty"`
	Sync      *SyncConfig       `yaml:"sync,omitempty"`
	Backfill  *BackfillConfig   `yaml:"backfill,omitempty"`
	Archive   *ArchiveConfig    `yaml:"archive,omitempty"`
	Retry     *RetryPolicy      `yaml:"retry,omitempty"`
	Alerts    []AlertConfig     `yaml:"alerts,omitempty"`
	Tracing   *TracingConfig    `yaml:"tracing,omitempty"`
}
