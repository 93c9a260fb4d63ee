// Package types defines the public domain types for the siphon sensor-data pipeline.
package types

// BackfillStatus represents the lifecycle state of a historical backfill.
type BackfillStatus string

// BackfillStatus values enumerate the backfill lifecycle states.
const (
	BackfillNotStarted BackfillStatus = "not_started"
	BackfillInProgress BackfillStatus = "in_progress"
	BackfillComplete   BackfillStatus = "complete"
	BackfillError      BackfillStatus = "error"
)

// FailureCategory classifies why a fetch or store operation failed.
type FailureCategory string

const (
	FailureTransient FailureCategory = "TRANSIENT"
	FailurePermanent FailureCategory = "PERMANENT"
	FailureTimeout   FailureCategory = "TIMEOUT"
)

// Freshness classifies how far a site's hot data trails the present.
type Freshness string

// Freshness values order sites for sync selection.
const (
	FreshnessFresh   Freshness = "fresh"
	FreshnessLagging Freshness = "lagging"
	FreshnessUrgent  Freshness = "urgent"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertSNS     AlertType = "sns"
)

// AlertLevel is the severity of a dispatched alert.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// TriggerAction selects what a control-surface trigger request should do.
type TriggerAction string

const (
	ActionStart    TriggerAction = "start"
	ActionContinue TriggerAction = "continue"
	ActionReset    TriggerAction = "reset"
)
