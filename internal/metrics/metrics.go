// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	APIRequestsTotal    = expvar.NewInt("api_requests_total")
	APIRetriesTotal     = expvar.NewInt("api_retries_total")
	APIPagesFetched     = expvar.NewInt("api_pages_fetched")
	SamplesFetched      = expvar.NewInt("samples_fetched")
	SamplesDropped      = expvar.NewInt("samples_dropped")
	SamplesDeduped      = expvar.NewInt("samples_deduped")
	SamplesWritten      = expvar.NewInt("samples_written")
	SyncRunsTotal       = expvar.NewInt("sync_runs_total")
	SyncSiteFailures    = expvar.NewInt("sync_site_failures")
	CatchUpCycles       = expvar.NewInt("catch_up_cycles")
	LockFailOpens       = expvar.NewInt("lock_fail_opens")
	LockContended       = expvar.NewInt("lock_contended")
	BackfillPages       = expvar.NewInt("backfill_pages")
	BackfillDaysDone    = expvar.NewInt("backfill_days_done")
	BackfillErrors      = expvar.NewInt("backfill_errors")
	PartitionsArchived  = expvar.NewInt("partitions_archived")
	PartitionsSkipped   = expvar.NewInt("partitions_skipped")
	PartitionsFailed    = expvar.NewInt("partitions_failed")
	ArchiveRowsDeleted  = expvar.NewInt("archive_rows_deleted")
	ArchiveVerifyFailed = expvar.NewInt("archive_verify_failed")
	AlertsDispatched    = expvar.NewInt("alerts_dispatched")
	AlertsFailed        = expvar.NewInt("alerts_failed")
)
