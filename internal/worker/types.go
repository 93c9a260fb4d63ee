package worker

import (
	"github.com/vitals-systems/siphon/internal/backfill"
	"github.com/vitals-systems/siphon/pkg/types"
)

// SyncRequest is the input to the sync worker. Scheduled invocations send
// an empty object; site selection comes from configuration and freshness.
type SyncRequest struct{}

// SyncResponse is the output of the sync worker.
type SyncResponse struct {
	Report *types.SyncRunReport `json:"report"`
}

// BackfillRequest is the input to the backfill worker.
type BackfillRequest = backfill.Request

// BackfillResponse is the output of the backfill worker. A batch that
// failed mid-way reports the failure in Error with the partial Result
// alongside; the Lambda runtime drops the payload when the handler itself
// errors, so in-band reporting is the only way the state machine sees how
// far the batch got.
type BackfillResponse struct {
	Result *backfill.Result `json:"result"`
	Error  string           `json:"error,omitempty"`
}

// ArchiveRequest is the input to the archive worker. Scheduled invocations
// send an empty object.
type ArchiveRequest struct{}

// ArchiveResponse is the output of the archive worker.
type ArchiveResponse struct {
	Metrics *types.ArchiveRunMetrics `json:"metrics"`
}
