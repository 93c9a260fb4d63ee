package dynamo

import "time"

// PK/SK prefix constants.
const (
	prefixSite = "SITE#"
	prefixLock = "LOCK#"
	prefixRun  = "RUN#"

	pkRotation = "ROTATION"
	pkArchive  = "ARCHIVE"

	skSync     = "SYNC"
	skBackfill = "BACKFILL"
	skLock     = "LOCK"
	skCursor   = "CURSOR"
)

func sitePK(site string) string        { return prefixSite + site }
func lockPK(key string) string         { return prefixLock + key }
func archiveRunSK(runID string) string { return prefixRun + runID }

func syncSK() string     { return skSync }
func backfillSK() string { return skBackfill }
func lockSK() string     { return skLock }

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}

func isExpired(epoch int64) bool {
	return epoch > 0 && time.Now().Unix() > epoch
}
