// Package backfill implements the resumable historical backfill engine: a
// continuation state machine that walks a fixed date range day by day and
// page by page, persisting progress after every page so any invocation can
// be cut off and resumed without losing or re-skipping work.
package backfill

import (
	"fmt"

	"github.com/vitals-systems/siphon/pkg/types"
)

// Transition table: from -> allowed tos. Status only moves forward; the only
// way back is an explicit reset, which deletes the state record entirely.
var validTransitions = map[types.BackfillStatus][]types.BackfillStatus{
	types.BackfillNotStarted: {types.BackfillInProgress},
	types.BackfillInProgress: {types.BackfillComplete, types.BackfillError},
	types.BackfillComplete:   {},
	types.BackfillError:      {},
}

// CanTransition checks whether moving between two backfill statuses is legal.
func CanTransition(from, to types.BackfillStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a status change, returning an error for any move the
// table does not allow.
func Transition(st *types.BackfillState, to types.BackfillStatus) error {
	if st.Status == to {
		return nil
	}
	if !CanTransition(st.Status, to) {
		return fmt.Errorf("invalid backfill transition from %s to %s", st.Status, to)
	}
	st.Status = to
	return nil
}

// IsTerminal reports whether a backfill has reached a final status.
func IsTerminal(status types.BackfillStatus) bool {
	return status == types.BackfillComplete || status == types.BackfillError
}
