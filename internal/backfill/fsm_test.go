package backfill

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vitals-systems/siphon/pkg/types"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to types.BackfillStatus
		want     bool
	}{
		{types.BackfillNotStarted, types.BackfillInProgress, true},
		{types.BackfillInProgress, types.BackfillComplete, true},
		{types.BackfillInProgress, types.BackfillError, true},
		{types.BackfillNotStarted, types.BackfillComplete, false},
		{types.BackfillComplete, types.BackfillInProgress, false},
		{types.BackfillError, types.BackfillInProgress, false},
		{types.BackfillComplete, types.BackfillError, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTransition_RejectsIllegalMove(t *testing.T) {
	st := &types.BackfillState{Status: types.BackfillComplete}
	err := Transition(st, types.BackfillInProgress)
	assert.Error(t, err)
	assert.Equal(t, types.BackfillComplete, st.Status, "status unchanged on rejected transition")
}

func TestTransition_SameStatusIsNoOp(t *testing.T) {
	st := &types.BackfillState{Status: types.BackfillInProgress}
	assert.NoError(t, Transition(st, types.BackfillInProgress))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(types.BackfillNotStarted))
	assert.False(t, IsTerminal(types.BackfillInProgress))
	assert.True(t, IsTerminal(types.BackfillComplete))
	assert.True(t, IsTerminal(types.BackfillError))
}
