package hotstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitals-systems/siphon/pkg/types"
)

func TestDedupeSamples_LastValueWins(t *testing.T) {
	samples := []types.Sample{
		{Site: "a", PointName: "temp", Timestamp: 1000, Value: 20.0},
		{Site: "a", PointName: "temp", Timestamp: 2000, Value: 21.0},
		{Site: "a", PointName: "temp", Timestamp: 1000, Value: 20.5},
	}

	unique := dedupeSamples(samples)
	require.Len(t, unique, 2)

	// First-seen order preserved, last value wins.
	assert.Equal(t, int64(1000), unique[0].Timestamp)
	assert.Equal(t, 20.5, unique[0].Value)
	assert.Equal(t, int64(2000), unique[1].Timestamp)
	assert.Equal(t, 21.0, unique[1].Value)
}

func TestDedupeSamples_DistinctKeysUntouched(t *testing.T) {
	samples := []types.Sample{
		{Site: "a", PointName: "temp", Timestamp: 1000, Value: 1},
		{Site: "b", PointName: "temp", Timestamp: 1000, Value: 2},
		{Site: "a", PointName: "rh", Timestamp: 1000, Value: 3},
		{Site: "a", PointName: "temp", Timestamp: 1001, Value: 4},
	}

	unique := dedupeSamples(samples)
	assert.Len(t, unique, 4)
}

func TestDedupeSamples_Empty(t *testing.T) {
	assert.Empty(t, dedupeSamples(nil))
}

func TestDayBoundsMs(t *testing.T) {
	start, end, err := dayBoundsMs("2025-10-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1759276800000), start)
	assert.Equal(t, int64(1759363200000), end)
	assert.Equal(t, int64(24*60*60*1000), end-start)
}

func TestDayBoundsMs_BadDay(t *testing.T) {
	_, _, err := dayBoundsMs("10/01/2025")
	assert.Error(t, err)
}
