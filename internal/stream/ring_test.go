package stream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingNeverExceedsCapacity(t *testing.T) {
	r := NewRing(5)

	for i := 1; i <= 17; i++ {
		r.Push(LogEvent{ID: int64(i)})
		assert.LessOrEqual(t, r.Len(), 5)
	}
	assert.Equal(t, 5, r.Len())
}

func TestRingEvictsOldestFirst(t *testing.T) {
	r := NewRing(3)

	for i := 1; i <= 4; i++ {
		r.Push(LogEvent{ID: int64(i), Payload: fmt.Sprintf("msg-%d", i)})
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	// After N+1 inserts the oldest entry is absent and the newest present.
	assert.Equal(t, int64(2), snap[0].ID)
	assert.Equal(t, int64(4), snap[2].ID)
	for _, ev := range snap {
		assert.NotEqual(t, int64(1), ev.ID)
	}
}

func TestRingSnapshotBeforeFull(t *testing.T) {
	r := NewRing(10)
	r.Push(LogEvent{ID: 1})
	r.Push(LogEvent{ID: 2})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(1), snap[0].ID)
	assert.Equal(t, int64(2), snap[1].ID)
}
