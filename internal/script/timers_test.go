package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerSet_StartValidatesDuration(t *testing.T) {
	s := NewTimerSet()

	assert.ErrorIs(t, s.Start("core:guard", "patrol", 0, false), ErrInvalidArgument)
	assert.ErrorIs(t, s.Start("core:guard", "patrol", -1, false), ErrInvalidArgument)
	assert.False(t, s.Has("core:guard", "patrol"))

	require.NoError(t, s.Start("core:guard", "patrol", 1.0, false))
	assert.True(t, s.Has("core:guard", "patrol"))
	assert.False(t, s.Has("core:other", "patrol"))
}

func TestTimerSet_AdvanceFiresAndRemovesOneShots(t *testing.T) {
	s := NewTimerSet()
	require.NoError(t, s.Start("a", "once", 1.0, false))
	require.NoError(t, s.Start("a", "loop", 0.5, true))

	var fired []string
	fire := func(tm Timer) { fired = append(fired, tm.ID) }

	assert.Equal(t, 0, s.Advance(0.4, fire))
	assert.Equal(t, 1, s.Advance(0.2, fire))
	assert.Equal(t, []string{"loop"}, fired)

	fired = nil
	assert.Equal(t, 2, s.Advance(0.4, fire))
	assert.Equal(t, []string{"loop", "once"}, fired)
	assert.False(t, s.Has("a", "once"))
	assert.True(t, s.Has("a", "loop"))
}

func TestTimerSet_HandlerMayRestartOneShot(t *testing.T) {
	s := NewTimerSet()
	require.NoError(t, s.Start("a", "again", 1.0, false))

	s.Advance(1.0, func(tm Timer) {
		require.NoError(t, s.Start(tm.Owner, tm.ID, 2.0, false))
	})

	tm, ok := s.Get("a", "again")
	require.True(t, ok)
	assert.Equal(t, 2.0, tm.Duration)
	assert.Zero(t, tm.Elapsed)
}

func TestTimerSet_UpdateAndCancel(t *testing.T) {
	s := NewTimerSet()

	assert.ErrorIs(t, s.Update("a", "missing", 1), ErrTimerNotFound)
	assert.False(t, s.Cancel("a", "missing"))

	require.NoError(t, s.Start("a", "t", 1, false))
	s.Advance(0.5, func(Timer) {})
	require.NoError(t, s.Update("a", "t", 3))
	tm, _ := s.Get("a", "t")
	assert.Equal(t, 3.0, tm.Duration)
	assert.Equal(t, 0.5, tm.Elapsed)

	assert.ErrorIs(t, s.Update("a", "t", 0), ErrInvalidArgument)
	assert.True(t, s.Cancel("a", "t"))
	assert.Equal(t, 0, s.Len())
}

func TestTimerSet_CancelOwner(t *testing.T) {
	s := NewTimerSet()
	require.NoError(t, s.Start("a", "x", 1, false))
	require.NoError(t, s.Start("a", "y", 1, false))
	require.NoError(t, s.Start("b", "x", 1, false))

	assert.Equal(t, 2, s.CancelOwner("a"))
	assert.True(t, s.Has("b", "x"))
}
