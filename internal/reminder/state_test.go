package reminder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmbot/internal/shared"
	"confirmbot/internal/store"
)

func TestOpenState_CreatesDefault(t *testing.T) {
	ms := &memStore{}
	s := openState(t, ms)

	st := s.Snapshot()
	assert.Equal(t, 0, st.Subscribers.Len())
	assert.Nil(t, st.LastFired)
	assert.Equal(t, 25, st.IntervalDays)
	assert.Equal(t, 1, ms.saveCount())
	assert.Equal(t, []string{}, ms.saved().Users)
}

func TestOpenState_RepairsLoadedRecord(t *testing.T) {
	ms := &memStore{rec: &store.Record{Users: []string{"1", "2", "1"}, LastReminder: strPtr("2024-01-01"), IntervalDays: 0}}
	s := openState(t, ms)

	st := s.Snapshot()
	assert.Equal(t, []Identity{"1", "2"}, st.Subscribers.Items())
	assert.Equal(t, 25, st.IntervalDays)
	assert.Equal(t, "2024-01-01", *st.LastFired)

	saved := ms.saved()
	assert.Equal(t, []string{"1", "2"}, saved.Users)
	assert.Equal(t, 25, saved.IntervalDays)
	assert.Equal(t, store.CurrentVersion, saved.Version)
	assert.False(t, s.Dirty())
}

func TestOpenState_KeepsRepairWhenSaveFails(t *testing.T) {
	ms := &memStore{rec: &store.Record{Version: 1, Users: []string{"1", "1"}, IntervalDays: 25}, failing: true}
	s, err := OpenState(context.Background(), ms, StateOptions{DefaultIntervalDays: 25})
	require.NoError(t, err)
	assert.True(t, s.Dirty())
	assert.Equal(t, 1, s.Snapshot().Subscribers.Len())

	ms.setFailing(false)
	require.NoError(t, s.Flush(context.Background()))
	assert.False(t, s.Dirty())
	assert.Equal(t, []string{"1"}, ms.saved().Users)
}

func TestOpenState_LoadErrorIsReturned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminder_data.json")
	require.NoError(t, writeFile(path, `{"users": "nope"}`))
	js, err := store.NewJSONStore(path)
	require.NoError(t, err)

	_, err = OpenState(context.Background(), js, StateOptions{})
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))
}

func TestSharedState_TransactRollsBack(t *testing.T) {
	ms := seeded([]string{"1"}, nil, 25)
	s := openState(t, ms)
	ms.setFailing(true)

	err := s.Transact(context.Background(), func(st *State) bool {
		return st.Subscribers.Add("2")
	})
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, []Identity{"1"}, s.Snapshot().Subscribers.Items())
	assert.False(t, s.Dirty())
}

func TestSharedState_UpdateKeepsDirty(t *testing.T) {
	ms := seeded(nil, nil, 25)
	s := openState(t, ms)
	ms.setFailing(true)

	err := s.Update(context.Background(), func(st *State) bool {
		st.LastFired = strPtr("2024-01-01")
		return true
	})
	require.Error(t, err)
	assert.True(t, s.Dirty())
	assert.Equal(t, "2024-01-01", *s.Snapshot().LastFired)

	// A later successful transaction carries the pending change along.
	ms.setFailing(false)
	require.NoError(t, s.Transact(context.Background(), func(st *State) bool { return st.Subscribers.Add("7") }))
	assert.False(t, s.Dirty())
	saved := ms.saved()
	assert.Equal(t, "2024-01-01", *saved.LastReminder)
	assert.Equal(t, []string{"7"}, saved.Users)
}

func TestSharedState_RoundTripThroughJSONStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminder_data.json")
	js, err := store.NewJSONStore(path)
	require.NoError(t, err)

	s := openState(t, js)
	r := NewRegistry(s, nil)
	for _, id := range []Identity{"3", "1", "2"} {
		_, err := r.Add(context.Background(), id)
		require.NoError(t, err)
	}
	require.NoError(t, s.Update(context.Background(), func(st *State) bool {
		st.LastFired = strPtr("2024-01-26")
		return true
	}))

	reopened := openState(t, js)
	assert.Equal(t, s.Snapshot(), reopened.Snapshot())
}

func TestSet(t *testing.T) {
	s := NewSet("a", "b", "a")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Add("b"))
	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.True(t, s.Add("a"))
	assert.Equal(t, []Identity{"b", "a"}, s.Items())

	c := s.Clone()
	c.Add("z")
	assert.False(t, s.Contains("z"))

	var zero Set
	assert.False(t, zero.Contains("a"))
	assert.True(t, zero.Add("a"))
}
