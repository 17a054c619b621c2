package reminder

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmbot/internal/shared"
)

func TestRegistry_AddRemove(t *testing.T) {
	ctx := context.Background()
	ms := seeded(nil, nil, 25)
	r := NewRegistry(openState(t, ms), nil)
	base := ms.saveCount()

	res, err := r.Add(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, Added, res)
	assert.Equal(t, base+1, ms.saveCount())

	res, err = r.Add(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, AlreadyPresent, res)
	assert.Equal(t, base+1, ms.saveCount(), "no save when already present")

	assert.True(t, r.Contains("42"))
	assert.Equal(t, 1, r.Count())

	rres, err := r.Remove(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, Removed, rres)
	assert.Equal(t, base+2, ms.saveCount())

	rres, err = r.Remove(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, NotPresent, rres)
	assert.Equal(t, base+2, ms.saveCount(), "no save when not present")
	assert.Empty(t, ms.saved().Users)
}

func TestRegistry_RejectsEmptyIdentity(t *testing.T) {
	r := NewRegistry(openState(t, &memStore{}), nil)

	_, err := r.Add(context.Background(), "")
	assert.True(t, shared.IsValidation(err))
	_, err = r.Remove(context.Background(), "")
	assert.True(t, shared.IsValidation(err))
}

func TestRegistry_SaveFailureRollsBack(t *testing.T) {
	ms := seeded([]string{"1"}, nil, 25)
	r := NewRegistry(openState(t, ms), nil)
	ms.setFailing(true)

	_, err := r.Add(context.Background(), "2")
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))
	assert.False(t, r.Contains("2"))

	_, err = r.Remove(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, r.Contains("1"))
}

// Any sequence of adds and removes ends in the set obtained by applying them in order.
func TestRegistry_MatchesSetModel(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	ids := []Identity{"a", "b", "c", "d"}

	for round := 0; round < 20; round++ {
		ms := &memStore{}
		r := NewRegistry(openState(t, ms), nil)
		model := map[Identity]bool{}

		for step := 0; step < 50; step++ {
			id := ids[rng.Intn(len(ids))]
			if rng.Intn(2) == 0 {
				res, err := r.Add(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, model[id], res == AlreadyPresent)
				model[id] = true
			} else {
				res, err := r.Remove(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, !model[id], res == NotPresent)
				delete(model, id)
			}
		}

		assert.Equal(t, len(model), r.Count())
		for id := range model {
			assert.True(t, r.Contains(id))
		}
		saved := ms.saved().Users
		assert.Len(t, saved, len(model))
		for _, u := range saved {
			assert.True(t, model[Identity(u)])
		}
	}
}

func TestRegistry_ConcurrentAdds(t *testing.T) {
	ms := &memStore{}
	r := NewRegistry(openState(t, ms), nil)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for _, id := range []Identity{"1", "2", "3"} {
				_, _ = r.Add(context.Background(), id)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, 3, r.Count())
	assert.Len(t, ms.saved().Users, 3)
}
