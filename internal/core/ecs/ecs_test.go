package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityPool_ReservesZero(t *testing.T) {
	p := NewEntityPool()
	id := p.Create()
	assert.False(t, id.IsZero(), "first entity must not be the zero id")
	assert.Equal(t, uint32(1), id.Index())
	assert.False(t, p.Alive(0), "zero id is never alive")
}

func TestEntityPool_GenerationInvalidatesStaleIDs(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	require.True(t, p.Destroy(a))
	assert.False(t, p.Destroy(a), "second destroy of a stale id is a no-op")

	b := p.Create()
	assert.Equal(t, a.Index(), b.Index(), "index is recycled")
	assert.NotEqual(t, a, b, "generation differs")
	assert.False(t, p.Alive(a))
	assert.True(t, p.Alive(b))
	assert.Equal(t, 1, p.Count())
}

func TestWorld_FlushRunsHooksBeforeRemoval(t *testing.T) {
	w := NewWorld()
	names := Register(w.Registry(), NewPtrComponentStore[string]())

	id := w.CreateEntity()
	name := "npc"
	names.Set(id, &name)

	var seen []string
	w.OnDestroy(func(e EntityID) {
		n, ok := names.Get(e)
		require.True(t, ok, "component must still exist inside the hook")
		seen = append(seen, *n)
	})

	w.MarkForDestruction(id)
	w.MarkForDestruction(id)
	assert.Equal(t, 1, w.FlushDestroyQueue(), "duplicate queue entries destroy once")
	assert.Equal(t, []string{"npc"}, seen)
	assert.False(t, names.Has(id))
	assert.False(t, w.Alive(id))
}

func TestEach2_VisitsIntersection(t *testing.T) {
	a := NewPtrComponentStore[int]()
	b := NewPtrComponentStore[string]()
	one, two := 1, 2
	s := "x"
	a.Set(1, &one)
	a.Set(2, &two)
	b.Set(2, &s)

	var ids []EntityID
	Each2(a, b, func(id EntityID, _ *int, _ *string) { ids = append(ids, id) })
	assert.Equal(t, []EntityID{2}, ids)
}
