package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeTyped(t *testing.T) {
	b := NewBus()
	var got []uint64
	Subscribe(b, func(ev Tick) { got = append(got, ev.Number) })

	assert.Equal(t, 1, b.Publish(Tick{Number: 7}))
	assert.Equal(t, 0, b.Publish(EntitySpawned{}), "other event names are not delivered")
	assert.Equal(t, []uint64{7}, got)
}

func TestBus_DisposeStopsDelivery(t *testing.T) {
	b := NewBus()
	calls := 0
	sub := b.SubscribeName(NameTick, func(Event) { calls++ })
	require.Equal(t, 1, b.HandlerCount(NameTick))

	sub.Dispose()
	sub.Dispose()
	assert.False(t, sub.Active())
	assert.Equal(t, 0, b.HandlerCount(NameTick))
	assert.Equal(t, 0, b.Publish(Tick{}))
	assert.Equal(t, 0, calls)
}

func TestBus_DisposeDuringDispatch(t *testing.T) {
	b := NewBus()
	var second *Subscription
	calls := 0
	b.SubscribeName(NameTick, func(Event) { second.Dispose() })
	second = b.SubscribeName(NameTick, func(Event) { calls++ })

	assert.Equal(t, 1, b.Publish(Tick{}), "the disposed handler is skipped in the same dispatch")
	assert.Equal(t, 0, calls)
}

func TestBus_EmitIsDoubleBuffered(t *testing.T) {
	b := NewBus()
	var kinds []string
	b.SubscribeName("ping", func(ev Event) { kinds = append(kinds, ev.Name()) })

	b.Emit(Custom{Kind: "ping"})
	assert.Equal(t, 0, b.DispatchAll(), "nothing is readable before the swap")

	b.SwapBuffers()
	assert.Equal(t, 1, b.DispatchAll())
	assert.Equal(t, []string{"ping"}, kinds)

	b.SwapBuffers()
	assert.Equal(t, 0, b.DispatchAll(), "front is drained after dispatch")
}

func TestTarget_Entity(t *testing.T) {
	_, ok := Tick{}.Entity()
	assert.False(t, ok)

	id, ok := EntityMoved{Target: Target{EntityID: 42}}.Entity()
	assert.True(t, ok)
	assert.EqualValues(t, 42, id)
}

func TestCustom_FieldsCarrySource(t *testing.T) {
	ev := Custom{Kind: "alarm", Source: "core:guard", Data: map[string]any{"level": 3}}
	f := ev.Fields()
	assert.Equal(t, "alarm", ev.Name())
	assert.Equal(t, 3, f["level"])
	assert.Equal(t, "core:guard", f["source"])
	assert.False(t, Builtin("alarm"))
	assert.True(t, Builtin(NameTick))
}
