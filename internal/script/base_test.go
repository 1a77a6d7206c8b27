package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/modscript/internal/core/ecs"
	"github.com/l1jgo/modscript/internal/core/event"
)

const entity = ecs.EntityID(7)

func startRecorder(t *testing.T, api *testAPI, scope Scope) (*Instance, *recorder) {
	t.Helper()
	rec := &recorder{}
	inst := newInstance("core:recorder", "core", rec, zaptest.NewLogger(t))
	ctx := &Context{API: api, Scope: scope, Params: Params{}}
	require.NoError(t, inst.Initialize(ctx))
	require.NoError(t, inst.RegisterEventHandlers(ctx))
	assert.Equal(t, StateActive, inst.State())
	return inst, rec
}

func TestInstance_UnloadDisposesEveryHandler(t *testing.T) {
	api := newTestAPI()
	inst, rec := startRecorder(t, api, EntityScope{ID: entity})

	api.bus.Publish(event.Custom{Kind: "ping"})
	api.bus.Publish(event.Tick{Number: 1})
	assert.Equal(t, []string{"ping", "tick"}, rec.events)
	assert.Equal(t, 2, inst.Base().Subscriptions())

	inst.Unload()
	inst.Unload()

	assert.Equal(t, 0, api.bus.Publish(event.Custom{Kind: "ping"}))
	assert.Equal(t, 0, api.bus.Publish(event.Tick{Number: 2}))
	assert.Len(t, rec.events, 2)
	assert.Equal(t, 1, rec.unloaded)
	assert.Equal(t, StateUnloaded, inst.State())
	assert.ErrorIs(t, inst.Initialize(&Context{API: api, Scope: GlobalScope{}}), ErrInvalidOperation)
}

func TestInstance_UnloadDuringDispatch(t *testing.T) {
	api := newTestAPI()
	_, firstRec := startRecorder(t, api, GlobalScope{})

	var second *Instance
	api.bus.SubscribeName("ping", func(event.Event) { second.Unload() })
	second, secondRec := startRecorder(t, api, GlobalScope{})

	api.bus.Publish(event.Custom{Kind: "ping"})
	assert.Equal(t, []string{"ping"}, firstRec.events)
	assert.Empty(t, secondRec.events)
}

func TestBase_RequireEntity(t *testing.T) {
	api := newTestAPI()
	_, global := startRecorder(t, api, GlobalScope{})
	_, err := global.RequireEntity()
	assert.ErrorIs(t, err, ErrInvalidOperation)
	_, err = global.OnEntity("ping", func(event.Event) {})
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, bound := startRecorder(t, api, EntityScope{ID: entity})
	id, err := bound.RequireEntity()
	require.NoError(t, err)
	assert.Equal(t, entity, id)
}

func TestBase_OnEntityFiltersByEntity(t *testing.T) {
	api := newTestAPI()
	_, rec := startRecorder(t, api, EntityScope{ID: entity})

	var got []ecs.EntityID
	_, err := rec.OnEntity("poke", func(ev event.Event) {
		id, _ := ev.Entity()
		got = append(got, id)
	})
	require.NoError(t, err)

	api.bus.Publish(event.Custom{Kind: "poke", Target: event.Target{EntityID: 99}})
	api.bus.Publish(event.Custom{Kind: "poke"})
	api.bus.Publish(event.Custom{Kind: "poke", Target: event.Target{EntityID: entity}})
	assert.Equal(t, []ecs.EntityID{entity}, got)
}

func TestBase_StateIsNamespaced(t *testing.T) {
	api := newTestAPI()
	_, rec := startRecorder(t, api, EntityScope{ID: entity})

	require.NoError(t, SetState(&rec.Base, "visits", int64(3)))
	assert.Equal(t, int64(3), GetState(&rec.Base, "visits", int64(0)))
	assert.Equal(t, "fallback", GetState(&rec.Base, "visits", "fallback"))
	assert.Equal(t, int64(9), GetState(&rec.Base, "missing", int64(9)))

	v, ok := api.EntityVars(entity).Get("core:recorder:visits")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.V)
	assert.Equal(t, 0, api.global.Len())

	assert.ErrorIs(t, rec.Set("bad", []int{1}), ErrInvalidArgument)

	_, plugin := startRecorder(t, api, GlobalScope{})
	require.NoError(t, plugin.Set("visits", int64(1)))
	_, ok = api.global.Get("core:recorder:visits")
	assert.True(t, ok)
}

func TestBase_Timers(t *testing.T) {
	api := newTestAPI()
	scope := EntityScope{ID: entity}
	_, rec := startRecorder(t, api, scope)

	assert.ErrorIs(t, rec.StartTimer("patrol", 0, false), ErrInvalidArgument)
	require.NoError(t, rec.StartTimer("patrol", 1.0, false))
	assert.True(t, rec.HasTimer("patrol"))
	assert.True(t, api.Timers(scope).Has("core:recorder", "patrol"))

	assert.ErrorIs(t, rec.UpdateTimer("nope", 2), ErrTimerNotFound)
	rec.CancelTimer("nope")
	rec.CancelTimer("patrol")
	assert.False(t, rec.HasTimer("patrol"))
}

func TestBase_RandomTimerRange(t *testing.T) {
	api := newTestAPI()
	_, rec := startRecorder(t, api, GlobalScope{})

	for range 2000 {
		d, err := rec.StartRandomTimer("wander", 1.0, 2.0, false)
		require.NoError(t, err)
		require.GreaterOrEqual(t, d, 1.0)
		require.Less(t, d, 2.0)
	}
	_, err := rec.StartRandomTimer("wander", 2.0, 1.0, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = rec.StartRandomTimer("fixed", 1.5, 1.5, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, rec.HasTimer("fixed"))
}

func TestBase_OnTimerOnlySeesOwnTimers(t *testing.T) {
	api := newTestAPI()
	scope := EntityScope{ID: entity}
	_, rec := startRecorder(t, api, scope)

	var fired []string
	rec.OnTimer(func(ev event.TimerElapsed) { fired = append(fired, ev.TimerID) })

	require.NoError(t, rec.StartTimer("mine", 1, false))
	require.NoError(t, api.Timers(scope).Start("core:someone_else", "theirs", 1, false))
	require.NoError(t, api.Timers(EntityScope{ID: 99}).Start("core:recorder", "other_entity", 1, false))

	api.advance(scope, 1)
	api.advance(EntityScope{ID: 99}, 1)
	assert.Equal(t, []string{"mine"}, fired)
}

func TestBase_EmitQueuesScopedCustomEvent(t *testing.T) {
	api := newTestAPI()
	_, rec := startRecorder(t, api, EntityScope{ID: entity})

	var got event.Custom
	api.bus.SubscribeName("alarm", func(ev event.Event) { got = ev.(event.Custom) })

	require.NoError(t, rec.Emit("alarm", map[string]any{"level": 2}))
	assert.Empty(t, got.Kind)

	api.bus.SwapBuffers()
	api.bus.DispatchAll()
	assert.Equal(t, "alarm", got.Kind)
	assert.Equal(t, entity, got.EntityID)
	assert.Equal(t, "core:recorder", got.Source)

	assert.ErrorIs(t, rec.Emit(event.NameTick, nil), ErrInvalidArgument)
}
