package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/modscript/internal/core/ecs"
	"github.com/l1jgo/modscript/internal/core/event"
	coresys "github.com/l1jgo/modscript/internal/core/system"
	"github.com/l1jgo/modscript/internal/script"
	"github.com/l1jgo/modscript/internal/vars"
	"github.com/l1jgo/modscript/internal/world"
)

type noScripts struct{}

func (noScripts) AttachScript(script.API, ecs.EntityID, string, map[string]any) (*script.Instance, error) {
	return nil, errors.New("no scripts")
}

type savedScope struct {
	scope  string
	values map[string]vars.Value
}

type fakeSaver struct {
	saved []savedScope
	err   error
}

func (f *fakeSaver) SaveScope(_ context.Context, scope string, values map[string]vars.Value) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, savedScope{scope, values})
	return nil
}

func newWorld(t *testing.T) *world.State {
	t.Helper()
	return world.NewState(event.NewBus(), noScripts{}, 1, zap.NewNop())
}

func TestScriptSystem_TickAndTimers(t *testing.T) {
	ws := newWorld(t)
	sys := NewScriptSystem(ws)

	var ticks []event.Tick
	var fired []event.TimerElapsed
	event.Subscribe(ws.Bus(), func(ev event.Tick) { ticks = append(ticks, ev) })
	event.Subscribe(ws.Bus(), func(ev event.TimerElapsed) { fired = append(fired, ev) })
	require.NoError(t, ws.Timers(script.GlobalScope{}).Start("core:plugins/clock.lua", "chime", 0.5, false))

	r := coresys.NewRunner()
	r.Register(sys)
	for range 3 {
		r.Tick(200 * time.Millisecond)
	}

	require.Len(t, ticks, 3)
	assert.Equal(t, uint64(3), ticks[2].Number)
	assert.InDelta(t, 0.6, ticks[2].Elapsed, 1e-9)
	require.Len(t, fired, 1)
	assert.Equal(t, "chime", fired[0].TimerID)
	_, scoped := fired[0].Entity()
	assert.False(t, scoped)
	assert.Equal(t, uint64(1), sys.TimersFired())
}

func TestEventDispatchSystem_DeliversNextTick(t *testing.T) {
	bus := event.NewBus()
	var got []string
	bus.SubscribeName("ping", func(ev event.Event) { got = append(got, ev.Name()) })

	sys := NewEventDispatchSystem(bus)
	bus.Emit(event.Custom{Kind: "ping"})
	assert.Empty(t, got)
	sys.Update(0)
	assert.Equal(t, []string{"ping"}, got)
	sys.Update(0)
	assert.Len(t, got, 1)
}

func TestPersistenceSystem_SavesDirtyOnInterval(t *testing.T) {
	ws := newWorld(t)
	id, err := ws.Spawn(context.Background(), world.Spawn{Label: "crate"})
	require.NoError(t, err)
	saver := &fakeSaver{}
	sys := NewPersistenceSystem(ws, saver, zap.NewNop(), 2)

	ws.GlobalVars().Set("core:plugins/clock.lua:boots", vars.Int(1))
	sys.Update(0)
	assert.Empty(t, saver.saved)
	sys.Update(0)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, "global", saver.saved[0].scope)
	assert.False(t, ws.GlobalVars().Dirty())

	ws.EntityVars(id).Set("core:guard:pokes", vars.Int(2))
	sys.Update(0)
	sys.Update(0)
	require.Len(t, saver.saved, 2)
	assert.Equal(t, "entity:crate", saver.saved[1].scope)
	assert.Equal(t, vars.Int(2), saver.saved[1].values["core:guard:pokes"])

	assert.Equal(t, 2, sys.SaveAll())
}

func TestPersistenceSystem_FailedSaveStaysDirty(t *testing.T) {
	ws := newWorld(t)
	saver := &fakeSaver{err: errors.New("db down")}
	sys := NewPersistenceSystem(ws, saver, zap.NewNop(), 1)

	ws.GlobalVars().Set("k", vars.Bool(true))
	sys.Update(0)
	assert.True(t, ws.GlobalVars().Dirty())
}

func TestCleanupSystem_FlushesDestroyQueue(t *testing.T) {
	ws := newWorld(t)
	id, err := ws.Spawn(context.Background(), world.Spawn{Label: "crate"})
	require.NoError(t, err)
	var destroyed int
	event.Subscribe(ws.Bus(), func(event.EntityDestroyed) { destroyed++ })

	require.NoError(t, ws.Destroy(id))
	r := coresys.NewRunner()
	r.Register(NewCleanupSystem(ws.ECS()))
	r.Tick(time.Millisecond)

	assert.Equal(t, 1, destroyed)
	assert.Zero(t, ws.EntityCount())
}
