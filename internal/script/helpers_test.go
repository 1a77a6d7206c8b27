package script

import (
	"math/rand/v2"

	"github.com/l1jgo/modscript/internal/core/ecs"
	"github.com/l1jgo/modscript/internal/core/event"
	"github.com/l1jgo/modscript/internal/vars"
)

// testAPI is a minimal host for running behaviors outside the simulation.
type testAPI struct {
	bus      *event.Bus
	global   *vars.Store
	entities map[ecs.EntityID]*vars.Store
	timers   map[Scope]*TimerSet
	rng      *rand.Rand
}

func newTestAPI() *testAPI {
	return &testAPI{
		bus:      event.NewBus(),
		global:   vars.NewStore(),
		entities: make(map[ecs.EntityID]*vars.Store),
		timers:   make(map[Scope]*TimerSet),
		rng:      rand.New(rand.NewPCG(1, 2)),
	}
}

func (a *testAPI) Bus() *event.Bus         { return a.bus }
func (a *testAPI) GlobalVars() *vars.Store { return a.global }
func (a *testAPI) Rand() *rand.Rand        { return a.rng }

func (a *testAPI) EntityVars(id ecs.EntityID) *vars.Store {
	s, ok := a.entities[id]
	if !ok {
		s = vars.NewStore()
		a.entities[id] = s
	}
	return s
}

func (a *testAPI) LookupEntityVars(id ecs.EntityID) (*vars.Store, bool) {
	s, ok := a.entities[id]
	return s, ok
}

func (a *testAPI) Timers(scope Scope) *TimerSet {
	t, ok := a.timers[scope]
	if !ok {
		t = NewTimerSet()
		a.timers[scope] = t
	}
	return t
}

// advance runs every timer of scope and publishes what fired.
func (a *testAPI) advance(scope Scope, dt float64) int {
	var target event.Target
	if s, ok := scope.(EntityScope); ok {
		target.EntityID = s.ID
	}
	return a.Timers(scope).Advance(dt, func(t Timer) {
		a.bus.Publish(event.TimerElapsed{Target: target, Owner: t.Owner, TimerID: t.ID, Repeating: t.Repeating})
	})
}

// recorder is a native behavior that counts what it receives.
type recorder struct {
	Base
	events   []string
	unloaded int
}

func (r *recorder) RegisterEventHandlers(*Context) error {
	r.On("ping", func(ev event.Event) { r.events = append(r.events, ev.Name()) })
	On(&r.Base, func(ev event.Tick) { r.events = append(r.events, ev.Name()) })
	return nil
}

func (r *recorder) OnUnload() { r.unloaded++ }
