package world

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"

	"github.com/l1jgo/modscript/internal/component"
	"github.com/l1jgo/modscript/internal/core/ecs"
	"github.com/l1jgo/modscript/internal/core/event"
	"github.com/l1jgo/modscript/internal/data"
	"github.com/l1jgo/modscript/internal/persist"
	"github.com/l1jgo/modscript/internal/script"
	"github.com/l1jgo/modscript/internal/vars"
)

var (
	ErrDuplicateLabel = errors.New("world: duplicate entity label")
	ErrNoEntity       = errors.New("world: entity not alive")
)

// Attacher binds script definitions to entities.
type Attacher interface {
	AttachScript(api script.API, entity ecs.EntityID, defID string, overrides map[string]any) (*script.Instance, error)
}

// VarsLoader supplies persisted variables by scope name.
type VarsLoader interface {
	LoadScope(ctx context.Context, scope string) (map[string]vars.Value, error)
}

// ScriptAttach names one script to attach on spawn.
type ScriptAttach struct {
	DefID  string
	Params map[string]any
}

// Spawn describes a single entity to create.
type Spawn struct {
	Label   string
	X, Y    int32
	Facing  vars.Direction
	Vars    map[string]vars.Value
	Scripts []ScriptAttach
}

// State is the simulation host. It owns the ECS world and implements
// script.API for every attached behavior.
// Accessed only from the simulation goroutine; no locks needed.
type State struct {
	ecs       *ecs.World
	positions *ecs.PtrComponentStore[component.Position]
	scripted  *ecs.PtrComponentStore[component.Scripted]
	labels    map[string]ecs.EntityID

	bus          *event.Bus
	global       *vars.Store
	globalTimers *script.TimerSet
	rng          *rand.Rand

	scripts Attacher
	saved   VarsLoader
	log     *zap.Logger
}

func NewState(bus *event.Bus, scripts Attacher, seed uint64, log *zap.Logger) *State {
	w := ecs.NewWorld()
	s := &State{
		ecs:          w,
		positions:    ecs.Register(w.Registry(), ecs.NewPtrComponentStore[component.Position]()),
		scripted:     ecs.Register(w.Registry(), ecs.NewPtrComponentStore[component.Scripted]()),
		labels:       make(map[string]ecs.EntityID),
		bus:          bus,
		global:       vars.NewStore(),
		globalTimers: script.NewTimerSet(),
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		scripts:      scripts,
		log:          log,
	}
	w.OnDestroy(s.teardown)
	return s
}

// UseVarsLoader makes Spawn seed entity variables from persisted snapshots.
func (s *State) UseVarsLoader(l VarsLoader) { s.saved = l }

func (s *State) ECS() *ecs.World { return s.ecs }

func (s *State) Bus() *event.Bus         { return s.bus }
func (s *State) GlobalVars() *vars.Store { return s.global }
func (s *State) Rand() *rand.Rand        { return s.rng }

func (s *State) EntityVars(id ecs.EntityID) *vars.Store {
	return s.scriptedOf(id).Vars
}

func (s *State) LookupEntityVars(id ecs.EntityID) (*vars.Store, bool) {
	c, ok := s.scripted.Get(id)
	if !ok {
		return nil, false
	}
	return c.Vars, true
}

func (s *State) Timers(scope script.Scope) *script.TimerSet {
	if e, ok := scope.(script.EntityScope); ok {
		return s.scriptedOf(e.ID).Timers
	}
	return s.globalTimers
}

func (s *State) scriptedOf(id ecs.EntityID) *component.Scripted {
	return s.scripted.GetOrCreate(id, func() *component.Scripted {
		return component.NewScripted("")
	})
}

// Spawn creates an entity, seeds its variables and attaches its scripts.
// A script that fails to attach is logged and reported in the returned error;
// the entity and its other scripts stay in place.
func (s *State) Spawn(ctx context.Context, sp Spawn) (ecs.EntityID, error) {
	if sp.Label == "" {
		return 0, fmt.Errorf("%w: empty label", script.ErrInvalidArgument)
	}
	if _, taken := s.labels[sp.Label]; taken {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateLabel, sp.Label)
	}

	id := s.ecs.CreateEntity()
	s.labels[sp.Label] = id
	s.positions.Set(id, &component.Position{X: sp.X, Y: sp.Y, Facing: sp.Facing})
	c := s.scriptedOf(id)
	c.Label = sp.Label
	for k, v := range sp.Vars {
		c.Vars.Set(k, v)
	}
	if s.saved != nil {
		restored, err := s.saved.LoadScope(ctx, persist.EntityScope(sp.Label))
		if err != nil {
			s.log.Warn("entity vars restore failed", zap.String("label", sp.Label), zap.Error(err))
		}
		for k, v := range restored {
			c.Vars.Set(k, v)
		}
	}
	c.Vars.ClearDirty()

	var errs []error
	for _, a := range sp.Scripts {
		inst, err := s.scripts.AttachScript(s, id, a.DefID, a.Params)
		if err != nil {
			s.log.Error("script attach failed",
				zap.String("label", sp.Label), zap.String("script", a.DefID), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sp.Label, err))
			continue
		}
		c.Instances = append(c.Instances, inst)
	}

	s.bus.Publish(event.EntitySpawned{Target: event.Target{EntityID: id}, Label: sp.Label})
	s.log.Debug("entity spawned", zap.String("label", sp.Label), zap.Int("scripts", len(c.Instances)))
	return id, errors.Join(errs...)
}

// SpawnList spawns every entity of list and returns how many were created.
func (s *State) SpawnList(ctx context.Context, list *data.SpawnList) (int, error) {
	var errs []error
	n := 0
	for _, e := range list.Entries() {
		typed, err := e.TypedVars()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Label, err))
			continue
		}
		attach := make([]ScriptAttach, len(e.Scripts))
		for i, sc := range e.Scripts {
			attach[i] = ScriptAttach{DefID: sc.ID, Params: sc.Params}
		}
		for _, label := range e.Labels() {
			id, err := s.Spawn(ctx, Spawn{
				Label:   label,
				X:       e.X,
				Y:       e.Y,
				Facing:  e.Direction(),
				Vars:    typed,
				Scripts: attach,
			})
			if err != nil {
				errs = append(errs, err)
			}
			if !id.IsZero() {
				n++
			}
		}
	}
	return n, errors.Join(errs...)
}

// Destroy queues id for removal at the end of the tick.
func (s *State) Destroy(id ecs.EntityID) error {
	if !s.ecs.Alive(id) {
		return fmt.Errorf("%w: %d", ErrNoEntity, uint64(id))
	}
	s.ecs.MarkForDestruction(id)
	return nil
}

// teardown unloads an entity's scripts while its components still exist,
// then announces the destruction.
func (s *State) teardown(id ecs.EntityID) {
	c, ok := s.scripted.Get(id)
	if !ok {
		return
	}
	for _, inst := range c.Instances {
		inst.Unload()
	}
	c.Instances = nil
	delete(s.labels, c.Label)
	s.bus.Publish(event.EntityDestroyed{Target: event.Target{EntityID: id}, Label: c.Label})
}

// Move sets an entity's position and facing and publishes EntityMoved.
func (s *State) Move(id ecs.EntityID, x, y int32, facing vars.Direction) error {
	p, ok := s.positions.Get(id)
	if !ok || !s.ecs.Alive(id) {
		return fmt.Errorf("%w: %d", ErrNoEntity, uint64(id))
	}
	ev := event.EntityMoved{
		Target: event.Target{EntityID: id},
		FromX:  p.X,
		FromY:  p.Y,
		ToX:    x,
		ToY:    y,
		Facing: facing.String(),
	}
	p.X, p.Y, p.Facing = x, y, facing
	s.bus.Publish(ev)
	return nil
}

func (s *State) Position(id ecs.EntityID) (component.Position, bool) {
	p, ok := s.positions.Get(id)
	if !ok {
		return component.Position{}, false
	}
	return *p, true
}

// Lookup finds a live entity by spawn label.
func (s *State) Lookup(label string) (ecs.EntityID, bool) {
	id, ok := s.labels[label]
	return id, ok
}

// Instances returns the scripts attached to id.
func (s *State) Instances(id ecs.EntityID) []*script.Instance {
	c, ok := s.scripted.Get(id)
	if !ok {
		return nil
	}
	return c.Instances
}

// EntityCount returns the number of live entities.
func (s *State) EntityCount() int { return s.ecs.Pool().Count() }

// EachScripted visits live entities in ascending id order.
func (s *State) EachScripted(fn func(ecs.EntityID, *component.Scripted)) {
	ids := make([]ecs.EntityID, 0, s.scripted.Len())
	s.scripted.Each(func(id ecs.EntityID, _ *component.Scripted) {
		if s.ecs.Alive(id) {
			ids = append(ids, id)
		}
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c, _ := s.scripted.Get(id)
		fn(id, c)
	}
}

// AdvanceTimers runs global timers, then every entity's timers, publishing
// TimerElapsed for each one that fires. It returns the number fired.
func (s *State) AdvanceTimers(dt float64) int {
	n := s.globalTimers.Advance(dt, func(t script.Timer) {
		s.bus.Publish(event.TimerElapsed{Owner: t.Owner, TimerID: t.ID, Repeating: t.Repeating})
	})
	s.EachScripted(func(id ecs.EntityID, c *component.Scripted) {
		if c.Timers.Len() == 0 {
			return
		}
		target := event.Target{EntityID: id}
		n += c.Timers.Advance(dt, func(t script.Timer) {
			s.bus.Publish(event.TimerElapsed{Target: target, Owner: t.Owner, TimerID: t.ID, Repeating: t.Repeating})
		})
	})
	return n
}

// UnloadAll unloads every entity-bound script. Used on shutdown.
func (s *State) UnloadAll() int {
	n := 0
	s.EachScripted(func(_ ecs.EntityID, c *component.Scripted) {
		for _, inst := range c.Instances {
			inst.Unload()
			n++
		}
		c.Instances = nil
	})
	return n
}
