package script

import (
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/l1jgo/modscript/internal/core/ecs"
	"github.com/l1jgo/modscript/internal/core/event"
	"github.com/l1jgo/modscript/internal/vars"
)

// Scope is either EntityScope or GlobalScope.
type Scope interface {
	isScope()
	String() string
}

// EntityScope binds a script to one entity.
type EntityScope struct{ ID ecs.EntityID }

// GlobalScope is the scope of plugin scripts.
type GlobalScope struct{}

func (EntityScope) isScope() {}
func (GlobalScope) isScope() {}

func (s EntityScope) String() string { return fmt.Sprintf("entity(%d)", uint64(s.ID)) }
func (GlobalScope) String() string   { return "global" }

// API is what the host simulation provides to running scripts.
type API interface {
	Bus() *event.Bus
	GlobalVars() *vars.Store
	// EntityVars returns the entity's store, creating it if needed.
	EntityVars(id ecs.EntityID) *vars.Store
	LookupEntityVars(id ecs.EntityID) (*vars.Store, bool)
	Timers(scope Scope) *TimerSet
	Rand() *rand.Rand
}

// Context is handed to lifecycle hooks.
type Context struct {
	API      API
	Scope    Scope
	ScriptID string
	ModID    string
	Params   Params
	Log      *zap.Logger
}

// Entity returns the bound entity for entity-scoped contexts.
func (c *Context) Entity() (ecs.EntityID, bool) {
	if s, ok := c.Scope.(EntityScope); ok {
		return s.ID, true
	}
	return 0, false
}

// Base carries the runtime facilities of a behavior. Embed it by value.
type Base struct {
	scriptID string
	api      API
	scope    Scope
	params   Params
	log      *zap.Logger
	subs     []*event.Subscription
}

func (b *Base) ScriptBase() *Base { return b }

func (b *Base) Initialize(*Context) error            { return nil }
func (b *Base) RegisterEventHandlers(*Context) error { return nil }
func (b *Base) OnUnload()                            {}

func (b *Base) bind(ctx *Context) {
	b.scriptID = ctx.ScriptID
	b.api = ctx.API
	b.scope = ctx.Scope
	b.params = ctx.Params
	b.log = ctx.Log
	if b.log == nil {
		b.log = zap.NewNop()
	}
}

func (b *Base) ScriptID() string { return b.scriptID }
func (b *Base) Scope() Scope     { return b.scope }
func (b *Base) Log() *zap.Logger {
	if b.log == nil {
		return zap.NewNop()
	}
	return b.log
}

// RequireEntity returns the bound entity, or ErrInvalidOperation for plugin
// scripts.
func (b *Base) RequireEntity() (ecs.EntityID, error) {
	if s, ok := b.scope.(EntityScope); ok {
		return s.ID, nil
	}
	return 0, fmt.Errorf("%w: %s requires an entity but runs in %v scope", ErrInvalidOperation, b.scriptID, b.scope)
}

// On subscribes fn to every event named name. The subscription lives until
// the script unloads.
func (b *Base) On(name string, fn event.Handler) *event.Subscription {
	s := b.api.Bus().SubscribeName(name, fn)
	b.subs = append(b.subs, s)
	return s
}

// OnEntity subscribes fn to events about this script's entity only.
func (b *Base) OnEntity(name string, fn event.Handler) (*event.Subscription, error) {
	self, err := b.RequireEntity()
	if err != nil {
		return nil, err
	}
	return b.On(name, func(ev event.Event) {
		if id, ok := ev.Entity(); ok && id == self {
			fn(ev)
		}
	}), nil
}

// OnTimer subscribes fn to timers this script started in its own scope.
func (b *Base) OnTimer(fn func(event.TimerElapsed)) *event.Subscription {
	self, bound := b.scope.(EntityScope)
	return On(b, func(ev event.TimerElapsed) {
		if ev.Owner != b.scriptID {
			return
		}
		id, scoped := ev.Entity()
		if scoped != bound || (bound && id != self.ID) {
			return
		}
		fn(ev)
	})
}

// On subscribes a typed handler on b's bus.
func On[T event.Event](b *Base, fn func(T)) *event.Subscription {
	s := event.Subscribe(b.api.Bus(), fn)
	b.subs = append(b.subs, s)
	return s
}

// Subscriptions returns the number of live subscriptions.
func (b *Base) Subscriptions() int {
	n := 0
	for _, s := range b.subs {
		if s.Active() {
			n++
		}
	}
	return n
}

func (b *Base) disposeSubscriptions() {
	for _, s := range b.subs {
		s.Dispose()
	}
	b.subs = nil
}

// Emit queues a custom event scoped to this script's entity, if any. It is
// delivered on the next dispatch.
func (b *Base) Emit(kind string, data map[string]any) error {
	if kind == "" || event.Builtin(kind) {
		return fmt.Errorf("%w: cannot emit event %q", ErrInvalidArgument, kind)
	}
	ev := event.Custom{Kind: kind, Source: b.scriptID, Data: data}
	if s, ok := b.scope.(EntityScope); ok {
		ev.EntityID = s.ID
	}
	b.api.Bus().Emit(ev)
	return nil
}

func (b *Base) store() *vars.Store {
	if s, ok := b.scope.(EntityScope); ok {
		return b.api.EntityVars(s.ID)
	}
	return b.api.GlobalVars()
}

// StateKey namespaces a persisted state key by script id.
func StateKey(scriptID, key string) string { return scriptID + ":" + key }

// Get reads persisted state.
func (b *Base) Get(key string) (vars.Value, bool) {
	return b.store().Get(StateKey(b.scriptID, key))
}

// Set writes persisted state. v must be a type vars.Of accepts.
func (b *Base) Set(key string, v any) error {
	val, err := vars.Of(v)
	if err != nil {
		return fmt.Errorf("%w: state %q: %v", ErrInvalidArgument, key, err)
	}
	b.store().Set(StateKey(b.scriptID, key), val)
	return nil
}

// Delete removes persisted state.
func (b *Base) Delete(key string) {
	b.store().Delete(StateKey(b.scriptID, key))
}

// GetState reads persisted state as T, returning def when the key is missing
// or holds another type.
func GetState[T any](b *Base, key string, def T) T {
	v, ok := b.Get(key)
	if !ok {
		return def
	}
	if x, ok := v.V.(T); ok {
		return x
	}
	return def
}

func SetState[T any](b *Base, key string, v T) error {
	return b.Set(key, v)
}

func (b *Base) timers() *TimerSet { return b.api.Timers(b.scope) }

// releaseTimers cancels every timer this script still owns in its scope.
func (b *Base) releaseTimers() int {
	if b.api == nil {
		return 0
	}
	return b.timers().CancelOwner(b.scriptID)
}

// StartTimer starts (or restarts) timer id. seconds must be > 0.
func (b *Base) StartTimer(id string, seconds float64, repeating bool) error {
	return b.timers().Start(b.scriptID, id, seconds, repeating)
}

// StartRandomTimer starts id with a duration drawn uniformly from [lo, hi)
// and returns it. Requires 0 < lo < hi.
func (b *Base) StartRandomTimer(id string, lo, hi float64, repeating bool) (float64, error) {
	if !(lo > 0) || !(hi > lo) {
		return 0, fmt.Errorf("%w: random timer %q range [%v, %v)", ErrInvalidArgument, id, lo, hi)
	}
	d := lo + b.api.Rand().Float64()*(hi-lo)
	return d, b.StartTimer(id, d, repeating)
}

func (b *Base) UpdateTimer(id string, seconds float64) error {
	return b.timers().Update(b.scriptID, id, seconds)
}

func (b *Base) CancelTimer(id string) { b.timers().Cancel(b.scriptID, id) }

func (b *Base) HasTimer(id string) bool { return b.timers().Has(b.scriptID, id) }

func (b *Base) Params() Params { return b.params }

func (b *Base) ParamInt(name string, def int64) int64       { return b.params.Int(name, def) }
func (b *Base) ParamFloat(name string, def float64) float64 { return b.params.Float(name, def) }
func (b *Base) ParamBool(name string, def bool) bool        { return b.params.Bool(name, def) }
func (b *Base) ParamString(name string, def string) string  { return b.params.String(name, def) }

func (b *Base) ParamDirection(name string, def vars.Direction) vars.Direction {
	return b.params.Direction(name, def)
}
