package event

import "github.com/l1jgo/modscript/internal/core/ecs"

// Event is anything published on the Bus. Entity reports the entity the event
// is about, if any; handlers scoped to an entity compare it directly.
type Event interface {
	Name() string
	Entity() (ecs.EntityID, bool)
	Fields() map[string]any
}

// Target is embedded by events to carry their optional entity scope.
// The zero EntityID means the event is not about a specific entity.
type Target struct {
	EntityID ecs.EntityID
}

func (t Target) Entity() (ecs.EntityID, bool) { return t.EntityID, !t.EntityID.IsZero() }

const (
	NameTick            = "tick"
	NameTimerElapsed    = "timer_elapsed"
	NameEntitySpawned   = "entity_spawned"
	NameEntityDestroyed = "entity_destroyed"
	NameEntityMoved     = "entity_moved"
)

// Builtin reports whether name belongs to a host-defined event type.
func Builtin(name string) bool {
	switch name {
	case NameTick, NameTimerElapsed, NameEntitySpawned, NameEntityDestroyed, NameEntityMoved:
		return true
	}
	return false
}

// Tick is published once per simulation tick.
type Tick struct {
	Target
	Number  uint64
	Delta   float64 // seconds
	Elapsed float64 // seconds since start
}

func (Tick) Name() string { return NameTick }
func (e Tick) Fields() map[string]any {
	return map[string]any{"number": e.Number, "delta": e.Delta, "elapsed": e.Elapsed}
}

// TimerElapsed fires when a script timer reaches its duration.
type TimerElapsed struct {
	Target
	Owner     string // script id that started the timer
	TimerID   string
	Repeating bool
}

func (TimerElapsed) Name() string { return NameTimerElapsed }
func (e TimerElapsed) Fields() map[string]any {
	return map[string]any{"entity": e.EntityID, "timer": e.TimerID, "repeating": e.Repeating}
}

// EntitySpawned is published after an entity and its scripts are in place.
type EntitySpawned struct {
	Target
	Label string
}

func (EntitySpawned) Name() string { return NameEntitySpawned }
func (e EntitySpawned) Fields() map[string]any {
	return map[string]any{"entity": e.EntityID, "label": e.Label}
}

// EntityDestroyed is published after the entity's scripts have been unloaded.
type EntityDestroyed struct {
	Target
	Label string
}

func (EntityDestroyed) Name() string { return NameEntityDestroyed }
func (e EntityDestroyed) Fields() map[string]any {
	return map[string]any{"entity": e.EntityID, "label": e.Label}
}

// EntityMoved reports a position or facing change.
type EntityMoved struct {
	Target
	FromX, FromY int32
	ToX, ToY     int32
	Facing       string
}

func (EntityMoved) Name() string { return NameEntityMoved }
func (e EntityMoved) Fields() map[string]any {
	return map[string]any{
		"entity": e.EntityID,
		"from_x": e.FromX, "from_y": e.FromY,
		"to_x": e.ToX, "to_y": e.ToY,
		"facing": e.Facing,
	}
}

// Custom is a script-defined event identified by its Kind.
type Custom struct {
	Target
	Kind   string
	Source string // script id of the publisher
	Data   map[string]any
}

func (e Custom) Name() string { return e.Kind }
func (e Custom) Fields() map[string]any {
	f := make(map[string]any, len(e.Data)+2)
	for k, v := range e.Data {
		f[k] = v
	}
	f["entity"] = e.EntityID
	f["source"] = e.Source
	return f
}
