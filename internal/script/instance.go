package script

import (
	"fmt"

	"go.uber.org/zap"
)

// LifecycleState tracks where an instance is in its lifecycle.
type LifecycleState uint8

const (
	StateConstructed LifecycleState = iota
	StateInitialized
	StateActive
	StateUnloaded
)

func (s LifecycleState) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	}
	return "unloaded"
}

// Instance is one live behavior. Transitions are driven by the caller; only
// Unload guards against repetition.
type Instance struct {
	id       string
	modID    string
	behavior Behavior
	state    LifecycleState
	log      *zap.Logger
}

func newInstance(id, modID string, b Behavior, log *zap.Logger) *Instance {
	return &Instance{id: id, modID: modID, behavior: b, log: log}
}

// ID is the definition id, or "{modID}:{path}" for plugin scripts.
func (i *Instance) ID() string            { return i.id }
func (i *Instance) ModID() string         { return i.modID }
func (i *Instance) Behavior() Behavior    { return i.behavior }
func (i *Instance) Base() *Base           { return i.behavior.ScriptBase() }
func (i *Instance) State() LifecycleState { return i.state }

// Initialize binds the runtime facilities to ctx and runs the behavior's
// initialize hook.
func (i *Instance) Initialize(ctx *Context) error {
	if i.state == StateUnloaded {
		return fmt.Errorf("%w: %s is unloaded", ErrInvalidOperation, i.id)
	}
	if ctx.ScriptID == "" {
		ctx.ScriptID = i.id
	}
	if ctx.Log == nil {
		ctx.Log = i.log
	}
	i.Base().bind(ctx)
	if err := guard(func() error { return i.behavior.Initialize(ctx) }); err != nil {
		return fmt.Errorf("initialize %s: %w", i.id, err)
	}
	i.state = StateInitialized
	return nil
}

func (i *Instance) RegisterEventHandlers(ctx *Context) error {
	if i.state == StateUnloaded {
		return fmt.Errorf("%w: %s is unloaded", ErrInvalidOperation, i.id)
	}
	if err := guard(func() error { return i.behavior.RegisterEventHandlers(ctx) }); err != nil {
		return fmt.Errorf("register handlers %s: %w", i.id, err)
	}
	i.state = StateActive
	return nil
}

// Unload runs the unload hook, then drops the instance's subscriptions and
// timers. A second call does nothing.
func (i *Instance) Unload() {
	if i.state == StateUnloaded {
		return
	}
	bound := i.state != StateConstructed
	i.state = StateUnloaded
	// An instance that never initialized has no runtime bound; skip its hook.
	if bound {
		if err := guard(func() error { i.behavior.OnUnload(); return nil }); err != nil {
			i.log.Warn("script unload hook failed", zap.String("script", i.id), zap.Error(err))
		}
	}
	i.Base().disposeSubscriptions()
	if bound {
		i.Base().releaseTimers()
	}
	if c, ok := i.behavior.(interface{ Close() }); ok {
		c.Close()
	}
}

// guard converts a panic in script code into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panic: %v", r)
		}
	}()
	return fn()
}
