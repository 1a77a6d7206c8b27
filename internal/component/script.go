package component

import (
	"github.com/l1jgo/modscript/internal/script"
	"github.com/l1jgo/modscript/internal/vars"
)

// Position is an entity's tile position and facing.
type Position struct {
	X, Y   int32
	Facing vars.Direction
}

// Scripted holds the script-facing state of one entity: its spawn label,
// variable store, timers and attached behaviors.
type Scripted struct {
	Label     string
	Vars      *vars.Store
	Timers    *script.TimerSet
	Instances []*script.Instance
}

func NewScripted(label string) *Scripted {
	return &Scripted{Label: label, Vars: vars.NewStore(), Timers: script.NewTimerSet()}
}
