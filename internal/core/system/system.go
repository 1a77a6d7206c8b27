package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhasePreUpdate  Phase = iota // 0: deliver last tick's queued events
	PhaseUpdate                  // 1: script ticks and timers
	PhasePostUpdate              // 2: spawns and movement bookkeeping
	PhasePersist                 // 3: variable snapshots
	PhaseCleanup                 // 4: destroy queued entities
)

// System is the interface every simulation system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
