package system

import (
	"time"

	"github.com/l1jgo/modscript/internal/core/event"
	coresys "github.com/l1jgo/modscript/internal/core/system"
)

// TimerHost advances script timers and publishes the ones that fire.
type TimerHost interface {
	Bus() *event.Bus
	AdvanceTimers(dt float64) int
}

// ScriptSystem drives scripts: one Tick event per tick, then timers.
// Phase 1 (Update).
type ScriptSystem struct {
	host    TimerHost
	tick    uint64
	elapsed float64
	fired   uint64
}

func NewScriptSystem(host TimerHost) *ScriptSystem {
	return &ScriptSystem{host: host}
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ScriptSystem) Update(dt time.Duration) {
	sec := dt.Seconds()
	s.tick++
	s.elapsed += sec
	s.host.Bus().Publish(event.Tick{Number: s.tick, Delta: sec, Elapsed: s.elapsed})
	s.fired += uint64(s.host.AdvanceTimers(sec))
}

// TimersFired returns the total number of timer firings so far.
func (s *ScriptSystem) TimersFired() uint64 { return s.fired }
