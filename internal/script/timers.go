package script

import (
	"fmt"
	"math"
	"sort"
)

// Timer counts elapsed simulation seconds towards Duration.
type Timer struct {
	Key       string // namespaced "{owner}:{id}"
	Owner     string
	ID        string
	Duration  float64
	Elapsed   float64
	Repeating bool
}

// TimerSet holds the timers of one scope (an entity, or the global plugin
// scope). Owned by the simulation goroutine.
type TimerSet struct {
	timers map[string]*Timer
}

func NewTimerSet() *TimerSet {
	return &TimerSet{timers: make(map[string]*Timer)}
}

func timerKey(owner, id string) string { return owner + ":" + id }

// Start creates or restarts a timer. duration is in seconds and must be > 0.
func (s *TimerSet) Start(owner, id string, duration float64, repeating bool) error {
	if !(duration > 0) {
		return fmt.Errorf("%w: timer %q duration must be > 0, got %v", ErrInvalidArgument, id, duration)
	}
	if id == "" {
		return fmt.Errorf("%w: empty timer id", ErrInvalidArgument)
	}
	key := timerKey(owner, id)
	s.timers[key] = &Timer{Key: key, Owner: owner, ID: id, Duration: duration, Repeating: repeating}
	return nil
}

// Update changes the duration of a running timer, keeping its elapsed time.
func (s *TimerSet) Update(owner, id string, duration float64) error {
	t, ok := s.timers[timerKey(owner, id)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTimerNotFound, id)
	}
	if !(duration > 0) {
		return fmt.Errorf("%w: timer %q duration must be > 0, got %v", ErrInvalidArgument, id, duration)
	}
	t.Duration = duration
	return nil
}

// Cancel removes a timer. Missing timers are ignored.
func (s *TimerSet) Cancel(owner, id string) bool {
	key := timerKey(owner, id)
	if _, ok := s.timers[key]; !ok {
		return false
	}
	delete(s.timers, key)
	return true
}

func (s *TimerSet) Has(owner, id string) bool {
	_, ok := s.timers[timerKey(owner, id)]
	return ok
}

// Get returns a copy of the timer.
func (s *TimerSet) Get(owner, id string) (Timer, bool) {
	t, ok := s.timers[timerKey(owner, id)]
	if !ok {
		return Timer{}, false
	}
	return *t, true
}

func (s *TimerSet) Len() int { return len(s.timers) }

// CancelOwner removes every timer started by owner.
func (s *TimerSet) CancelOwner(owner string) int {
	n := 0
	for key, t := range s.timers {
		if t.Owner == owner {
			delete(s.timers, key)
			n++
		}
	}
	return n
}

// Advance adds dt seconds to every timer and calls fire once for each timer
// that reached its duration, in key order. One-shot timers are removed before
// fire runs, so a handler may restart them.
func (s *TimerSet) Advance(dt float64, fire func(Timer)) int {
	var due []Timer
	for key, t := range s.timers {
		t.Elapsed += dt
		if t.Elapsed < t.Duration {
			continue
		}
		if t.Repeating {
			t.Elapsed = math.Mod(t.Elapsed, t.Duration)
		} else {
			delete(s.timers, key)
		}
		due = append(due, *t)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Key < due[j].Key })
	for _, t := range due {
		fire(t)
	}
	return len(due)
}
