package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/modscript/internal/component"
	"github.com/l1jgo/modscript/internal/core/ecs"
	coresys "github.com/l1jgo/modscript/internal/core/system"
	"github.com/l1jgo/modscript/internal/persist"
	"github.com/l1jgo/modscript/internal/vars"
	"github.com/l1jgo/modscript/internal/world"
)

// VarsSaver stores a variable snapshot under a scope name.
type VarsSaver interface {
	SaveScope(ctx context.Context, scope string, values map[string]vars.Value) error
}

// PersistenceSystem periodically saves script variables: the global store and
// every entity store, keyed by spawn label. Phase 3 (Persist).
type PersistenceSystem struct {
	world     *world.State
	repo      VarsSaver
	log       *zap.Logger
	tickCount int
	interval  int // save every N ticks
}

func NewPersistenceSystem(ws *world.State, repo VarsSaver, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	return &PersistenceSystem{
		world:    ws,
		repo:     repo,
		log:      log,
		interval: max(intervalTicks, 1),
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.save(true)
}

// SaveAll persists every store immediately, ignoring dirty flags.
// Called for graceful shutdown.
func (s *PersistenceSystem) SaveAll() int {
	return s.save(false)
}

func (s *PersistenceSystem) save(dirtyOnly bool) int {
	count := 0
	if s.saveStore(persist.GlobalScope, s.world.GlobalVars(), dirtyOnly) {
		count++
	}
	s.world.EachScripted(func(_ ecs.EntityID, c *component.Scripted) {
		if c.Label == "" {
			return
		}
		if s.saveStore(persist.EntityScope(c.Label), c.Vars, dirtyOnly) {
			count++
		}
	})
	if count > 0 {
		s.log.Debug("script vars saved", zap.Int("scopes", count))
	}
	return count
}

func (s *PersistenceSystem) saveStore(scope string, st *vars.Store, dirtyOnly bool) bool {
	if dirtyOnly && !st.Dirty() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.SaveScope(ctx, scope, st.Snapshot()); err != nil {
		s.log.Error("script vars save failed", zap.String("scope", scope), zap.Error(err))
		return false
	}
	st.ClearDirty()
	return true
}
