package system

import (
	"time"

	"github.com/l1jgo/modscript/internal/core/ecs"
	coresys "github.com/l1jgo/modscript/internal/core/system"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end.
// Destroy hooks unload each entity's scripts before its components go.
// Phase 4 (Cleanup).
type CleanupSystem struct {
	world *ecs.World
}

func NewCleanupSystem(world *ecs.World) *CleanupSystem {
	return &CleanupSystem{world: world}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.world.FlushDestroyQueue()
}
