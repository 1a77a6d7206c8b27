package script

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"
)

// TempTracker remembers files extracted on behalf of a mod so they can be
// removed when the mod unloads or the process exits.
type TempTracker struct {
	mu    sync.Mutex
	paths map[string][]string
	log   *zap.Logger
}

func NewTempTracker(log *zap.Logger) *TempTracker {
	return &TempTracker{paths: make(map[string][]string), log: log}
}

func (t *TempTracker) Track(modID, path string) {
	t.mu.Lock()
	t.paths[modID] = append(t.paths[modID], path)
	t.mu.Unlock()
}

// Tracked returns the paths currently tracked for modID.
func (t *TempTracker) Tracked(modID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.paths[modID]...)
}

// Cleanup deletes every file tracked for modID. Failures are logged only.
func (t *TempTracker) Cleanup(modID string) {
	t.mu.Lock()
	paths := t.paths[modID]
	delete(t.paths, modID)
	t.mu.Unlock()
	t.remove(modID, paths)
}

func (t *TempTracker) CleanupAll() {
	t.mu.Lock()
	all := t.paths
	t.paths = make(map[string][]string)
	t.mu.Unlock()
	for modID, paths := range all {
		t.remove(modID, paths)
	}
}

func (t *TempTracker) remove(modID string, paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.log.Warn("temp file cleanup failed", zap.String("mod", modID), zap.String("path", p), zap.Error(err))
		}
	}
}
