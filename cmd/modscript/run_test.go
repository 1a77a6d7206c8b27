package main

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/modscript/internal/config"
	"github.com/l1jgo/modscript/internal/core/event"
	"github.com/l1jgo/modscript/internal/persist"
	"github.com/l1jgo/modscript/internal/system"
	"github.com/l1jgo/modscript/internal/vars"
	"github.com/l1jgo/modscript/internal/world"
)

type memSaver struct {
	mu     sync.Mutex
	scopes map[string]map[string]vars.Value
}

func (m *memSaver) SaveScope(_ context.Context, scope string, values map[string]vars.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scopes == nil {
		m.scopes = make(map[string]map[string]vars.Value)
	}
	m.scopes[scope] = values
	return nil
}

// Variables written by unload hooks must reach the final save.
func TestShutdown_SavesAfterUnload(t *testing.T) {
	cfg, err := config.Load("../../config/modscript.toml")
	require.NoError(t, err)
	cfg.Mods.Root = "../../mods"
	cfg.Mods.TempDir = t.TempDir()
	log := zaptest.NewLogger(t)

	reg, loader, _, err := preloadMods(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	t.Cleanup(loader.Shutdown)

	ws := world.NewState(event.NewBus(), loader, 7, log)
	require.NoError(t, loader.InitializePluginScripts(ws))
	_, err = spawnEntities(context.Background(), ws, "../../data/spawns.yaml", log)
	require.NoError(t, err)

	saver := &memSaver{}
	shutdown(ws, loader, system.NewPersistenceSystem(ws, saver, log, 1), log)

	assert.Equal(t, vars.Bool(true), saver.scopes[persist.GlobalScope]["core:plugins/clock.lua:stopped"])
	gate := saver.scopes[persist.EntityScope("north-gate")]
	require.NotNil(t, gate)
	assert.Equal(t, vars.Bool(false), gate["core:guard:on_duty"])
	assert.Empty(t, loader.PluginInstances("core"))
}
