package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/l1jgo/modscript/internal/config"
	"github.com/l1jgo/modscript/internal/core/event"
	coresys "github.com/l1jgo/modscript/internal/core/system"
	"github.com/l1jgo/modscript/internal/data"
	"github.com/l1jgo/modscript/internal/persist"
	"github.com/l1jgo/modscript/internal/script"
	"github.com/l1jgo/modscript/internal/system"
	"github.com/l1jgo/modscript/internal/world"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Load mods, spawn entities and run the simulation loop",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "ticks",
			Usage: "stop after this many ticks (0 = until signalled)",
		},
	},
	Action: runAction,
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	if n := cmd.Uint64("ticks"); n > 0 {
		cfg.Simulation.MaxTicks = n
	}

	printBanner(cfg.Server.Name)

	reg, loader, _, err := preloadMods(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer reg.Close()
	defer loader.Shutdown()

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	bus := event.NewBus()
	ws := world.NewState(bus, loader, seed, log)

	runner := coresys.NewRunner()
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(system.NewScriptSystem(ws))
	runner.Register(system.NewCleanupSystem(ws.ECS()))

	var persistSys *system.PersistenceSystem
	if cfg.Database.Enabled {
		db, repo, err := openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := restoreGlobals(ctx, ws, repo); err != nil {
			log.Warn("global vars restore failed", zap.Error(err))
		}
		ws.UseVarsLoader(repo)
		interval := int(cfg.Database.SaveInterval / cfg.Simulation.TickRate)
		persistSys = system.NewPersistenceSystem(ws, repo, log, interval)
		runner.Register(persistSys)
	}

	printSection("World")
	if err := loader.InitializePluginScripts(ws); err != nil {
		log.Warn("some plugin scripts failed to start", zap.Error(err))
	}
	n, err := spawnEntities(ctx, ws, cfg.Simulation.SpawnList, log)
	if err != nil {
		log.Warn("some entities failed to spawn cleanly", zap.Error(err))
	}
	printStat("entities", n)
	printStat("systems", runner.Len())
	fmt.Println()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	ticker := time.NewTicker(cfg.Simulation.TickRate)
	defer ticker.Stop()

	printSection("Running")
	printReady(fmt.Sprintf("simulation loop started (tick: %s, seed: %d)", cfg.Simulation.TickRate, seed))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Simulation.TickRate)
			if limit := cfg.Simulation.MaxTicks; limit > 0 && runner.Ticks() >= limit {
				log.Info("tick limit reached", zap.Uint64("ticks", runner.Ticks()), zap.Duration("simulated", runner.Elapsed()))
				shutdown(ws, loader, persistSys, log)
				return nil
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()), zap.Uint64("ticks", runner.Ticks()))
			shutdown(ws, loader, persistSys, log)
			return nil
		case <-ctx.Done():
			shutdown(ws, loader, persistSys, log)
			return ctx.Err()
		}
	}
}

// shutdown unloads entity and plugin scripts, then saves variables so that
// whatever the unload hooks wrote is persisted.
func shutdown(ws *world.State, loader *script.Loader, persistSys *system.PersistenceSystem, log *zap.Logger) {
	n := ws.UnloadAll()
	loader.Shutdown()
	if persistSys != nil {
		persistSys.SaveAll()
	}
	log.Info("simulation stopped", zap.Int("scripts_unloaded", n))
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*persist.DB, *persist.VarsRepo, error) {
	printSection("Database")
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	printOK("PostgreSQL connected")

	version, err := persist.RunMigrations(ctx, db.Pool)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	printOK(fmt.Sprintf("migrations applied (version %d)", version))
	fmt.Println()
	return db, persist.NewVarsRepo(db), nil
}

func restoreGlobals(ctx context.Context, ws *world.State, repo *persist.VarsRepo) error {
	values, err := repo.LoadScope(ctx, persist.GlobalScope)
	if err != nil {
		return err
	}
	for k, v := range values {
		ws.GlobalVars().Set(k, v)
	}
	ws.GlobalVars().ClearDirty()
	return nil
}

func spawnEntities(ctx context.Context, ws *world.State, path string, log *zap.Logger) (int, error) {
	if path == "" {
		return 0, nil
	}
	list, err := data.LoadSpawnList(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("spawn list not found, world starts empty", zap.String("path", path))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ws.SpawnList(ctx, list)
}
