package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/l1jgo/modscript/internal/config"
	"github.com/l1jgo/modscript/internal/mod"
	"github.com/l1jgo/modscript/internal/script"
)

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "Compile every script and report diagnostics",
	ArgsUsage: "[mods root]",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "treat missing dependency mods as errors",
		},
	},
	Action: checkAction,
}

func checkAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	if root := cmd.Args().First(); root != "" {
		cfg.Mods.Root = root
	}
	if cmd.Bool("strict") {
		cfg.Scripting.StrictDependencies = true
	}

	reg, loader, report, err := preloadMods(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer reg.Close()
	defer loader.Shutdown()

	if !report.OK() {
		return cli.Exit(fmt.Sprintf("%d script(s) failed to compile", len(report.Failures)), 2)
	}
	return nil
}

// bootstrap loads the config named by --config and builds the logger.
func bootstrap(cmd *cli.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// preloadMods discovers mods under cfg.Mods.Root and compiles every script.
func preloadMods(ctx context.Context, cfg *config.Config, log *zap.Logger) (*mod.Registry, *script.Loader, *script.PreloadReport, error) {
	printSection("Mods")
	reg, err := mod.Discover(cfg.Mods.Root, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("discover mods: %w", err)
	}
	printStat("mods", reg.Count())
	printStat("script definitions", len(reg.IDsByKind(mod.KindScript)))
	fmt.Println()

	printSection("Scripts")
	loader := script.NewLoader(script.LoaderConfig{
		MaxParallelism:     cfg.Scripting.MaxParallelism,
		StrictDependencies: cfg.Scripting.StrictDependencies,
		TempDir:            cfg.Mods.TempDir,
	}, reg, reg, script.NewLuaCompiler(), log)

	report, err := loader.PreloadAllScripts(ctx)
	if err != nil {
		loader.Shutdown()
		reg.Close()
		return nil, nil, nil, fmt.Errorf("preload scripts: %w", err)
	}
	printReport(report)
	fmt.Println()
	return reg, loader, report, nil
}
