// Package main runs one scenario headlessly, recording the battle and
// optionally streaming it to spectators.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/scenario"
	"github.com/cory-johannsen/skirmish/internal/observability"
	"github.com/cory-johannsen/skirmish/internal/replay"
	"github.com/cory-johannsen/skirmish/internal/scripting"
	"github.com/cory-johannsen/skirmish/internal/server"
	"github.com/cory-johannsen/skirmish/internal/simulation"
	"github.com/cory-johannsen/skirmish/internal/spectator"
	"github.com/cory-johannsen/skirmish/internal/storage"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
	"github.com/cory-johannsen/skirmish/internal/storage/sqlite"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	scenarioPath := flag.String("scenario", "content/scenarios/skirmish.yaml", "scenario YAML file, or a directory of them")
	scenarioName := flag.String("name", "", "scenario to run when -scenario is a directory")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	scn, err := scenario.Select(*scenarioPath, *scenarioName)
	if err != nil {
		logger.Fatal("loading scenario", zap.Error(err))
	}
	logger.Info("scenario loaded",
		zap.String("name", scn.Name),
		zap.Int("units", len(scn.Units)),
		zap.Int("sides", len(scn.Sides())),
	)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", zap.Error(err))
		}
	}()

	params := combat.Params{
		ReloadTicks:      cfg.Simulation.ReloadTicks,
		ProjectileSpeed:  cfg.Simulation.ProjectileSpeed,
		ArrivalTolerance: cfg.Simulation.ArrivalTolerance,
	}
	battle, err := simulation.NewBattle(scn, simulation.Options{
		Params:   params,
		MaxTicks: uint64(cfg.Simulation.MaxTicks),
	}, logger)
	if err != nil {
		logger.Fatal("creating battle", zap.Error(err))
	}

	scripts := scripting.NewManager(cfg.Simulation.ScriptInstructionLimit, logger)
	defer scripts.Close()
	host := simulation.NewHost(scripts, logger)
	if err := host.Add(battle, scn.Script); err != nil {
		logger.Fatal("loading scenario script", zap.Error(err))
	}
	defer host.Remove(battle)

	var sinks []simulation.FrameSink
	if cfg.Replay.Path != "" {
		w, err := replay.Create(cfg.Replay.Path, replay.Header{
			BattleID: battle.ID().String(),
			Scenario: battle.Scenario(),
			Sides:    battle.Sides(),
		})
		if err != nil {
			logger.Fatal("creating replay", zap.Error(err))
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("closing replay", zap.Error(err))
				return
			}
			logger.Info("replay written",
				zap.String("path", cfg.Replay.Path),
				zap.Int("frames", w.Frames()),
			)
		}()
		sinks = append(sinks, w)
	}

	lifecycle := server.NewLifecycle(logger)

	if cfg.Spectator.Enabled {
		hub := spectator.NewHub(logger.Named("spectator"), cfg.Spectator.WriteTimeout)
		sinks = append(sinks, hub)
		lifecycle.Add("spectator", spectator.NewServer(hub, cfg.Spectator.Addr(), logger.Named("spectator")))
	}

	runner := simulation.NewRunner(battle, cfg.Simulation.TickInterval, store, logger, sinks...)
	lifecycle.Add("battle", runner)

	logger.Info("skirmish initialized",
		zap.String("battle", battle.ID().String()),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("spectator", cfg.Spectator.Enabled),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("battle error", zap.Error(err))
	}

	out := runner.Outcome()
	logger.Info("battle over",
		zap.Bool("decided", out.Decided),
		zap.String("winner", out.Winner),
		zap.Bool("draw", out.Draw),
		zap.Uint64("ticks", out.Ticks),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// openStore returns the battle store selected by cfg.Storage.Driver.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite storage opened", zap.String("path", cfg.Storage.SQLitePath))
		return s, nil
	case config.DriverPostgres:
		if err := postgres.MigrateUp(cfg.Database.DSN()); err != nil {
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Database, logger.Named("postgres"))
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(pool), nil
	default:
		return storage.Nop{}, nil
	}
}
