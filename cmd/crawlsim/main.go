// Package main provides the balance simulator: concurrent bots playing
// dungeon runs against the configured store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crawl/internal/config"
	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/dice"
	"github.com/cory-johannsen/crawl/internal/game/dungeon"
	"github.com/cory-johannsen/crawl/internal/observability"
	"github.com/cory-johannsen/crawl/internal/scripting"
	"github.com/cory-johannsen/crawl/internal/server"
	"github.com/cory-johannsen/crawl/internal/sim"
	"github.com/cory-johannsen/crawl/internal/storage/memory"
	"github.com/cory-johannsen/crawl/internal/storage/postgres"
)

// store is what both storage drivers provide to the simulator.
type store interface {
	dungeon.Transactor
	sim.Store
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "crawlsim")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat, err := catalog.LoadDir(cfg.Content.Dir)
	if err != nil {
		logger.Fatal("loading content", zap.Error(err))
	}
	counts := cat.Counts()
	logger.Info("content loaded",
		zap.String("dir", cfg.Content.Dir),
		zap.Int("items", counts["items"]),
		zap.Int("monsters", counts["monsters"]),
		zap.Int("dungeons", counts["dungeons"]),
		zap.Int("skills", counts["skills"]),
		zap.Int("events", counts["events"]),
	)

	seed := cfg.Simulation.Seed
	if seed == 0 {
		if seed, err = dice.NewSeed(); err != nil {
			logger.Fatal("generating seed", zap.Error(err))
		}
	}
	gameRoller := dice.NewLoggedRoller(dice.NewSeededSource(seed), logger)
	botRoller := dice.NewLoggedRoller(dice.NewSeededSource(seed+1), logger)

	lifecycle := server.NewLifecycle(logger)

	var st store
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		st = postgres.NewStore(pool.DB())
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if err := pool.Health(ctx, 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
					}
				}
			},
			StopFn: func() {
				cancel()
				pool.Close()
			},
		})
	default:
		st = memory.New()
	}

	var opts []dungeon.Option
	if cfg.Content.ScriptsDir != "" {
		scripts := scripting.NewManager(gameRoller, logger, scripting.WithInstructionLimit(cfg.Content.InstructionLimit))
		defer scripts.Close()
		n, err := scripts.LoadTree(cfg.Content.ScriptsDir)
		if err != nil {
			logger.Fatal("loading scripts", zap.String("dir", cfg.Content.ScriptsDir), zap.Error(err))
		}
		logger.Info("scripts loaded", zap.String("dir", cfg.Content.ScriptsDir), zap.Int("vms", n))
		opts = append(opts, dungeon.WithScripts(scripts))
	}

	svc := dungeon.NewService(cat, st, gameRoller, logger, opts...)
	simulator := sim.New(svc, cat, st, botRoller, logger, sim.Params{
		Bots:     cfg.Simulation.Bots,
		Runs:     cfg.Simulation.Runs,
		Dungeon:  cfg.Simulation.Dungeon,
		Level:    cfg.Simulation.Level,
		MaxTurns: cfg.Simulation.MaxTurns,
		Scripts:  cfg.Content.ScriptsDir != "",
		Prefix:   fmt.Sprintf("%x-", seed),
	})

	lifecycle.Add("simulation", &server.FuncService{
		StartFn: func() error {
			defer cancel()
			sum, err := simulator.Run(ctx)
			logger.Info("simulation summary",
				zap.Uint64("seed", seed),
				zap.String("dungeon_id", cfg.Simulation.Dungeon),
				zap.Int("runs", sum.Runs),
				zap.Int("completed", sum.Completed),
				zap.Int("fled", sum.Fled),
				zap.Int("defeated", sum.Defeated),
				zap.Int("rooms", sum.Rooms),
				zap.Int("fights", sum.Fights),
				zap.Int("turns", sum.Turns),
				zap.Int("gold", sum.Gold),
				zap.Int("xp", sum.XP),
				zap.Int("max_level", sum.MaxLevel),
				zap.Duration("elapsed", sum.Elapsed),
			)
			if errors.Is(err, sim.ErrStopped) {
				return nil
			}
			return err
		},
		StopFn: simulator.Stop,
	})

	logger.Info("simulator initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("bots", cfg.Simulation.Bots),
		zap.Int("runs", cfg.Simulation.Runs),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("simulation error", zap.Error(err))
	}
}
