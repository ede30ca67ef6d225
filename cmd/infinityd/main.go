package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/l1jgo/infinity/internal/component"
	"github.com/l1jgo/infinity/internal/config"
	"github.com/l1jgo/infinity/internal/core/ecs"
	"github.com/l1jgo/infinity/internal/core/engine"
	"github.com/l1jgo/infinity/internal/core/event"
	"github.com/l1jgo/infinity/internal/data"
	"github.com/l1jgo/infinity/internal/persist"
	"github.com/l1jgo/infinity/internal/scripting"
	"github.com/l1jgo/infinity/internal/system"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// reportEvery is how many ticks pass between progress log lines.
const reportEvery = 200

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if stop := startProfile(cfg.Debug); stop != nil {
		defer stop.Stop()
	}

	printBanner(cfg.Engine.Name)

	// 3. Components and world
	printSection("World")
	reg := ecs.NewRegistry()
	comps, err := component.Register(reg)
	if err != nil {
		return err
	}
	w := ecs.NewWorld(reg, ecs.WithBucketSize(cfg.Engine.BucketSize))
	eng := engine.New(w,
		engine.WithLogger(log),
		engine.WithWorkers(cfg.Engine.Workers),
		engine.WithValidation(cfg.Debug.ValidateLattice),
	)
	defer eng.Close()
	printStat("component kinds", reg.Types().Len())
	printStat("arena bucket size", cfg.Engine.BucketSize)

	// 4. Systems, built-in then scripted
	printSection("Systems")
	builtin, err := system.Install(eng, comps, system.Options{
		Bounds:        cfg.Systems.Bounds,
		RegenInterval: cfg.Systems.RegenInterval,
		RegenAmount:   cfg.Systems.RegenAmount,
	})
	if err != nil {
		return err
	}
	builtinCount := eng.Runner().Len()
	printStat("built-in systems", builtinCount)

	if cfg.Scripting.Enabled {
		scripts, err := scripting.NewEngine(cfg.Scripting.Dir, reg, log)
		if err != nil {
			return fmt.Errorf("load scripts: %w", err)
		}
		defer scripts.Close()
		if err := scripts.Install(eng); err != nil {
			return err
		}
		printStat("scripted systems", len(scripts.Systems()))
	}
	for _, t := range eng.Runner().Tasks() {
		log.Debug("scheduled system",
			zap.String("system", t.Name),
			zap.Stringer("phase", t.Phase),
			zap.Stringer("query", t.Query),
			zap.Strings("depends_on", t.DependsOn))
	}

	// 5. Scene
	if cfg.Scene.Path != "" {
		printSection("Scene")
		scene, err := data.LoadScene(cfg.Scene.Path)
		if err != nil {
			return fmt.Errorf("load scene: %w", err)
		}
		n, err := data.Spawn(w, scene)
		if err != nil {
			return fmt.Errorf("spawn scene %s: %w", cfg.Scene.Path, err)
		}
		printStat("entities", n)
		printStat("archetypes", w.Archetypes())
	}

	// 6. Optional telemetry sink
	var recorder *persist.Recorder
	if cfg.Database.Enabled {
		printSection("Telemetry")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			cancel()
			return err
		}
		defer db.Close()
		version, err := persist.RunMigrations(ctx, db.Pool)
		cancel()
		if err != nil {
			return err
		}
		recorder = persist.NewRecorder(persist.NewTickRepo(db), cfg.Database.FlushEvery, log)
		printOK(fmt.Sprintf("schema version %d, run %s", version, recorder.Run()))
	}

	var churn int
	event.Subscribe(eng.Bus(), func(event.ArchetypeAdded) { churn++ })
	event.Subscribe(eng.Bus(), func(event.ArchetypeRemoved) { churn++ })

	// 7. Tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Engine.TickRate)
	defer ticker.Stop()

	printSection("Running")
	printReady(fmt.Sprintf("tick loop started (tick: %s, workers: %d)", cfg.Engine.TickRate, cfg.Engine.Workers))
	fmt.Println()

	ctx := context.Background()
	last := time.Now()
	var loopErr error
loop:
	for {
		select {
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			stats, err := eng.Tick(ctx, dt)
			if recorder != nil {
				recorder.Record(stats, err != nil)
			}
			if err != nil {
				loopErr = err
				break loop
			}
			if stats.Tick%reportEvery == 0 {
				frame := builtin.Render.Last()
				log.Info("tick",
					zap.Uint64("tick", stats.Tick),
					zap.Duration("took", stats.Duration),
					zap.Int("entities", stats.Entities),
					zap.Int("archetypes", stats.Archetypes),
					zap.Int("visible", frame.Visible),
					zap.Int("killed", builtin.Damage.Killed()),
					zap.Int("archetype_churn", churn))
			}
			if cfg.Engine.MaxTicks > 0 && stats.Tick >= cfg.Engine.MaxTicks {
				log.Info("tick limit reached", zap.Uint64("max_ticks", cfg.Engine.MaxTicks))
				break loop
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			break loop
		}
	}

	// 8. Shutdown
	if recorder != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := recorder.Close(flushCtx); err != nil {
			log.Warn("telemetry flush incomplete", zap.Error(err))
		}
		cancel()
		log.Info("telemetry flushed",
			zap.Int64("written", recorder.Written()),
			zap.Int64("dropped", recorder.Dropped()))
	}
	if cfg.Debug.DumpPath != "" {
		if err := dumpLattice(cfg.Debug.DumpPath, w, eng.Ticks()); err != nil {
			loopErr = errors.Join(loopErr, err)
		} else {
			log.Info("lattice dumped", zap.String("path", cfg.Debug.DumpPath))
		}
	}
	log.Info("engine stopped", zap.Uint64("ticks", eng.Ticks()), zap.Int("entities", w.Len()))
	return loopErr
}

// startProfile starts pkg/profile for [debug].profile, or returns nil.
func startProfile(cfg config.DebugConfig) interface{ Stop() } {
	var mode func(*profile.Profile)
	switch cfg.Profile {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfileAllocs
	default:
		return nil
	}
	return profile.Start(mode, profile.ProfilePath(cfg.ProfilePath), profile.NoShutdownHook, profile.Quiet)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
