package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/aevon-lab/rules-engine/internal/binding"
	corecfg "github.com/aevon-lab/rules-engine/internal/core/config"
	"github.com/aevon-lab/rules-engine/internal/core/storage"
	"github.com/aevon-lab/rules-engine/internal/core/storage/postgres"
	"github.com/aevon-lab/rules-engine/internal/core/timeseries"
	"github.com/aevon-lab/rules-engine/internal/execution"
	"github.com/aevon-lab/rules-engine/internal/ingestion"
	"github.com/aevon-lab/rules-engine/internal/migrations"
	"github.com/aevon-lab/rules-engine/internal/projection"
	"github.com/aevon-lab/rules-engine/internal/server"
)

func main() {
	configPath := flag.String("config", "rules.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"mode", cfg.Execution.Mode,
		"source", cfg.Execution.Source,
		"rules", len(cfg.RuleLoading.Rules),
		"globals", len(cfg.RuleLoading.Globals),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Rules engine stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *corecfg.Config) error {
	// 2. Initialize Storage (PostgreSQL)
	var (
		db        *sql.DB
		telemetry storage.TelemetryStore
		actors    storage.ActorStore
	)
	if cfg.Database.Enabled {
		var err error
		db, err = postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer db.Close()

		// 2.1. Run Database Migrations
		if err := migrations.RunMigrations(db, cfg.Database.AutoMigrate); err != nil {
			return fmt.Errorf("run database migrations: %w", err)
		}
		if err := postgres.ValidateSchema(ctx, db); err != nil {
			return err
		}
		telemetry = postgres.NewTelemetryAdapter(db, cfg.Database.PageSize)
		actors = postgres.NewActorStateAdapter(db)
	}

	// 3. Bind rules to the twin graph
	models, err := binding.LoadModelService(cfg.Rules.TwinsPath)
	if err != nil {
		return fmt.Errorf("load twins: %w", err)
	}
	resolver, err := binding.NewResolver(models, binding.Options{
		Hops:        cfg.Binding.Hops,
		Top:         cfg.Binding.Top,
		Concurrency: cfg.Binding.Concurrency,
	}, cfg.RuleLoading.Globals)
	if err != nil {
		return fmt.Errorf("create resolver: %w", err)
	}
	instances, graph, err := resolver.Generate(ctx, cfg.RuleLoading.Rules, models.CalculatedPoints())
	if err != nil {
		return fmt.Errorf("generate rule instances: %w", err)
	}

	// 4. Initialize time series and the scheduler
	mgr := timeseries.NewManager(timeseries.ManagerOptions{
		MaxCount:         cfg.Buffer.MaxCount,
		Compression:      cfg.Buffer.Compression,
		ApplyCompression: cfg.Buffer.ApplyCompression,
	})
	for _, twin := range models.Twins() {
		mgr.Register(twin.Metadata())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := execution.NewMetrics(reg)

	store := execution.NewStore()
	processor := execution.NewProcessor(instances, graph, mgr, store, metrics, execution.Options{
		WorkerCount: cfg.Execution.WorkerCount,
		QueueSize:   cfg.Execution.QueueSize,
		MaxAge:      cfg.Buffer.MaxAgeDuration(),
		LimitsEvery: cfg.Execution.LimitsPeriod(),
	})

	if actors != nil {
		states, err := actors.LoadActors(ctx)
		if err != nil {
			return fmt.Errorf("load actors: %w", err)
		}
		slog.Info("Restored actors", "loaded", len(states), "restored", processor.Restore(states))
	}

	var source execution.PointSource = telemetry
	if cfg.Execution.Source == corecfg.SourceCSV {
		source = execution.CSVPoints{Path: cfg.Execution.CSVPath}
	}

	start, end, err := cfg.Execution.Window()
	if err != nil {
		return err
	}

	// 5. Start Services
	flushCtx, stopFlush := context.WithCancel(context.Background())
	defer stopFlush()
	var flushes errgroup.Group
	if actors != nil {
		flusher := execution.NewFlushScheduler(cfg.Execution.FlushEvery(), store, actors, cfg.Execution.FlushBatchSize, metrics)
		flushes.Go(func() error { return flusher.Start(flushCtx) })
	}
	// The flusher outlives the run so its final drain sees every actor.
	defer func() {
		stopFlush()
		if err := flushes.Wait(); err != nil {
			slog.Error("Flush scheduler stopped with error", "error", err)
		}
	}()

	if cfg.Execution.Mode == corecfg.ModeBatch || !start.IsZero() {
		res, err := processor.RunBatch(ctx, execution.Request{
			RuleID: cfg.Execution.RuleID,
			Start:  start,
			End:    end,
		}, source)
		if err != nil {
			return fmt.Errorf("batch run: %w", err)
		}
		slog.Info("Replay finished", "succeeded", res.Succeeded, "failed", res.Failed, "skipped", res.Skipped)
	}
	if cfg.Execution.Mode == corecfg.ModeBatch {
		return nil
	}

	feed := make(chan execution.Point, cfg.Execution.FeedSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := processor.RunRealtime(gctx, feed)
		return err
	})

	if cfg.Server.Enabled {
		srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), healthChecker(db), cfg.Server.Mode, reg)
		if telemetry != nil {
			ingestion.NewService(telemetry, feed, cfg.Server.MaxBodySizeMB).RegisterRoutes(srv.Engine)
		}
		var history projection.HistoryReader
		if actors != nil {
			history = actors
		}
		projection.NewService(store, mgr, history).RegisterRoutes(srv.Engine)

		// HTTP server blocks until ctx is cancelled.
		g.Go(func() error { return srv.Run(gctx) })
	}

	return g.Wait()
}

// healthChecker keeps a nil *sql.DB from becoming a non-nil interface.
func healthChecker(db *sql.DB) server.HealthChecker {
	if db == nil {
		return nil
	}
	return db
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
