// soundloc: acoustic source localization daemon
// Processes recorded microphone-array cycles into candidate source points
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/config"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/doa"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/geometry"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/health"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/localize"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/server"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/signalstore"
)

var (
	version     = "1.0.0"
	configPath  = flag.String("config", "/etc/soundloc/config.yaml", "config file path")
	showVersion = flag.Bool("version", false, "print version and exit")
	debug       = flag.Bool("debug", false, "enable debug logging")
	useMock     = flag.Bool("mock", false, "use mock direction estimator (for testing)")
	serve       = flag.Bool("serve", false, "start the HTTP server instead of a one-shot sweep")
	sourceFlag  = flag.String("source", "", "process a single source (S1 or S2) and exit")
	cycleFlag   = flag.Int("cycle", 0, "cycle index used with -source")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("soundloc %s\n", version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
		cfg = config.Default()
	}

	// Override log level if debug flag is set
	if *debug {
		cfg.Logging.Level = "debug"
	}

	// Setup logging
	logger := setupLogger(cfg.Logging)

	logger.Info("starting soundloc",
		"version", version,
		"config", *configPath,
		"store", cfg.Store.Filepath,
	)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the direction estimator
	var localizer doa.Localizer

	if *useMock {
		logger.Info("using mock direction estimator")
		localizer = doa.NewMock(0, 0, cfg.DOA.NumSources)
	} else {
		localizer, err = doa.New(doa.Config{
			Algorithm:   cfg.DOA.Algorithm,
			NumSources:  cfg.DOA.NumSources,
			SampleRate:  cfg.DOA.SampleRate,
			FFTSize:     cfg.DOA.FFTSize,
			SoundSpeed:  cfg.DOA.SoundSpeed,
			FreqRangeHz: [2]float64{cfg.DOA.FreqRangeHz[0], cfg.DOA.FreqRangeHz[1]},
		})
		if err != nil {
			logger.Error("failed to initialize direction estimator", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("direction estimator ready",
		"algorithm", cfg.DOA.Algorithm,
		"num_sources", cfg.DOA.NumSources,
	)

	// Assemble the pipeline: store -> generator -> scheduler
	store := signalstore.NewFileStore(cfg.Store.Filepath)

	radii := geometry.RadiusGrid(cfg.Search.RadiusMax, cfg.Search.Tolerance)
	gen, err := localize.NewGenerator(localizer, radii, cfg.DOA.NumSources)
	if err != nil {
		logger.Error("failed to create estimate generator", "error", err)
		os.Exit(1)
	}

	sched, err := localize.NewScheduler(gen, localize.SchedulerConfig{
		CombinationSize:   cfg.Search.CombinationSize,
		Workers:           cfg.Search.Workers,
		SkipFailedSubsets: cfg.Search.SkipFailedSubsets,
	}, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	pipeline, err := localize.NewPipeline(store, sched, cfg.Store.Recovered, logger)
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	// One-shot modes
	if !*serve {
		if *sourceFlag != "" {
			est, err := pipeline.ProcessSource(ctx, *sourceFlag, *cycleFlag)
			if err != nil {
				logger.Error("cycle failed", "source", *sourceFlag, "cycle", *cycleFlag, "error", err)
				os.Exit(1)
			}
			lo, hi := bounds(est)
			logger.Info("cycle complete",
				"cycle", est.Name,
				"points", est.PointCount(),
				"min", lo,
				"max", hi,
			)
			return
		}

		if err := pipeline.Run(ctx); err != nil {
			logger.Error("sweep failed", "error", err)
			os.Exit(1)
		}
		stats := pipeline.Stats()
		logger.Info("sweep complete",
			"cycles", stats.CyclesProcessed,
			"points", stats.PointsTotal,
			"skipped_subsets", stats.SkippedSubsets,
		)
		return
	}

	// Daemon mode
	checker := health.NewChecker(version)
	checker.SetComponent(health.ComponentSignalStore, storeReachable(store, cfg.Store.Recovered), "")
	checker.SetComponent(health.ComponentDOA, true, cfg.DOA.Algorithm)
	checker.SetComponent(health.ComponentPipeline, true, "")

	srv := server.New(cfg.Server, pipeline, checker, logger, version)

	// Start WebSocket hub in background
	go srv.WSHub().Run(ctx)

	// Start server in background
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Print startup info
	printStartupBanner(cfg, version)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		cfg.Server.GracefulTimeout,
	)
	defer shutdownCancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	logger.Info("soundloc stopped")
}

// bounds returns the axis-aligned bounding box of the candidate cloud.
func bounds(est localize.CycleEstimate) (lo, hi [3]float64) {
	if est.Points == nil {
		return lo, hi
	}
	rows, _ := est.Points.Dims()
	for i := 0; i < rows; i++ {
		for d := 0; d < 3; d++ {
			v := est.Points.At(i, d)
			if i == 0 || v < lo[d] {
				lo[d] = v
			}
			if i == 0 || v > hi[d] {
				hi[d] = v
			}
		}
	}
	return lo, hi
}

// storeReachable probes the store with the first cycle key.
func storeReachable(store signalstore.Store, recovered bool) bool {
	key, err := signalstore.ResolveKey("S1", 0, recovered)
	if err != nil {
		return false
	}
	_, err = store.LoadMatrix(key)
	return err == nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func printStartupBanner(cfg *config.Config, version string) {
	fmt.Println()
	fmt.Println("soundloc v" + version)
	fmt.Println()
	fmt.Printf("Running at http://0.0.0.0:%d\n", cfg.Server.Port)
	fmt.Println()
	fmt.Println("   Endpoints:")
	fmt.Println("   GET  /health                      - Health check")
	fmt.Println("   POST /api/localize/run            - Start a full sweep")
	fmt.Println("   GET  /api/localize/:source/:cycle - Localize one cycle")
	fmt.Println("   WS   /api/localize/stream         - Real-time estimate stream")
	fmt.Println("   GET  /api/stats                   - Pipeline statistics")
	fmt.Println("   GET  /metrics                     - Prometheus metrics")
	fmt.Println()
	fmt.Println("   Press Ctrl+C to stop")
	fmt.Println()
}
