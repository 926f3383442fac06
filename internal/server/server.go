// Package server provides the HTTP server for soundloc
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Zhouziyuya/Sound-Source-Localization/internal/config"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/errdefs"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/health"
	"github.com/Zhouziyuya/Sound-Source-Localization/internal/localize"
)

// Server is the HTTP server for soundloc
type Server struct {
	app       *fiber.App
	cfg       config.ServerConfig
	pipeline  *localize.Pipeline
	checker   *health.Checker
	logger    *slog.Logger
	wsHub     *WSHub
	startTime time.Time
	version   string

	sweepRunning atomic.Bool
}

// New creates a new HTTP server
func New(cfg config.ServerConfig, pipeline *localize.Pipeline, checker *health.Checker, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "soundloc",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(LoggingMiddleware(logger))

	s := &Server{
		app:       app,
		cfg:       cfg,
		pipeline:  pipeline,
		checker:   checker,
		logger:    logger,
		wsHub:     NewWSHub(pipeline, logger),
		startTime: time.Now(),
		version:   version,
	}

	// Register routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	// Health check
	s.app.Get("/health", s.healthHandler)

	// Metrics endpoint
	s.app.Get("/metrics", s.metricsHandler)

	// Localization API
	api := s.app.Group("/api")

	loc := api.Group("/localize")
	loc.Post("/run", s.runHandler)
	loc.Get("/stream", s.wsHub.UpgradeHandler())
	loc.Get("/:source/:cycle", s.cycleHandler)

	// Config endpoint
	api.Get("/config", s.configHandler)

	// Stats endpoint
	api.Get("/stats", s.statsHandler)
}

// healthHandler returns service health
func (s *Server) healthHandler(c *fiber.Ctx) error {
	if s.checker == nil {
		return c.JSON(fiber.Map{
			"status":         "ok",
			"version":        s.version,
			"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		})
	}

	status := s.checker.GetStatus()

	code := fiber.StatusOK
	if status.Status != "ok" {
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(status)
}

// estimatePayload is the wire shape of a processed cycle.
type estimatePayload struct {
	Name       string      `json:"name"`
	Source     string      `json:"source"`
	Cycle      int         `json:"cycle"`
	Region     string      `json:"region"`
	PointCount int         `json:"point_count"`
	Points     [][]float64 `json:"points"`
}

func toPayload(est localize.CycleEstimate) estimatePayload {
	p := estimatePayload{
		Name:       est.Name,
		Source:     est.Source,
		Cycle:      est.Cycle,
		Region:     est.Region.String(),
		PointCount: est.PointCount(),
	}

	if est.Points != nil {
		rows, cols := est.Points.Dims()
		p.Points = make([][]float64, rows)
		for i := 0; i < rows; i++ {
			row := make([]float64, cols)
			for j := 0; j < cols; j++ {
				row[j] = est.Points.At(i, j)
			}
			p.Points[i] = row
		}
	}

	return p
}

// cycleHandler localizes one recorded cycle on demand
func (s *Server) cycleHandler(c *fiber.Ctx) error {
	if s.pipeline == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "pipeline not available",
		})
	}

	source := c.Params("source")
	cycle, err := strconv.Atoi(c.Params("cycle"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "cycle must be an integer",
		})
	}

	est, err := s.pipeline.ProcessSource(c.Context(), source, cycle)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(toPayload(est))
}

// runHandler starts a full sweep over every source and cycle
func (s *Server) runHandler(c *fiber.Ctx) error {
	if s.pipeline == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "pipeline not available",
		})
	}

	if !s.sweepRunning.CompareAndSwap(false, true) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "sweep already running",
		})
	}

	go func() {
		defer s.sweepRunning.Store(false)

		if err := s.pipeline.Run(context.Background()); err != nil {
			s.logger.Error("sweep failed", "error", err)
			return
		}
		s.logger.Info("sweep complete")
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "started",
	})
}

func (s *Server) errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errdefs.IsNotFound(err):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errdefs.IsValidation(err):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
}

// configHandler returns current configuration
func (s *Server) configHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"server": fiber.Map{
			"port":             s.cfg.Port,
			"read_timeout_ms":  s.cfg.ReadTimeout.Milliseconds(),
			"write_timeout_ms": s.cfg.WriteTimeout.Milliseconds(),
		},
	})
}

// statsHandler returns pipeline statistics
func (s *Server) statsHandler(c *fiber.Ctx) error {
	if s.pipeline == nil {
		return c.Status(503).JSON(fiber.Map{
			"error": "pipeline not available",
		})
	}

	return c.JSON(s.pipeline.Stats())
}

// metricsHandler returns Prometheus-format metrics
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	if s.pipeline == nil {
		return c.Status(503).SendString("# no pipeline available\n")
	}

	stats := s.pipeline.Stats()

	metrics := fmt.Sprintf(`# HELP soundloc_cycles_processed Total processed cycles
# TYPE soundloc_cycles_processed counter
soundloc_cycles_processed %d

# HELP soundloc_cycle_errors Total cycle processing errors
# TYPE soundloc_cycle_errors counter
soundloc_cycle_errors %d

# HELP soundloc_points_total Total candidate points produced
# TYPE soundloc_points_total counter
soundloc_points_total %d

# HELP soundloc_avg_cycle_ms Average cycle processing time in milliseconds
# TYPE soundloc_avg_cycle_ms gauge
soundloc_avg_cycle_ms %f

# HELP soundloc_skipped_subsets Total microphone subsets skipped on failure
# TYPE soundloc_skipped_subsets counter
soundloc_skipped_subsets %d

# HELP soundloc_uptime_seconds Server uptime in seconds
# TYPE soundloc_uptime_seconds gauge
soundloc_uptime_seconds %d

# HELP soundloc_websocket_clients Current WebSocket client count
# TYPE soundloc_websocket_clients gauge
soundloc_websocket_clients %d
`,
		stats.CyclesProcessed,
		stats.CycleErrors,
		stats.PointsTotal,
		stats.AvgCycleMs,
		stats.SkippedSubsets,
		int64(time.Since(s.startTime).Seconds()),
		s.wsHub.ClientCount(),
	)

	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(metrics)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		"port", s.cfg.Port,
	)

	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.Port))
}

// WSHub returns the WebSocket hub for external control
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close WebSocket hub
	s.wsHub.Close()

	// Shutdown Fiber with timeout from context
	done := make(chan error, 1)
	go func() {
		done <- s.app.Shutdown()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
