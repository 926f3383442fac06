package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Paths polled or streamed at high frequency; logging them would drown the
// per-cycle pipeline logs.
var quietPaths = map[string]struct{}{
	"/health":              {},
	"/metrics":             {},
	"/api/localize/stream": {},
}

// LoggingMiddleware logs HTTP requests against the localization API.
func LoggingMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		path := c.Path()
		if _, quiet := quietPaths[path]; quiet {
			return err
		}

		logger.Info("http request",
			"method", c.Method(),
			"path", path,
			"status", c.Response().StatusCode(),
			"bytes", len(c.Response().Body()),
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)

		return err
	}
}
