package server

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
)

// pathRecorder is a slog.Handler collecting the "path" attr of each record.
type pathRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (h *pathRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *pathRecorder) Handle(_ context.Context, r slog.Record) error {
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "path" {
			h.mu.Lock()
			h.paths = append(h.paths, a.Value.String())
			h.mu.Unlock()
		}
		return true
	})
	return nil
}

func (h *pathRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *pathRecorder) WithGroup(string) slog.Handler      { return h }

func (h *pathRecorder) logged() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

func TestLoggingMiddleware_QuietPaths(t *testing.T) {
	recorder := &pathRecorder{}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(LoggingMiddleware(slog.New(recorder)))

	ok := func(c *fiber.Ctx) error { return c.SendString("ok") }
	app.Get("/health", ok)
	app.Get("/metrics", ok)
	app.Get("/api/localize/stream", ok)
	app.Get("/api/stats", ok)

	for _, path := range []string{"/health", "/metrics", "/api/localize/stream", "/api/stats"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		if err != nil {
			t.Fatalf("request %s failed: %v", path, err)
		}
		resp.Body.Close()
	}

	logged := recorder.logged()
	if len(logged) != 1 {
		t.Fatalf("expected 1 logged request, got %d: %v", len(logged), logged)
	}
	if logged[0] != "/api/stats" {
		t.Errorf("expected /api/stats to be logged, got %s", logged[0])
	}
}
