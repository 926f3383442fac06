// Package health tracks per-component health for the service surfaces.
package health

import (
	"sync"
	"time"
)

// Component names reported by the localization service.
const (
	ComponentSignalStore = "signal_store"
	ComponentDOA         = "doa"
	ComponentPipeline    = "pipeline"
)

// Status is the aggregate health report served at /health.
type Status struct {
	Status        string           `json:"status"` // ok or degraded
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Components    map[string]Check `json:"components"`
	// Failing lists the unhealthy component names, empty when ok.
	Failing []string `json:"failing,omitempty"`
}

// Check is one component's latest observation.
type Check struct {
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// Checker aggregates component checks into a service status.
type Checker struct {
	mu         sync.RWMutex
	version    string
	startTime  time.Time
	components map[string]Check
}

// NewChecker creates a checker with no components registered.
func NewChecker(version string) *Checker {
	return &Checker{
		version:    version,
		startTime:  time.Now(),
		components: make(map[string]Check),
	}
}

// SetComponent records a component observation, stamping it with the
// current time.
func (c *Checker) SetComponent(name string, healthy bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = Check{
		Healthy:   healthy,
		Message:   message,
		LastCheck: time.Now(),
	}
}

// GetStatus returns the aggregate status. Any unhealthy component degrades
// the whole service and appears in Failing.
func (c *Checker) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	components := make(map[string]Check, len(c.components))
	var failing []string
	for name, check := range c.components {
		components[name] = check
		if !check.Healthy {
			failing = append(failing, name)
		}
	}

	status := "ok"
	if len(failing) > 0 {
		status = "degraded"
	}

	return Status{
		Status:        status,
		Version:       c.version,
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		Components:    components,
		Failing:       failing,
	}
}

// IsHealthy reports whether every registered component is healthy.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, check := range c.components {
		if !check.Healthy {
			return false
		}
	}
	return true
}
