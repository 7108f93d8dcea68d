package health

import (
	"context"
	"sync"
	"time"
)

// Status of one component or the whole service.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Report is a point-in-time health snapshot.
type Report struct {
	Status     Status            `json:"status"`
	Components map[string]string `json:"components"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Monitor aggregates dependency checks.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{checks: make(map[string]Check)}
}

// Register adds a named check.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// CheckHealth runs every check. Any failure degrades the report.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.RLock()
	checks := make(map[string]Check, len(m.checks))
	for name, c := range m.checks {
		checks[name] = c
	}
	m.mu.RUnlock()

	report := Report{
		Status:     StatusHealthy,
		Components: make(map[string]string, len(checks)),
		UpdatedAt:  time.Now(),
	}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			report.Status = StatusDegraded
			report.Components[name] = err.Error()
			continue
		}
		report.Components[name] = "ok"
	}
	return report
}
