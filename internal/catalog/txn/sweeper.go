package txn

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically garbage-collects terminal transaction contexts
// past the retention window.
type Sweeper struct {
	coord     *Coordinator
	retention time.Duration
	logger    *slog.Logger
}

// NewSweeper creates a sweeper. retention <= 0 uses DefaultRetention.
func NewSweeper(coord *Coordinator, retention time.Duration, logger *slog.Logger) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{coord: coord, retention: retention, logger: logger}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	// Check at 10% of the retention window, clamped to [1m, 1h]
	interval := min(s.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	if removed := s.coord.CleanupCompleted(s.retention); removed > 0 {
		s.logger.Info("swept terminal transactions", "removed", removed)
	}
}
