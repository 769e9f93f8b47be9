package application

import (
	"context"
	"log"
	"time"
)

// DefaultSweepInterval is how often the sweeper runs when not configured.
const DefaultSweepInterval = time.Minute

// Sweeper runs the reservation expiry sweep on a fixed interval.
type Sweeper struct {
	coordinator *Coordinator
	interval    time.Duration
	logger      *log.Logger
}

// NewSweeper constructs a Sweeper.
func NewSweeper(coordinator *Coordinator, interval time.Duration, logger *log.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{coordinator: coordinator, interval: interval, logger: logger}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil || s.coordinator == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if _, err := s.coordinator.SweepExpiredReservations(ctx); err != nil {
		s.logger.Printf("reservation sweep error: %v", err)
	}
}
