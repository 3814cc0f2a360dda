package service

import (
	"context"
	"time"

	"github.com/scentflow/scentflow-backend/pkg/logger"
)

// ScanScheduler runs the stock scan periodically.
type ScanScheduler struct {
	scanner  *StockScanner
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
}

// NewScanScheduler creates a new scan scheduler
func NewScanScheduler(scanner *StockScanner, interval time.Duration, log *logger.Logger) *ScanScheduler {
	return &ScanScheduler{
		scanner:  scanner,
		interval: interval,
		logger:   log.WithComponent("scan-scheduler"),
	}
}

// Start starts the scheduler in a background goroutine. A non-positive
// interval leaves it stopped.
func (s *ScanScheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("stock scan disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("scan scheduler started")

		s.runCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("scan scheduler stopped")
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine
func (s *ScanScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *ScanScheduler) runCycle(ctx context.Context) {
	start := time.Now()

	report, err := s.scanner.ScanAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("stock scan cycle finished with errors")
	}
	if report == nil {
		return
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("locations", report.Locations).
		Int("rows", report.RowsScanned).
		Int("low_stock", report.LowStock).
		Int("inconsistent", len(report.Inconsistent)).
		Msg("stock scan cycle completed")
}
