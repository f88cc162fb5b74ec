package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/wagate/internal/logger"
)

// Sweeper expires lapsed QR tokens and reports how many it expired
type Sweeper interface {
	Sweep() int
}

// QRSweeper periodically expires QR tokens nobody asked about. Expiry is
// lazy by default, so this only makes states visible sooner.
type QRSweeper struct {
	registry Sweeper
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewQRSweeper creates a new QR sweeper
func NewQRSweeper(reg Sweeper, log logger.Logger, interval time.Duration) *QRSweeper {
	return &QRSweeper{
		registry: reg,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (s *QRSweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Collect()
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the sweeper
func (s *QRSweeper) Stop() {
	close(s.stopCh)
}

// Collect runs one sweep
func (s *QRSweeper) Collect() int {
	expired := s.registry.Sweep()
	if expired > 0 {
		s.logger.Info("expired stale qr codes", logger.Int("count", expired))
	} else {
		s.logger.Debug("no qr codes to expire")
	}
	return expired
}
