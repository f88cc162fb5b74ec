package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/gateway"
	"github.com/MrSnakeDoc/wagate/internal/logger"
	"github.com/MrSnakeDoc/wagate/internal/sources/seed"
)

// Provisioner is the part of the gateway the seed reloader drives
type Provisioner interface {
	Create(name string) (domain.Instance, error)
	Status(name string) (domain.Instance, error)
	Connect(ctx context.Context, name string) (gateway.QRCode, error)
}

// SeedResult summarizes one reload
type SeedResult struct {
	Created   int
	Connected int
	Skipped   int
}

// SeedReloader periodically pre-creates the instances declared in the
// seed file. Instances removed from the file are left alone.
type SeedReloader struct {
	loader        *seed.Loader
	gateway       Provisioner
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewSeedReloader creates a new seed reloader
func NewSeedReloader(
	seedFile string,
	gw Provisioner,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *SeedReloader {
	return &SeedReloader{
		loader:        seed.NewLoader(seedFile),
		gateway:       gw,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the seed file once and then reloads it periodically
func (sr *SeedReloader) Start(ctx context.Context) error {
	if _, err := sr.Reload(ctx); err != nil {
		return fmt.Errorf("initial seed reload failed: %w", err)
	}

	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed file", logger.Error(err))
				}
			case <-sr.manualTrigger:
				sr.logger.Info("manual seed reload triggered")
				if _, err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed file", logger.Error(err))
				}
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (sr *SeedReloader) Stop() {
	close(sr.stopCh)
}

// Reload creates every declared instance that does not exist yet, and
// requests a QR code for those flagged connect that are still fresh.
func (sr *SeedReloader) Reload(ctx context.Context) (SeedResult, error) {
	var res SeedResult

	f, err := sr.loader.Load()
	if err != nil {
		return res, err
	}

	specs, warnings := seed.Map(f)
	for _, w := range warnings {
		sr.logger.Warn("ignoring seed entry", logger.String("file", sr.loader.Path()), logger.Error(w))
	}

	for _, spec := range specs {
		inst, err := sr.gateway.Create(spec.Name)
		switch {
		case err == nil:
			res.Created++
		case domain.IsAlreadyExists(err):
			if inst, err = sr.gateway.Status(spec.Name); err != nil {
				res.Skipped++
				continue
			}
		default:
			sr.logger.Warn("failed to create seeded instance",
				logger.String("instance", spec.Name),
				logger.Error(err))
			res.Skipped++
			continue
		}

		if !spec.Connect || inst.State != domain.StateCreated {
			continue
		}
		if _, err := sr.gateway.Connect(ctx, spec.Name); err != nil {
			sr.logger.Warn("failed to connect seeded instance",
				logger.String("instance", spec.Name),
				logger.Error(err))
			continue
		}
		res.Connected++
	}

	sr.logger.Info("seed file applied",
		logger.Int("declared", len(specs)),
		logger.Int("created", res.Created),
		logger.Int("connected", res.Connected),
		logger.Int("skipped", res.Skipped))

	return res, nil
}
