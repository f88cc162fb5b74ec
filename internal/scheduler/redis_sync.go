package scheduler

import (
	"context"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/logger"
)

// SnapshotStore lists and removes persisted instance snapshots
type SnapshotStore interface {
	GetAllInstances(ctx context.Context) ([]domain.Instance, error)
	DeleteInstance(ctx context.Context, name string) error
}

// RedisSyncer aligns Redis with the in-memory registry on startup.
// Instances never outlive the process, so any snapshot naming an instance
// the registry does not know is left over from a previous run and removed.
type RedisSyncer struct {
	store  SnapshotStore
	lookup InstanceLookup
	logger logger.Logger
}

// NewRedisSyncer creates a new Redis syncer
func NewRedisSyncer(store SnapshotStore, lookup InstanceLookup, log logger.Logger) *RedisSyncer {
	return &RedisSyncer{
		store:  store,
		lookup: lookup,
		logger: log,
	}
}

// Sync removes stale snapshots and returns how many it removed
func (rs *RedisSyncer) Sync(ctx context.Context) (int, error) {
	snapshots, err := rs.store.GetAllInstances(ctx)
	if err != nil {
		return 0, err
	}

	if len(snapshots) == 0 {
		rs.logger.Debug("no instance snapshots found in redis")
		return 0, nil
	}

	purged := 0
	for _, snap := range snapshots {
		if _, err := rs.lookup(snap.Name); !domain.IsNotFound(err) {
			continue
		}
		if err := rs.store.DeleteInstance(ctx, snap.Name); err != nil {
			rs.logger.Warn("failed to remove stale snapshot",
				logger.String("instance", snap.Name),
				logger.Error(err))
			continue
		}
		purged++
	}

	rs.logger.Info("removed stale instance snapshots from redis",
		logger.Int("count", purged),
		logger.Int("snapshots", len(snapshots)))

	return purged, nil
}
