package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/wagate/internal/domain"
)

const (
	// DefaultSnapshotTTL is how long an instance snapshot survives without updates
	DefaultSnapshotTTL = 7 * 24 * time.Hour
	// DefaultStreamMaxLen caps the event stream (approximate trimming)
	DefaultStreamMaxLen = 1000
)

// Options configures the store
type Options struct {
	StreamKey    string
	StreamMaxLen int64
	SnapshotTTL  time.Duration
}

// Store handles Redis operations for instance snapshots, lifecycle events
// and send counters. Redis is never the source of truth: the in-memory
// registry is.
type Store struct {
	client      *redis.Client
	streamKey   string
	maxLen      int64
	snapshotTTL time.Duration
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client, opts Options) *Store {
	if opts.StreamKey == "" {
		opts.StreamKey = DefaultStreamKey
	}
	if opts.StreamMaxLen <= 0 {
		opts.StreamMaxLen = DefaultStreamMaxLen
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = DefaultSnapshotTTL
	}
	return &Store{
		client:      client,
		streamKey:   opts.StreamKey,
		maxLen:      opts.StreamMaxLen,
		snapshotTTL: opts.SnapshotTTL,
	}
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveInstance stores an instance snapshot
func (s *Store) SaveInstance(ctx context.Context, inst domain.Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, InstanceKey(inst.Name), data, s.snapshotTTL)
	pipe.SAdd(ctx, AllInstancesKey(), inst.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance snapshot by name
func (s *Store) GetInstance(ctx context.Context, name string) (domain.Instance, error) {
	data, err := s.client.Get(ctx, InstanceKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Instance{}, domain.NotFound(name)
		}
		return domain.Instance{}, fmt.Errorf("failed to get instance: %w", err)
	}

	var inst domain.Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return domain.Instance{}, fmt.Errorf("failed to unmarshal instance: %w", err)
	}
	return inst, nil
}

// GetAllInstances retrieves every snapshot still present. Names whose
// snapshot expired are pruned from the set.
func (s *Store) GetAllInstances(ctx context.Context) ([]domain.Instance, error) {
	names, err := s.client.SMembers(ctx, AllInstancesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get instance names: %w", err)
	}

	instances := make([]domain.Instance, 0, len(names))
	for _, name := range names {
		inst, err := s.GetInstance(ctx, name)
		if domain.IsNotFound(err) {
			s.client.SRem(ctx, AllInstancesKey(), name)
			continue
		}
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// DeleteInstance removes an instance snapshot
func (s *Store) DeleteInstance(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, InstanceKey(name))
	pipe.SRem(ctx, AllInstancesKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	return nil
}
