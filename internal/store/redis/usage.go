package redis

import (
	"context"
	"fmt"
	"strconv"
)

// IncrementSent increments the sent-message counter of an instance
func (s *Store) IncrementSent(ctx context.Context, name string) error {
	if err := s.client.HIncrBy(ctx, KeySentCounts, name, 1).Err(); err != nil {
		return fmt.Errorf("failed to increment sent counter: %w", err)
	}
	return nil
}

// DeleteCounters drops every counter of an instance
func (s *Store) DeleteCounters(ctx context.Context, name string) error {
	if err := s.client.HDel(ctx, KeySentCounts, name).Err(); err != nil {
		return fmt.Errorf("failed to delete counters: %w", err)
	}
	return nil
}

// SentCounts retrieves the sent-message counter of every instance
func (s *Store) SentCounts(ctx context.Context) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, KeySentCounts).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get sent counters: %w", err)
	}

	stats := make(map[string]int64, len(raw))
	for name, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		stats[name] = n
	}
	return stats, nil
}
