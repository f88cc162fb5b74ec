package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/wagate/internal/domain"
)

const eventField = "event"

// AppendEvent adds ev to the capped event stream
func (s *Store) AppendEvent(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamKey,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			eventField: string(data),
			"type":     string(ev.Type),
			"instance": ev.Instance,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// RecentEvents returns up to count events, newest first
func (s *Store) RecentEvents(ctx context.Context, count int64) ([]domain.Event, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.streamKey, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return decodeEvents(msgs), nil
}

// decodeEvents skips entries not written by AppendEvent
func decodeEvents(msgs []redis.XMessage) []domain.Event {
	events := make([]domain.Event, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values[eventField].(string)
		if !ok {
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}
