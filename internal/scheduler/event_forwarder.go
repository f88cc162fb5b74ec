package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/logger"
)

const forwardTimeout = 2 * time.Second

// EventSubscriber is satisfied by events.Hub
type EventSubscriber interface {
	Subscribe(buffer int) (<-chan domain.Event, func())
}

// EventSink persists lifecycle events and instance snapshots
type EventSink interface {
	AppendEvent(ctx context.Context, ev domain.Event) error
	SaveInstance(ctx context.Context, inst domain.Instance) error
	DeleteInstance(ctx context.Context, name string) error
}

// InstanceLookup returns the current view of an instance
type InstanceLookup func(name string) (domain.Instance, error)

// EventForwarder copies every lifecycle event into the sink and keeps the
// instance snapshot in step with it. Failures are logged and skipped.
type EventForwarder struct {
	hub    EventSubscriber
	sink   EventSink
	lookup InstanceLookup
	logger logger.Logger
	buffer int

	cancel func()
	done   chan struct{}
	once   sync.Once
}

// NewEventForwarder creates a new event forwarder
func NewEventForwarder(hub EventSubscriber, sink EventSink, lookup InstanceLookup, log logger.Logger, buffer int) *EventForwarder {
	return &EventForwarder{
		hub:    hub,
		sink:   sink,
		lookup: lookup,
		logger: log,
		buffer: buffer,
		done:   make(chan struct{}),
	}
}

// Start subscribes to the hub and forwards until Stop
func (f *EventForwarder) Start(ctx context.Context) error {
	ch, cancel := f.hub.Subscribe(f.buffer)
	f.cancel = cancel

	go func() {
		defer close(f.done)
		for ev := range ch {
			f.Forward(ctx, ev)
		}
	}()

	return nil
}

// Stop unsubscribes and waits for in-flight events to be written
func (f *EventForwarder) Stop() {
	f.once.Do(func() {
		if f.cancel == nil {
			close(f.done)
			return
		}
		f.cancel()
		<-f.done
	})
}

// Forward writes a single event
func (f *EventForwarder) Forward(ctx context.Context, ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forwardTimeout)
	defer cancel()

	if err := f.sink.AppendEvent(ctx, ev); err != nil {
		f.logger.Warn("failed to forward event",
			logger.String("instance", ev.Instance),
			logger.String("type", string(ev.Type)),
			logger.Error(err))
	}

	if ev.Type == domain.EventInstanceDeleted {
		f.deleteSnapshot(ctx, ev.Instance)
		return
	}

	inst, err := f.lookup(ev.Instance)
	if domain.IsNotFound(err) {
		f.deleteSnapshot(ctx, ev.Instance)
		return
	}
	if err != nil {
		return
	}
	if err := f.sink.SaveInstance(ctx, inst); err != nil {
		f.logger.Warn("failed to save instance snapshot",
			logger.String("instance", ev.Instance),
			logger.Error(err))
	}
}

func (f *EventForwarder) deleteSnapshot(ctx context.Context, name string) {
	if err := f.sink.DeleteInstance(ctx, name); err != nil {
		f.logger.Warn("failed to delete instance snapshot",
			logger.String("instance", name),
			logger.Error(err))
	}
}
