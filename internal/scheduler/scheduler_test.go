package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/events"
	"github.com/MrSnakeDoc/wagate/internal/gateway"
	"github.com/MrSnakeDoc/wagate/internal/index"
	"github.com/MrSnakeDoc/wagate/internal/lifecycle"
	"github.com/MrSnakeDoc/wagate/internal/logger"
	"github.com/MrSnakeDoc/wagate/internal/qr"
	"github.com/MrSnakeDoc/wagate/internal/transport/simulated"
)

func newGateway(t *testing.T, notifier lifecycle.Notifier) *gateway.Service {
	t.Helper()
	log := logger.New("error", false)
	tr := simulated.New(simulated.Options{}, log)
	reg := lifecycle.New(index.NewMemoryIndex(), tr, lifecycle.Options{
		Notifier: notifier,
		Hooks:    gateway.Hooks(tr, log),
	}, log)
	tr.Bind(reg)
	t.Cleanup(tr.Shutdown)
	return gateway.New(reg, tr, gateway.Options{QR: qr.DefaultOptions()}, log)
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSweeper) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 1
}

func (s *countingSweeper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestQRSweeperRunsPeriodically(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewQRSweeper(sweeper, logger.New("error", false), 5*time.Millisecond)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for sweeper.Calls() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper ran %d times, expected at least 2", sweeper.Calls())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQRSweeperCollect(t *testing.T) {
	s := NewQRSweeper(&countingSweeper{}, logger.New("error", false), time.Hour)
	if got := s.Collect(); got != 1 {
		t.Errorf("expected 1 expired, got %d", got)
	}
}

func TestSeedReloaderReload(t *testing.T) {
	gw := newGateway(t, nil)
	path := filepath.Join(t.TempDir(), "instances.yaml")
	content := `instances:
  - name: sales
    connect: true
  - name: support
  - name: ""
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	sr := NewSeedReloader(path, gw, logger.New("error", false), time.Hour, nil)

	res, err := sr.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if res.Created != 2 || res.Connected != 1 {
		t.Errorf("unexpected first result %+v", res)
	}

	inst, err := gw.Status("sales")
	if err != nil || inst.State != domain.StateQRReady {
		t.Errorf("expected sales in qr_ready, got %+v (err %v)", inst, err)
	}

	res, err = sr.Reload(context.Background())
	if err != nil {
		t.Fatalf("second Reload failed: %v", err)
	}
	if res.Created != 0 || res.Connected != 0 {
		t.Errorf("second reload must be a no-op, got %+v", res)
	}
	if len(gw.List()) != 2 {
		t.Errorf("expected 2 instances, got %d", len(gw.List()))
	}
}

func TestSeedReloaderStartFailsOnMissingFile(t *testing.T) {
	sr := NewSeedReloader("/nonexistent/instances.yaml", newGateway(t, nil), logger.New("error", false), time.Hour, nil)
	if err := sr.Start(context.Background()); err == nil {
		t.Error("Start with missing seed file should fail")
	}
}

func TestSeedReloaderManualTrigger(t *testing.T) {
	gw := newGateway(t, nil)
	path := filepath.Join(t.TempDir(), "instances.yaml")
	if err := os.WriteFile(path, []byte("instances: []\n"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	trigger := make(chan struct{}, 1)
	sr := NewSeedReloader(path, gw, logger.New("error", false), time.Hour, trigger)
	if err := sr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sr.Stop()

	if err := os.WriteFile(path, []byte("instances:\n  - name: late\n"), 0o644); err != nil {
		t.Fatalf("rewrite seed: %v", err)
	}
	trigger <- struct{}{}

	deadline := time.Now().Add(time.Second)
	for {
		if _, err := gw.Status("late"); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("manual trigger did not reload the seed file")
		}
		time.Sleep(time.Millisecond)
	}
}

type memSink struct {
	mu        sync.Mutex
	events    []domain.Event
	snapshots map[string]domain.Instance
	appendErr error
}

func newMemSink() *memSink {
	return &memSink{snapshots: map[string]domain.Instance{}}
}

func (s *memSink) AppendEvent(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) SaveInstance(_ context.Context, inst domain.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[inst.Name] = inst
	return nil
}

func (s *memSink) DeleteInstance(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, name)
	return nil
}

func (s *memSink) GetAllInstances(context.Context) ([]domain.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Instance, 0, len(s.snapshots))
	for _, inst := range s.snapshots {
		out = append(out, inst)
	}
	return out, nil
}

func TestEventForwarderMirrorsRegistry(t *testing.T) {
	hub := events.NewHub()
	gw := newGateway(t, hub)
	sink := newMemSink()

	f := NewEventForwarder(hub, sink, gw.Status, logger.New("error", false), 16)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := gw.Create("sales"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := gw.Create("support"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := gw.Delete("support"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	f.Stop()
	f.Stop()

	if len(sink.events) != 3 {
		t.Fatalf("expected 3 forwarded events, got %d", len(sink.events))
	}
	if sink.events[2].Type != domain.EventInstanceDeleted {
		t.Errorf("expected last event to be a deletion, got %s", sink.events[2].Type)
	}
	if _, ok := sink.snapshots["sales"]; !ok {
		t.Error("sales snapshot missing")
	}
	if _, ok := sink.snapshots["support"]; ok {
		t.Error("support snapshot should have been deleted")
	}
}

func TestEventForwarderSurvivesSinkErrors(t *testing.T) {
	sink := newMemSink()
	sink.appendErr = errors.New("redis down")
	lookup := func(name string) (domain.Instance, error) {
		return domain.Instance{Name: name, State: domain.StateCreated}, nil
	}

	f := NewEventForwarder(events.NewHub(), sink, lookup, logger.New("error", false), 1)
	f.Forward(context.Background(), domain.Event{Type: domain.EventInstanceCreated, Instance: "sales"})

	if _, ok := sink.snapshots["sales"]; !ok {
		t.Error("snapshot must be saved even when the stream write fails")
	}
	f.Stop()
}

func TestRedisSyncerPurgesStaleSnapshots(t *testing.T) {
	sink := newMemSink()
	sink.snapshots["sales"] = domain.Instance{Name: "sales", State: domain.StateConnected}
	sink.snapshots["support"] = domain.Instance{Name: "support", State: domain.StateQRReady}

	gw := newGateway(t, nil)
	if _, err := gw.Create("support"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	purged, err := NewRedisSyncer(sink, gw.Status, logger.New("error", false)).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged snapshot, got %d", purged)
	}
	if _, ok := sink.snapshots["sales"]; ok {
		t.Error("sales snapshot belongs to a previous run and should be gone")
	}
	if _, ok := sink.snapshots["support"]; !ok {
		t.Error("support snapshot matches a live instance and must be kept")
	}
	if _, err := gw.Status("sales"); !domain.IsNotFound(err) {
		t.Errorf("stale snapshots must not recreate instances, got %v", err)
	}
}
