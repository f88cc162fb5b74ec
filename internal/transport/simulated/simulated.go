package simulated

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/logger"
	"github.com/MrSnakeDoc/wagate/internal/transport"
)

// DefaultReconnectDelay is the constant wait before a simulated reconnect
const DefaultReconnectDelay = 5 * time.Second

// Options configures the simulated transport
type Options struct {
	// AutoConnect, when > 0, injects a scan AutoConnect after each issued
	// token and a successful open AutoConnect later. Zero leaves progress
	// entirely to injected events.
	AutoConnect    time.Duration
	ReconnectDelay time.Duration
	TimeNow        func() time.Time
}

// Transport fakes a WhatsApp connection. Tokens are random, sends always
// succeed and nothing leaves the process.
type Transport struct {
	mu     sync.Mutex
	sink   transport.EventSink
	opts   Options
	logger logger.Logger
	timers map[string][]*time.Timer
	closed bool
}

var _ transport.Transport = (*Transport)(nil)

// New creates a simulated transport
func New(opts Options, log logger.Logger) *Transport {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.TimeNow == nil {
		opts.TimeNow = time.Now
	}
	return &Transport{
		opts:   opts,
		logger: log,
		timers: make(map[string][]*time.Timer),
	}
}

func (t *Transport) Name() string { return transport.KindSimulated }

func (t *Transport) Bind(sink transport.EventSink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

func (t *Transport) IssueQR(_ context.Context, name string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if d := t.opts.AutoConnect; d > 0 {
		t.after(name, d, "qr scanned", func(s transport.EventSink) error { return s.OnQRScanned(name) })
		t.after(name, 2*d, "connection open", func(s transport.EventSink) error { return s.OnConnectionOpen(name) })
	}
	return token, nil
}

func (t *Transport) Dispatch(_ context.Context, name, to, _ string) (domain.Receipt, error) {
	number, err := transport.NormalizeNumber(to)
	if err != nil {
		return domain.Receipt{}, err
	}
	return domain.Receipt{
		ID:         messageID(),
		Instance:   name,
		To:         number,
		AcceptedAt: t.opts.TimeNow(),
	}, nil
}

func (t *Transport) Reconnect(name string) {
	t.logger.Info("simulated reconnect scheduled",
		logger.String("instance", name),
		logger.Duration("delay", t.opts.ReconnectDelay))
	t.after(name, t.opts.ReconnectDelay, "reconnect", func(s transport.EventSink) error {
		if err := s.OnConnecting(name); err != nil {
			return err
		}
		return s.OnConnectionOpen(name)
	})
}

func (t *Transport) Logout(_ context.Context, name string) error {
	t.stopTimers(name)
	return nil
}

func (t *Transport) Close(name string) error {
	t.stopTimers(name)
	return nil
}

func (t *Transport) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for name, timers := range t.timers {
		for _, tm := range timers {
			tm.Stop()
		}
		delete(t.timers, name)
	}
}

// Pending returns the number of scheduled callbacks for name
func (t *Transport) Pending(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers[name])
}

func (t *Transport) after(name string, d time.Duration, what string, fn func(transport.EventSink) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		t.mu.Lock()
		sink := t.sink
		t.forgetLocked(name, tm)
		t.mu.Unlock()

		if sink == nil {
			return
		}
		if err := fn(sink); err != nil {
			t.logger.Debug("simulated event ignored",
				logger.String("instance", name),
				logger.String("event", what),
				logger.Error(err))
		}
	})
	t.timers[name] = append(t.timers[name], tm)
}

func (t *Transport) forgetLocked(name string, tm *time.Timer) {
	timers := t.timers[name]
	for i, v := range timers {
		if v == tm {
			timers = append(timers[:i], timers[i+1:]...)
			break
		}
	}
	if len(timers) == 0 {
		delete(t.timers, name)
		return
	}
	t.timers[name] = timers
}

func (t *Transport) stopTimers(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tm := range t.timers[name] {
		tm.Stop()
	}
	delete(t.timers, name)
}

// newToken mimics the shape of a pairing payload: ref,noise,identity,adv
func newToken() (string, error) {
	parts := make([]string, 0, 4)
	parts = append(parts, "2@"+uuid.NewString())
	for i := 0; i < 3; i++ {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		parts = append(parts, base64.StdEncoding.EncodeToString(buf))
	}
	return strings.Join(parts, ","), nil
}

func messageID() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "3EB0" + id[:16]
}
