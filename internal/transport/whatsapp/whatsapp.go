package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/logger"
	"github.com/MrSnakeDoc/wagate/internal/transport"
	"github.com/MrSnakeDoc/wagate/internal/utils"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultPairTimeout    = 30 * time.Second
)

var errSessionGone = errors.New("session closed")

// Options configures the whatsmeow transport
type Options struct {
	SessionDir     string        // one sqlite device store per instance
	ReconnectDelay time.Duration // constant delay between reconnect attempts
	PairTimeout    time.Duration // max wait for the first QR code
	DeviceName     string        // shown in the phone's linked devices list
}

type session struct {
	name      string
	path      string
	container *sqlstore.Container
	client    *whatsmeow.Client
	handlerID uint32

	mu          sync.Mutex
	pairing     bool
	code        string
	codeReady   chan struct{} // closed when the first code of a pairing arrives
	cancelQR    context.CancelFunc
	cancelRetry context.CancelFunc
}

// Transport drives one whatsmeow client per instance
type Transport struct {
	mu       sync.Mutex
	sessions map[string]*session
	sink     transport.EventSink
	opts     Options
	logger   logger.Logger
	dial     func(*whatsmeow.Client) error
}

var _ transport.Transport = (*Transport)(nil)

// New creates a whatsmeow transport. Nothing is opened until the first
// QR request for an instance.
func New(opts Options, log logger.Logger) (*Transport, error) {
	if opts.SessionDir == "" {
		return nil, fmt.Errorf("session dir is required")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.PairTimeout <= 0 {
		opts.PairTimeout = DefaultPairTimeout
	}
	if err := os.MkdirAll(opts.SessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	if opts.DeviceName != "" {
		// process-wide, read by whatsmeow when a new device registers
		store.SetOSInfo(opts.DeviceName, [3]uint32{1, 0, 0})
		store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_DESKTOP.Enum()
	}
	return &Transport{
		sessions: make(map[string]*session),
		opts:     opts,
		logger:   log,
		dial:     (*whatsmeow.Client).Connect,
	}, nil
}

func (t *Transport) Name() string { return transport.KindWhatsApp }

func (t *Transport) Bind(sink transport.EventSink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

// IssueQR starts pairing for name and waits for the first code. While a
// pairing is running the latest code is returned immediately.
func (t *Transport) IssueQR(ctx context.Context, name string) (string, error) {
	s, err := t.open(ctx, name)
	if err != nil {
		return "", err
	}

	if s.client.Store.ID != nil {
		// credentials survived from an earlier run: dial instead of pairing
		t.notify(name, "connecting", func(sink transport.EventSink) error { return sink.OnConnecting(name) })
		if err := t.dial(s.client); err != nil && !errors.Is(err, whatsmeow.ErrAlreadyConnected) {
			return "", fmt.Errorf("connect: %w", err)
		}
		return "", domain.InvalidTransition(name, domain.StateConnecting, domain.TriggerRequestQR)
	}

	ready, err := t.startPairing(s)
	if err != nil {
		return "", err
	}

	timer := time.NewTimer(t.opts.PairTimeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("no qr code received within %s", t.opts.PairTimeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code == "" {
		return "", errors.New("pairing ended before a qr code was issued")
	}
	return s.code, nil
}

func (t *Transport) startPairing(s *session) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pairing {
		return s.codeReady, nil
	}

	qrCtx, cancel := context.WithCancel(context.Background())
	ch, err := s.client.GetQRChannel(qrCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("qr channel: %w", err)
	}
	if err := t.dial(s.client); err != nil {
		cancel()
		return nil, fmt.Errorf("connect: %w", err)
	}

	s.pairing = true
	s.code = ""
	s.codeReady = make(chan struct{})
	s.cancelQR = cancel
	go t.pumpQR(s, ch, s.codeReady)

	t.logger.Info("pairing started", logger.String("instance", s.name))
	return s.codeReady, nil
}

func (t *Transport) pumpQR(s *session, ch <-chan whatsmeow.QRChannelItem, ready chan struct{}) {
	first := true
	markReady := func() {
		if first {
			close(ready)
			first = false
		}
	}
	defer func() {
		s.mu.Lock()
		s.pairing = false
		if s.cancelQR != nil {
			s.cancelQR()
			s.cancelQR = nil
		}
		s.mu.Unlock()
		markReady()
	}()

	for item := range ch {
		switch item.Event {
		case "code":
			s.mu.Lock()
			s.code = item.Code
			s.mu.Unlock()
			markReady()
			t.logger.Debug("qr code received",
				logger.String("instance", s.name),
				logger.Duration("timeout", item.Timeout))
			t.notify(s.name, "qr code", func(sink transport.EventSink) error { return sink.OnQRCode(s.name, item.Code) })
		case "success":
			t.logger.Info("pairing succeeded", logger.String("instance", s.name))
		case "timeout":
			t.logger.Info("pairing timed out", logger.String("instance", s.name))
			s.mu.Lock()
			s.code = ""
			s.mu.Unlock()
			s.client.Disconnect()
		default:
			cause := item.Error
			if cause == nil {
				cause = fmt.Errorf("pairing failed: %s", item.Event)
			}
			s.mu.Lock()
			s.code = ""
			s.mu.Unlock()
			t.notify(s.name, "pairing error", func(sink transport.EventSink) error { return sink.OnSetupFailed(s.name, cause) })
		}
	}
}

func (t *Transport) Dispatch(ctx context.Context, name, to, text string) (domain.Receipt, error) {
	s := t.get(name)
	if s == nil || !s.client.IsConnected() {
		return domain.Receipt{}, domain.TransportError(name, errors.New("no live connection"))
	}

	number, err := transport.NormalizeNumber(to)
	if err != nil {
		return domain.Receipt{}, err
	}
	jid, err := recipient(number)
	if err != nil {
		return domain.Receipt{}, domain.InvalidArgument(err.Error())
	}

	resp, err := s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return domain.Receipt{}, domain.TransportError(name, err)
	}
	return domain.Receipt{
		ID:         string(resp.ID),
		Instance:   name,
		To:         jid.String(),
		AcceptedAt: resp.Timestamp,
	}, nil
}

// Reconnect redials name every ReconnectDelay until the socket is up or
// the session is closed. The delay is constant, not exponential.
func (t *Transport) Reconnect(name string) {
	s := t.get(name)
	if s == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancelRetry != nil {
		s.cancelRetry()
	}
	s.cancelRetry = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()

		delay := time.NewTimer(t.opts.ReconnectDelay)
		defer delay.Stop()
		select {
		case <-delay.C:
		case <-ctx.Done():
			return
		}

		attempt := 0
		op := func() error {
			attempt++
			if t.get(name) != s {
				return backoff.Permanent(errSessionGone)
			}
			if s.client.IsConnected() {
				return nil
			}
			t.notify(name, "connecting", func(sink transport.EventSink) error { return sink.OnConnecting(name) })
			if err := t.dial(s.client); err != nil && !errors.Is(err, whatsmeow.ErrAlreadyConnected) {
				t.logger.Warn("reconnect attempt failed",
					logger.String("instance", name),
					logger.Int("attempt", attempt),
					logger.Error(err))
				return err
			}
			return nil
		}

		b := backoff.WithContext(backoff.NewConstantBackOff(t.opts.ReconnectDelay), ctx)
		if err := backoff.Retry(op, b); err != nil && !errors.Is(err, errSessionGone) && ctx.Err() == nil {
			t.logger.Error("reconnect abandoned", logger.String("instance", name), logger.Error(err))
		}
	}()
}

func (t *Transport) Logout(ctx context.Context, name string) error {
	s := t.get(name)
	if s == nil {
		return domain.TransportError(name, errors.New("no session"))
	}
	if err := s.client.Logout(ctx); err != nil {
		return domain.TransportError(name, err)
	}
	return t.Close(name)
}

// Close disconnects name and removes its device store
func (t *Transport) Close(name string) error {
	t.mu.Lock()
	s, ok := t.sessions[name]
	delete(t.sessions, name)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return t.teardown(s)
}

// drop closes s unless it was already replaced by a newer session
func (t *Transport) drop(s *session) error {
	t.mu.Lock()
	if t.sessions[s.name] != s {
		t.mu.Unlock()
		return nil
	}
	delete(t.sessions, s.name)
	t.mu.Unlock()
	return t.teardown(s)
}

func (t *Transport) Shutdown() {
	t.mu.Lock()
	sessions := make([]*session, 0, len(t.sessions))
	for name, s := range t.sessions {
		sessions = append(sessions, s)
		delete(t.sessions, name)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		if err := t.teardown(s); err != nil {
			t.logger.Warn("failed to close session", logger.String("instance", s.name), logger.Error(err))
		}
	}
}

func (t *Transport) teardown(s *session) error {
	s.mu.Lock()
	if s.cancelQR != nil {
		s.cancelQR()
		s.cancelQR = nil
	}
	if s.cancelRetry != nil {
		s.cancelRetry()
		s.cancelRetry = nil
	}
	s.mu.Unlock()

	s.client.RemoveEventHandler(s.handlerID)
	s.client.Disconnect()

	var errs []error
	if err := s.container.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove store: %w", err))
	}
	t.logger.Info("session closed", logger.String("instance", s.name))
	return errors.Join(errs...)
}

func (t *Transport) open(ctx context.Context, name string) (*session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[name]; ok {
		return s, nil
	}

	path := sessionPath(t.opts.SessionDir, name)
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+path+"?_foreign_keys=on", logger.WhatsApp(t.logger, "store"))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		utils.Close(container)
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, logger.WhatsApp(t.logger, "client."+name))
	client.EnableAutoReconnect = false

	s := &session{name: name, path: path, container: container, client: client}
	s.handlerID = client.AddEventHandler(func(evt interface{}) { t.handle(s, evt) })
	t.sessions[name] = s
	return s, nil
}

func (t *Transport) handle(s *session, evt interface{}) {
	a := translate(evt)
	if a.kind == actNone {
		return
	}
	if a.kind == actOpen {
		s.mu.Lock()
		s.code = ""
		s.mu.Unlock()
	}

	t.notify(s.name, fmt.Sprintf("%T", evt), func(sink transport.EventSink) error { return a.apply(sink, s.name) })

	// a logged out device store is unusable; drop it so the next QR
	// request pairs from scratch
	if a.kind == actClosed && !a.eligible {
		go func() {
			if err := t.drop(s); err != nil {
				t.logger.Warn("failed to drop logged out session", logger.String("instance", s.name), logger.Error(err))
			}
		}()
	}
}

func (t *Transport) notify(name, what string, fn func(transport.EventSink) error) {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink == nil {
		return
	}
	if err := fn(sink); err != nil {
		t.logger.Debug("transport event ignored",
			logger.String("instance", name),
			logger.String("event", what),
			logger.Error(err))
	}
}

func (t *Transport) get(name string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[name]
}

func sessionPath(dir, name string) string {
	return filepath.Join(dir, url.PathEscape(name)+".db")
}

func recipient(number string) (types.JID, error) {
	if strings.Contains(number, "@") {
		return types.ParseJID(number)
	}
	return types.NewJID(number, types.DefaultUserServer), nil
}
