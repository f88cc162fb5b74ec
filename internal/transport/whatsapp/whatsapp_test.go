package whatsapp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/logger"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		evt      interface{}
		kind     actionKind
		eligible bool
	}{
		{"pair success", &events.PairSuccess{}, actScanned, false},
		{"pair error", &events.PairError{Error: errors.New("bad")}, actSetupFailed, false},
		{"connected", &events.Connected{}, actOpen, false},
		{"disconnected", &events.Disconnected{}, actClosed, true},
		{"logged out", &events.LoggedOut{}, actClosed, false},
		{"connect failure", &events.ConnectFailure{Reason: events.ConnectFailureInternalServerError}, actFailed, true},
		{"connect failure logged out", &events.ConnectFailure{Reason: events.ConnectFailureLoggedOut}, actClosed, false},
		{"stream replaced", &events.StreamReplaced{}, actSetupFailed, false},
		{"client outdated", &events.ClientOutdated{}, actSetupFailed, false},
		{"temporary ban", &events.TemporaryBan{}, actSetupFailed, false},
		{"unrelated", &events.Message{}, actNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := translate(tt.evt)
			assert.Equal(t, tt.kind, a.kind)
			assert.Equal(t, tt.eligible, a.eligible)
			if a.kind == actSetupFailed {
				assert.Error(t, a.err)
			}
		})
	}
}

type sinkCall struct {
	method   string
	eligible bool
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (f *fakeSink) record(c sinkCall) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeSink) snapshot() []sinkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sinkCall(nil), f.calls...)
}

func (f *fakeSink) OnQRCode(string, string) error {
	f.record(sinkCall{method: "qr"})
	return nil
}

func (f *fakeSink) OnQRScanned(string) error {
	f.record(sinkCall{method: "scanned"})
	return nil
}

func (f *fakeSink) OnConnecting(string) error {
	f.record(sinkCall{method: "connecting"})
	return nil
}

func (f *fakeSink) OnConnectionOpen(string) error {
	f.record(sinkCall{method: "open"})
	return nil
}

func (f *fakeSink) OnConnectionFailed(_ string, eligible bool, _ string) error {
	f.record(sinkCall{method: "failed", eligible: eligible})
	return nil
}

func (f *fakeSink) OnConnectionClosed(_ string, eligible bool, _ string) error {
	f.record(sinkCall{method: "closed", eligible: eligible})
	return nil
}

func (f *fakeSink) OnSetupFailed(string, error) error {
	f.record(sinkCall{method: "setup"})
	return domain.NotFound("x")
}

func TestActionApply(t *testing.T) {
	sink := &fakeSink{}

	require.NoError(t, translate(&events.PairSuccess{}).apply(sink, "a"))
	require.NoError(t, translate(&events.Connected{}).apply(sink, "a"))
	require.NoError(t, translate(&events.Disconnected{}).apply(sink, "a"))
	require.NoError(t, translate(&events.LoggedOut{}).apply(sink, "a"))
	require.NoError(t, translate(&events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable}).apply(sink, "a"))
	assert.True(t, domain.IsNotFound(translate(&events.ClientOutdated{}).apply(sink, "a")))
	require.NoError(t, translate(&events.Message{}).apply(sink, "a"))

	assert.Equal(t, []sinkCall{
		{method: "scanned"},
		{method: "open"},
		{method: "closed", eligible: true},
		{method: "closed", eligible: false},
		{method: "failed", eligible: true},
		{method: "setup"},
	}, sink.snapshot())
}

func TestRecipient(t *testing.T) {
	jid, err := recipient("5511999999999")
	require.NoError(t, err)
	assert.Equal(t, "5511999999999@s.whatsapp.net", jid.String())

	jid, err = recipient("120363025246125486@g.us")
	require.NoError(t, err)
	assert.Equal(t, "g.us", jid.Server)
}

func TestSessionPathEscapesName(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "sales%20bot.db"), sessionPath("/data", "sales bot"))
}

func TestNewRequiresSessionDir(t *testing.T) {
	_, err := New(Options{}, logger.New("error", false))
	assert.Error(t, err)

	tr, err := New(Options{SessionDir: filepath.Join(t.TempDir(), "sessions")}, logger.New("error", false))
	require.NoError(t, err)
	assert.Equal(t, DefaultReconnectDelay, tr.opts.ReconnectDelay)
	assert.NoError(t, tr.Close("unknown"))
}

func TestDispatchWithoutSession(t *testing.T) {
	tr, err := New(Options{SessionDir: t.TempDir()}, logger.New("error", false))
	require.NoError(t, err)

	_, err = tr.Dispatch(context.Background(), "sales", "5511999999999", "hi")
	assert.True(t, domain.IsTransportError(err))
}

func newOfflineTransport(t *testing.T) (*Transport, *fakeSink) {
	t.Helper()
	tr, err := New(Options{SessionDir: t.TempDir()}, logger.New("error", false))
	require.NoError(t, err)
	tr.dial = func(*whatsmeow.Client) error { return nil }
	sink := &fakeSink{}
	tr.Bind(sink)
	t.Cleanup(tr.Shutdown)
	return tr, sink
}

func TestIssueQRWithStoredCredentialsIsConnecting(t *testing.T) {
	tr, sink := newOfflineTransport(t)
	s, err := tr.open(context.Background(), "sales")
	require.NoError(t, err)
	s.client.Store.ID = &types.JID{User: "5511999999999", Device: 1, Server: types.DefaultUserServer}

	_, err = tr.IssueQR(context.Background(), "sales")
	require.True(t, domain.IsInvalidTransition(err), "got %v", err)
	assert.False(t, domain.IsAlreadyConnected(err))
	assert.Equal(t, domain.StateConnecting, domain.AsError(err).State)
	assert.Equal(t, []sinkCall{{method: "connecting"}}, sink.snapshot())
}

func TestDropSkipsReplacedSession(t *testing.T) {
	tr, _ := newOfflineTransport(t)
	ctx := context.Background()

	old, err := tr.open(ctx, "sales")
	require.NoError(t, err)
	require.NoError(t, tr.Close("sales"))

	current, err := tr.open(ctx, "sales")
	require.NoError(t, err)
	require.NotSame(t, old, current)

	require.NoError(t, tr.drop(old))
	assert.Same(t, current, tr.get("sales"))
	_, err = os.Stat(current.path)
	assert.NoError(t, err, "device store of the live session must survive")

	require.NoError(t, tr.drop(current))
	assert.Nil(t, tr.get("sales"))
}
