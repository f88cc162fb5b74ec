package whatsapp

import (
	"errors"
	"fmt"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/MrSnakeDoc/wagate/internal/transport"
)

type actionKind int

const (
	actNone actionKind = iota
	actScanned
	actOpen
	actClosed
	actFailed
	actSetupFailed
)

// action is what a whatsmeow event means for the instance lifecycle
type action struct {
	kind     actionKind
	eligible bool
	reason   string
	err      error
}

// translate maps a whatsmeow event onto a lifecycle action
func translate(evt interface{}) action {
	switch v := evt.(type) {
	case *events.PairSuccess:
		return action{kind: actScanned}
	case *events.PairError:
		return action{kind: actSetupFailed, err: fmt.Errorf("pairing failed: %w", v.Error)}
	case *events.Connected:
		return action{kind: actOpen}
	case *events.Disconnected:
		return action{kind: actClosed, eligible: true, reason: "disconnected"}
	case *events.LoggedOut:
		return action{kind: actClosed, reason: "logged out: " + v.Reason.String()}
	case *events.ConnectFailure:
		reason := v.Reason.String()
		if v.Message != "" {
			reason += ": " + v.Message
		}
		if v.Reason.IsLoggedOut() {
			return action{kind: actClosed, reason: reason}
		}
		return action{kind: actFailed, eligible: true, reason: reason}
	case *events.StreamReplaced:
		return action{kind: actSetupFailed, err: errors.New("stream replaced by another client")}
	case *events.TemporaryBan:
		return action{kind: actSetupFailed, err: fmt.Errorf("temporary ban: %s (expires in %s)", v.Code.String(), v.Expire)}
	case *events.ClientOutdated:
		return action{kind: actSetupFailed, err: errors.New("client outdated")}
	default:
		return action{kind: actNone}
	}
}

// apply forwards a to the sink
func (a action) apply(sink transport.EventSink, name string) error {
	switch a.kind {
	case actScanned:
		return sink.OnQRScanned(name)
	case actOpen:
		return sink.OnConnectionOpen(name)
	case actClosed:
		return sink.OnConnectionClosed(name, a.eligible, a.reason)
	case actFailed:
		return sink.OnConnectionFailed(name, a.eligible, a.reason)
	case actSetupFailed:
		return sink.OnSetupFailed(name, a.err)
	default:
		return nil
	}
}
