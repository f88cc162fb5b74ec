package transport

import (
	"context"

	"github.com/MrSnakeDoc/wagate/internal/domain"
)

const (
	KindSimulated = "simulated"
	KindWhatsApp  = "whatsmeow"
)

// EventSink receives asynchronous connection events. The lifecycle
// registry implements it; errors mean the event did not apply (unknown
// instance, invalid transition) and are only logged by transports.
type EventSink interface {
	OnQRCode(name, code string) error
	OnQRScanned(name string) error
	OnConnecting(name string) error
	OnConnectionOpen(name string) error
	OnConnectionFailed(name string, reconnectEligible bool, reason string) error
	OnConnectionClosed(name string, reconnectEligible bool, reason string) error
	OnSetupFailed(name string, cause error) error
}

// Transport is the connection side of an instance
type Transport interface {
	Name() string
	// Bind attaches the sink. It must be called before any other method.
	Bind(sink EventSink)
	// IssueQR starts (or continues) pairing and returns the current token
	IssueQR(ctx context.Context, name string) (string, error)
	// Dispatch hands a text message to the connection
	Dispatch(ctx context.Context, name, to, text string) (domain.Receipt, error)
	// Reconnect schedules a retry for a dropped connection
	Reconnect(name string)
	// Logout ends the session on the remote side
	Logout(ctx context.Context, name string) error
	// Close drops the connection and any per-instance state
	Close(name string) error
	// Shutdown closes everything
	Shutdown()
}
