package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/wagate/internal/domain"
)

const (
	MinQRTTL     = 20 * time.Second
	MaxQRTTL     = 300 * time.Second
	DefaultQRTTL = 60 * time.Second
)

// LogoutPolicy decides what happens to an instance whose session was logged out
type LogoutPolicy string

const (
	// LogoutDelete removes the instance from the registry
	LogoutDelete LogoutPolicy = "delete"
	// LogoutMark keeps the instance in the disconnected state
	LogoutMark LogoutPolicy = "mark"
)

// ParseLogoutPolicy validates a configured policy name
func ParseLogoutPolicy(s string) (LogoutPolicy, error) {
	switch LogoutPolicy(s) {
	case LogoutDelete, LogoutMark:
		return LogoutPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown logout policy %q (want %q or %q)", s, LogoutDelete, LogoutMark)
	}
}

// ClampQRTTL keeps ttl inside the supported window
func ClampQRTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return DefaultQRTTL
	case ttl < MinQRTTL:
		return MinQRTTL
	case ttl > MaxQRTTL:
		return MaxQRTTL
	default:
		return ttl
	}
}

// Backend performs the blocking work behind request-qr and send-message.
// It is never called with a registry lock held.
type Backend interface {
	IssueQR(ctx context.Context, name string) (string, error)
	Dispatch(ctx context.Context, name, to, text string) (domain.Receipt, error)
}

// Notifier receives lifecycle events. Notify must not block.
type Notifier interface {
	Notify(ev domain.Event)
}

// Hooks are invoked without any registry lock held
type Hooks struct {
	// OnDisconnected fires after a connected instance lost its connection
	// or a connection attempt failed
	OnDisconnected func(inst domain.Instance, reconnectEligible bool)
	// OnRemoved fires when the logout policy removed an instance
	OnRemoved func(name string)
}

// Options configures a Registry
type Options struct {
	QRTTL        time.Duration
	LogoutPolicy LogoutPolicy
	Notifier     Notifier
	Hooks        Hooks
	TimeNow      func() time.Time // defaults to time.Now
	NewID        func() string    // event ids, defaults to uuid
}

func (o Options) withDefaults() Options {
	o.QRTTL = ClampQRTTL(o.QRTTL)
	if o.LogoutPolicy == "" {
		o.LogoutPolicy = LogoutDelete
	}
	if o.TimeNow == nil {
		o.TimeNow = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}
