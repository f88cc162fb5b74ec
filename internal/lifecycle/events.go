package lifecycle

import (
	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/index"
	"github.com/MrSnakeDoc/wagate/internal/logger"
)

// The methods below are the event-injection surface used by transports and
// by the webhook endpoint. Each one re-checks that the instance still exists,
// so callbacks racing a delete return NotFound without side effects.

// OnQRCode installs a fresh token pushed by the transport
func (r *Registry) OnQRCode(name, code string) error {
	if code == "" {
		return domain.InvalidArgument("code is required")
	}
	return r.withEntry(name, func(e *index.Entry, _ bool) error {
		if e.Instance.State == domain.StateQRReady && e.Instance.QRToken == code {
			return nil
		}
		if err := r.applyLocked(e, domain.TriggerQRRotated, ""); err != nil {
			return err
		}
		r.installTokenLocked(e, code)
		return nil
	})
}

// OnQRScanned reports that the current token was scanned
func (r *Registry) OnQRScanned(name string) error {
	return r.withEntry(name, func(e *index.Entry, expired bool) error {
		if expired {
			return domain.Expired(name)
		}
		return r.applyLocked(e, domain.TriggerScanned, "")
	})
}

// OnConnecting reports that the transport started dialing with stored
// credentials or is retrying after a drop
func (r *Registry) OnConnecting(name string) error {
	return r.withEntry(name, func(e *index.Entry, _ bool) error {
		if e.Instance.State == domain.StateConnecting {
			return nil
		}
		return r.applyLocked(e, domain.TriggerConnectAttempt, "")
	})
}

// OnConnectionOpen reports an established session
func (r *Registry) OnConnectionOpen(name string) error {
	return r.withEntry(name, func(e *index.Entry, _ bool) error {
		if e.Instance.State == domain.StateConnected {
			return nil
		}
		return r.applyLocked(e, domain.TriggerOpened, "")
	})
}

// OnConnectionFailed reports that a connection attempt did not succeed.
// The instance moves to disconnected and the failure is handed to the
// OnDisconnected hook so the transport can retry when reconnectEligible.
func (r *Registry) OnConnectionFailed(name string, reconnectEligible bool, reason string) error {
	var (
		snapshot domain.Instance
		failed   bool
	)
	err := r.withEntry(name, func(e *index.Entry, _ bool) error {
		if e.Instance.State == domain.StateDisconnected {
			return nil
		}
		if err := r.applyLocked(e, domain.TriggerFailed, reason); err != nil {
			return err
		}
		failed = true
		snapshot = e.Instance
		return nil
	})
	if err != nil {
		return err
	}
	if failed {
		r.disconnected(snapshot, reconnectEligible)
	}
	return nil
}

// OnConnectionClosed reports a dropped socket. On a connected instance a
// reconnect-eligible drop moves it back to connecting; anything else is a
// logout and is handled according to the logout policy. A drop during a
// connection attempt is a failed attempt.
func (r *Registry) OnConnectionClosed(name string, reconnectEligible bool, reason string) error {
	var (
		snapshot domain.Instance
		fireHook bool
		removed  bool
	)
	err := r.withEntry(name, func(e *index.Entry, _ bool) error {
		inst := &e.Instance
		switch inst.State {
		case domain.StateDisconnected:
			return nil
		case domain.StateConnecting:
			if err := r.applyLocked(e, domain.TriggerFailed, reason); err != nil {
				return err
			}
			fireHook = true
			snapshot = *inst
			return nil
		}

		trigger := domain.TriggerLoggedOut
		if reconnectEligible {
			trigger = domain.TriggerReconnect
		}
		if err := r.applyLocked(e, trigger, reason); err != nil {
			return err
		}
		fireHook = true

		if !reconnectEligible && r.opts.LogoutPolicy == LogoutDelete {
			r.index.RemoveLocked(e)
			removed = true
			r.logger.Info("instance removed after logout", logger.String("instance", name))
			r.emit(domain.Event{
				Type:     domain.EventInstanceDeleted,
				Instance: name,
				From:     inst.State,
				Reason:   "logged out",
			})
		}
		snapshot = *inst
		return nil
	})
	if err != nil {
		return err
	}

	if fireHook {
		r.disconnected(snapshot, reconnectEligible)
	}
	if removed && r.opts.Hooks.OnRemoved != nil {
		r.opts.Hooks.OnRemoved(name)
	}
	return nil
}

func (r *Registry) disconnected(inst domain.Instance, reconnectEligible bool) {
	if r.opts.Hooks.OnDisconnected != nil {
		r.opts.Hooks.OnDisconnected(inst, reconnectEligible)
	}
}

// OnSetupFailed moves the instance into the absorbing error state
func (r *Registry) OnSetupFailed(name string, cause error) error {
	reason := "setup failed"
	if cause != nil {
		reason = cause.Error()
	}
	return r.withEntry(name, func(e *index.Entry, _ bool) error {
		if e.Instance.State == domain.StateError {
			return nil
		}
		r.logger.Warn("instance setup failed",
			logger.String("instance", name),
			logger.String("reason", reason))
		return r.applyLocked(e, domain.TriggerSetupFailed, reason)
	})
}
