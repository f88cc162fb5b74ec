package lifecycle

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/index"
	"github.com/MrSnakeDoc/wagate/internal/logger"
)

// Registry owns every instance and drives the connection state machine.
// All operations on one instance are serialized by the entry lock; backend
// I/O runs outside of it and the instance is re-validated afterwards.
type Registry struct {
	index   *index.MemoryIndex
	backend Backend
	opts    Options
	logger  logger.Logger
}

// New creates a registry over idx. backend may be nil for registries that
// never issue QR codes or send messages (tests, seeding).
func New(idx *index.MemoryIndex, backend Backend, opts Options, log logger.Logger) *Registry {
	return &Registry{
		index:   idx,
		backend: backend,
		opts:    opts.withDefaults(),
		logger:  log,
	}
}

// QRTTL returns the effective token lifetime
func (r *Registry) QRTTL() time.Duration { return r.opts.QRTTL }

// LogoutPolicy returns the configured policy
func (r *Registry) LogoutPolicy() LogoutPolicy { return r.opts.LogoutPolicy }

// Create registers a new instance in the created state
func (r *Registry) Create(name string) (domain.Instance, error) {
	if err := domain.ValidateName(name); err != nil {
		return domain.Instance{}, err
	}

	now := r.opts.TimeNow()
	inst := domain.Instance{
		Name:           name,
		State:          domain.StateCreated,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if _, ok := r.index.Insert(inst); !ok {
		return domain.Instance{}, domain.AlreadyExists(name)
	}

	r.logger.Info("instance created", logger.String("instance", name))
	r.emit(domain.Event{Type: domain.EventInstanceCreated, Instance: name, To: domain.StateCreated})
	return inst, nil
}

// Get returns the current view of name, expiring a lapsed QR token first
func (r *Registry) Get(name string) (domain.Instance, error) {
	var inst domain.Instance
	err := r.withEntry(name, func(e *index.Entry, _ bool) error {
		inst = e.Instance
		return nil
	})
	return inst, err
}

// List returns a summary of every instance sorted by name
func (r *Registry) List() []domain.Summary {
	entries := r.index.Entries()
	out := make([]domain.Summary, 0, len(entries))
	for _, e := range entries {
		e.Lock()
		if !e.Removed {
			r.expireLocked(e)
			out = append(out, e.Instance.Summary())
		}
		e.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of instances per state
func (r *Registry) Count() map[domain.State]int {
	counts := make(map[domain.State]int, len(domain.States))
	for _, s := range r.List() {
		counts[s.State]++
	}
	return counts
}

// LastChange returns when an instance was last created or removed
func (r *Registry) LastChange() time.Time { return r.index.LastChange() }

// Delete removes name. hadConnection reports whether the instance was
// connecting or connected, in which case the caller must close the
// underlying connection.
func (r *Registry) Delete(name string) (hadConnection bool, err error) {
	var state domain.State
	err = r.withEntry(name, func(e *index.Entry, _ bool) error {
		state = e.Instance.State
		r.index.RemoveLocked(e)
		e.Instance.QRToken = ""
		return nil
	})
	if err != nil {
		return false, err
	}

	r.logger.Info("instance deleted",
		logger.String("instance", name),
		logger.String("state", state.String()))
	r.emit(domain.Event{Type: domain.EventInstanceDeleted, Instance: name, From: state})
	return state == domain.StateConnecting || state == domain.StateConnected, nil
}

// RequestQR returns the live token for name or obtains a new one from the
// backend and moves the instance to qr_ready.
func (r *Registry) RequestQR(ctx context.Context, name string) (domain.QRTicket, error) {
	var (
		ticket domain.QRTicket
		reused bool
	)
	err := r.withEntry(name, func(e *index.Entry, _ bool) error {
		inst := e.Instance
		switch inst.State {
		case domain.StateConnected:
			return domain.AlreadyConnected(name)
		case domain.StateError:
			return domain.TransportError(name, errors.New(inst.ErrorReason))
		case domain.StateConnecting:
			return domain.InvalidTransition(name, inst.State, domain.TriggerRequestQR)
		case domain.StateQRReady:
			ticket, reused = r.ticket(inst, true), true
		}
		return nil
	})
	if err != nil || reused {
		return ticket, err
	}

	if r.backend == nil {
		return domain.QRTicket{}, domain.TransportError(name, errors.New("no transport configured"))
	}

	token, issueErr := r.backend.IssueQR(ctx, name)
	if issueErr != nil {
		return domain.QRTicket{}, r.failIssue(ctx, name, issueErr)
	}

	err = r.withEntry(name, func(e *index.Entry, _ bool) error {
		inst := &e.Instance
		switch inst.State {
		case domain.StateQRReady:
			// a concurrent request or the transport installed a token meanwhile
			ticket = r.ticket(*inst, inst.QRToken != token)
			return nil
		case domain.StateConnected:
			return domain.AlreadyConnected(name)
		}
		if err := r.applyLocked(e, domain.TriggerRequestQR, ""); err != nil {
			return err
		}
		r.installTokenLocked(e, token)
		ticket = r.ticket(*inst, false)
		return nil
	})
	return ticket, err
}

// failIssue records a failed QR issuance. Caller cancellation leaves the
// instance untouched; any other failure is unrecoverable.
func (r *Registry) failIssue(ctx context.Context, name string, cause error) error {
	if ctx.Err() != nil || errors.Is(cause, context.Canceled) {
		return domain.TransportError(name, cause)
	}
	if coded := domain.AsError(cause); coded != nil && coded.Code != domain.CodeTransportError {
		return coded
	}

	err := r.withEntry(name, func(e *index.Entry, _ bool) error {
		if e.Instance.State == domain.StateError {
			return nil
		}
		return r.applyLocked(e, domain.TriggerSetupFailed, cause.Error())
	})
	if domain.IsNotFound(err) {
		return err
	}
	return domain.TransportError(name, cause)
}

// SendMessage dispatches text to the recipient through the backend.
// The instance must be connected.
func (r *Registry) SendMessage(ctx context.Context, name, to, text string) (domain.Receipt, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return domain.Receipt{}, domain.InvalidArgument("number is required")
	}
	if text == "" {
		return domain.Receipt{}, domain.InvalidArgument("text is required")
	}

	err := r.withEntry(name, func(e *index.Entry, _ bool) error {
		if e.Instance.State != domain.StateConnected {
			return domain.NotConnected(name, e.Instance.State)
		}
		return nil
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	if r.backend == nil {
		return domain.Receipt{}, domain.TransportError(name, errors.New("no transport configured"))
	}

	receipt, err := r.backend.Dispatch(ctx, name, to, text)
	if err != nil {
		if coded := domain.AsError(err); coded != nil {
			return domain.Receipt{}, coded
		}
		return domain.Receipt{}, domain.TransportError(name, err)
	}

	// the instance may be gone by now; the message was accepted regardless
	_ = r.withEntry(name, func(e *index.Entry, _ bool) error {
		e.Instance.LastActivityAt = r.opts.TimeNow()
		return nil
	})
	return receipt, nil
}

// Sweep expires every lapsed QR token and returns how many it expired
func (r *Registry) Sweep() int {
	expired := 0
	for _, e := range r.index.Entries() {
		e.Lock()
		if !e.Removed && r.expireLocked(e) {
			expired++
		}
		e.Unlock()
	}
	return expired
}

// withEntry locks name, applies lazy expiry and runs fn. expired tells fn
// whether a token lapsed during this access.
func (r *Registry) withEntry(name string, fn func(e *index.Entry, expired bool) error) error {
	e, ok := r.index.Get(name)
	if !ok {
		return domain.NotFound(name)
	}
	e.Lock()
	defer e.Unlock()
	if e.Removed {
		return domain.NotFound(name)
	}
	expired := r.expireLocked(e)
	return fn(e, expired)
}

func (r *Registry) expireLocked(e *index.Entry) bool {
	inst := &e.Instance
	if inst.State != domain.StateQRReady || !inst.QRExpired(r.opts.TimeNow(), r.opts.QRTTL) {
		return false
	}

	from := inst.State
	inst.State = domain.StateCreated
	inst.QRToken = ""
	inst.QRIssuedAt = time.Time{}

	r.logger.Debug("qr code expired", logger.String("instance", inst.Name))
	r.emit(domain.Event{Type: domain.EventQRExpired, Instance: inst.Name, From: from, To: inst.State})
	return true
}

// applyLocked moves e along trigger and enforces the field invariants
// attached to the target state.
func (r *Registry) applyLocked(e *index.Entry, t domain.Trigger, reason string) error {
	inst := &e.Instance
	from := inst.State
	to, ok := from.Next(t)
	if !ok {
		return domain.InvalidTransition(inst.Name, from, t)
	}

	now := r.opts.TimeNow()
	inst.State = to
	inst.LastActivityAt = now

	if to != domain.StateQRReady {
		inst.QRToken = ""
		inst.QRIssuedAt = time.Time{}
	}
	switch {
	case to == domain.StateConnected:
		inst.ConnectedAt = now
		inst.ErrorReason = ""
	default:
		inst.ConnectedAt = time.Time{}
	}
	switch t {
	case domain.TriggerSetupFailed:
		inst.ErrorReason = reason
	case domain.TriggerFailed, domain.TriggerReconnect, domain.TriggerLoggedOut:
		inst.LastDisconnectReason = reason
	}

	if from != to {
		r.logger.Info("instance state changed",
			logger.String("instance", inst.Name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
			logger.String("trigger", string(t)))
		r.emit(domain.Event{
			Type:     domain.EventStateChanged,
			Instance: inst.Name,
			From:     from,
			To:       to,
			Reason:   reason,
		})
	}
	return nil
}

func (r *Registry) installTokenLocked(e *index.Entry, token string) {
	e.Instance.QRToken = token
	e.Instance.QRIssuedAt = r.opts.TimeNow()
	r.emit(domain.Event{Type: domain.EventQRIssued, Instance: e.Instance.Name, To: e.Instance.State})
}

func (r *Registry) ticket(inst domain.Instance, reused bool) domain.QRTicket {
	return domain.QRTicket{
		Name:      inst.Name,
		Token:     inst.QRToken,
		IssuedAt:  inst.QRIssuedAt,
		ExpiresAt: inst.QRIssuedAt.Add(r.opts.QRTTL),
		Reused:    reused,
	}
}

func (r *Registry) emit(ev domain.Event) {
	if r.opts.Notifier == nil {
		return
	}
	ev.ID = r.opts.NewID()
	if ev.At.IsZero() {
		ev.At = r.opts.TimeNow()
	}
	r.opts.Notifier.Notify(ev)
}
