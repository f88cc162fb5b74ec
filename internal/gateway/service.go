package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/lifecycle"
	"github.com/MrSnakeDoc/wagate/internal/logger"
	"github.com/MrSnakeDoc/wagate/internal/qr"
	"github.com/MrSnakeDoc/wagate/internal/transport"
)

const counterTimeout = 2 * time.Second

// Counter records per-instance send statistics. Failures are logged only.
type Counter interface {
	IncrementSent(ctx context.Context, name string) error
	DeleteCounters(ctx context.Context, name string) error
}

// Options configures the gateway
type Options struct {
	QR       qr.Options
	Terminal io.Writer // when set, freshly issued codes are printed here
	Counter  Counter   // optional
}

// QRCode is a ticket bound to its rendered image
type QRCode struct {
	domain.QRTicket
	PNG    []byte `json:"-"`
	Base64 string `json:"base64"`
}

// Service is the entry point used by the HTTP layer. It owns the
// side effects the registry delegates: encoding tokens, closing
// connections and recording statistics.
type Service struct {
	registry  *lifecycle.Registry
	transport transport.Transport
	opts      Options
	logger    logger.Logger
}

// New creates the gateway
func New(reg *lifecycle.Registry, tr transport.Transport, opts Options, log logger.Logger) *Service {
	return &Service{
		registry:  reg,
		transport: tr,
		opts:      opts,
		logger:    log,
	}
}

// Hooks wires registry notifications to tr
func Hooks(tr transport.Transport, log logger.Logger) lifecycle.Hooks {
	return lifecycle.Hooks{
		OnDisconnected: func(inst domain.Instance, reconnectEligible bool) {
			if reconnectEligible {
				tr.Reconnect(inst.Name)
			}
		},
		OnRemoved: func(name string) {
			if err := tr.Close(name); err != nil {
				log.Warn("failed to close connection of removed instance",
					logger.String("instance", name),
					logger.Error(err))
			}
		},
	}
}

func (s *Service) Registry() *lifecycle.Registry { return s.registry }

func (s *Service) TransportName() string { return s.transport.Name() }

func (s *Service) Create(name string) (domain.Instance, error) {
	return s.registry.Create(name)
}

func (s *Service) List() []domain.Summary {
	return s.registry.List()
}

func (s *Service) Status(name string) (domain.Instance, error) {
	return s.registry.Get(name)
}

// Connect returns the QR code for name, issuing a new one when needed
func (s *Service) Connect(ctx context.Context, name string) (QRCode, error) {
	ticket, err := s.registry.RequestQR(ctx, name)
	if err != nil {
		if domain.IsNotFound(err) {
			s.release(name)
		}
		return QRCode{}, err
	}

	img, err := qr.Encode([]byte(ticket.Token), s.opts.QR)
	if err != nil {
		return QRCode{}, fmt.Errorf("encode qr for %s: %w", name, err)
	}

	if s.opts.Terminal != nil && !ticket.Reused {
		_, _ = fmt.Fprintf(s.opts.Terminal, "QR code for instance %q (expires %s):\n", name, ticket.ExpiresAt.Format(time.RFC3339))
		qr.PrintTerminal(s.opts.Terminal, ticket.Token)
	}

	return QRCode{QRTicket: ticket, PNG: img, Base64: qr.DataURI(img)}, nil
}

// release drops transport state left behind when name was deleted while
// its QR code was being issued
func (s *Service) release(name string) {
	if _, err := s.registry.Get(name); !domain.IsNotFound(err) {
		return
	}
	if err := s.transport.Close(name); err != nil {
		s.logger.Warn("failed to close transport of deleted instance",
			logger.String("instance", name),
			logger.Error(err))
	}
}

// Delete removes name and releases whatever the transport holds for it
func (s *Service) Delete(name string) error {
	hadConnection, err := s.registry.Delete(name)
	if err != nil {
		return err
	}
	if err := s.transport.Close(name); err != nil {
		s.logger.Warn("failed to close transport",
			logger.String("instance", name),
			logger.Bool("had_connection", hadConnection),
			logger.Error(err))
	}
	if s.opts.Counter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), counterTimeout)
		defer cancel()
		if err := s.opts.Counter.DeleteCounters(ctx, name); err != nil {
			s.logger.Warn("failed to delete counters", logger.String("instance", name), logger.Error(err))
		}
	}
	return nil
}

// Logout ends the remote session of a connected instance. The instance
// then follows the logout policy.
func (s *Service) Logout(ctx context.Context, name string) error {
	inst, err := s.registry.Get(name)
	if err != nil {
		return err
	}
	if inst.State != domain.StateConnected {
		return domain.NotConnected(name, inst.State)
	}
	if err := s.transport.Logout(ctx, name); err != nil {
		if domain.AsError(err) != nil {
			return err
		}
		return domain.TransportError(name, err)
	}
	return s.registry.OnConnectionClosed(name, false, "logout requested")
}

// SendText sends a text message from name
func (s *Service) SendText(ctx context.Context, name, to, text string) (domain.Receipt, error) {
	receipt, err := s.registry.SendMessage(ctx, name, to, text)
	if err != nil {
		return domain.Receipt{}, err
	}
	if s.opts.Counter != nil {
		cctx, cancel := context.WithTimeout(context.Background(), counterTimeout)
		defer cancel()
		if err := s.opts.Counter.IncrementSent(cctx, name); err != nil {
			s.logger.Warn("failed to count message", logger.String("instance", name), logger.Error(err))
		}
	}
	return receipt, nil
}

// Injection names of externally reported connection events
const (
	InjectQRCode     = "qrcode.updated"
	InjectScanned    = "qrcode.scanned"
	InjectConnecting = "connection.connecting"
	InjectOpen       = "connection.open"
	InjectFailed     = "connection.failed"
	InjectClose      = "connection.close"
	InjectError      = "connection.error"
)

// Injection is an externally reported connection event
type Injection struct {
	Event     string `json:"event"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Reconnect bool   `json:"reconnect,omitempty"`
}

// Inject applies an external event to name
func (s *Service) Inject(name string, in Injection) error {
	reg := s.registry
	switch in.Event {
	case InjectQRCode:
		return reg.OnQRCode(name, in.Code)
	case InjectScanned:
		return reg.OnQRScanned(name)
	case InjectConnecting:
		return reg.OnConnecting(name)
	case InjectOpen:
		return reg.OnConnectionOpen(name)
	case InjectFailed:
		return reg.OnConnectionFailed(name, in.Reconnect, in.Reason)
	case InjectClose:
		return reg.OnConnectionClosed(name, in.Reconnect, in.Reason)
	case InjectError:
		reason := in.Reason
		if reason == "" {
			reason = "reported by webhook"
		}
		return reg.OnSetupFailed(name, errors.New(reason))
	default:
		return domain.InvalidArgument(fmt.Sprintf("unknown event %q", in.Event))
	}
}
