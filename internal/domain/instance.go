package domain

import (
	"strings"
	"time"
)

// MaxInstanceNameLength bounds caller supplied names.
const MaxInstanceNameLength = 64

// Instance represents one logical messaging connection endpoint
type Instance struct {
	Name           string    `json:"instanceName"`
	State          State     `json:"state"`
	CreatedAt      time.Time `json:"createdAt"`
	ConnectedAt    time.Time `json:"connectedAt,omitempty"`
	QRToken        string    `json:"-"`
	QRIssuedAt     time.Time `json:"qrIssuedAt,omitempty"`
	LastActivityAt time.Time `json:"lastActivityAt"`

	ErrorReason          string `json:"errorReason,omitempty"`
	LastDisconnectReason string `json:"lastDisconnectReason,omitempty"`
}

// HasQR reports whether an unscanned token is bound to the instance
func (i Instance) HasQR() bool {
	return i.QRToken != ""
}

// QRExpired reports whether the current token is older than ttl at now.
// Instances without a token never expire.
func (i Instance) QRExpired(now time.Time, ttl time.Duration) bool {
	if !i.HasQR() {
		return false
	}
	return now.Sub(i.QRIssuedAt) >= ttl
}

// Summary returns the list view of the instance
func (i Instance) Summary() Summary {
	return Summary{
		Name:           i.Name,
		State:          i.State,
		CreatedAt:      i.CreatedAt,
		ConnectedAt:    i.ConnectedAt,
		LastActivityAt: i.LastActivityAt,
		HasQR:          i.HasQR(),
	}
}

// Summary is the projection returned when listing instances
type Summary struct {
	Name           string    `json:"instanceName"`
	State          State     `json:"state"`
	CreatedAt      time.Time `json:"createdAt"`
	ConnectedAt    time.Time `json:"connectedAt,omitempty"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	HasQR          bool      `json:"hasQr"`
}

// QRTicket is handed out by a successful QR request
type QRTicket struct {
	Name      string    `json:"instanceName"`
	Token     string    `json:"code"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reused    bool      `json:"reused"`
}

// Receipt acknowledges that a message was accepted by the transport.
// Acceptance says nothing about delivery.
type Receipt struct {
	ID         string    `json:"id"`
	Instance   string    `json:"instanceName"`
	To         string    `json:"to"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// ValidateName checks a caller supplied instance name
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return InvalidArgument("instanceName is required")
	}
	if name != strings.TrimSpace(name) {
		return InvalidArgument("instanceName must not have leading or trailing spaces")
	}
	if len(name) > MaxInstanceNameLength {
		return InvalidArgument("instanceName is too long")
	}
	if strings.ContainsAny(name, "/?#") {
		return InvalidArgument("instanceName must not contain '/', '?' or '#'")
	}
	return nil
}
