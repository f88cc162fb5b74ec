package domain

import "time"

// EventType classifies lifecycle notifications
type EventType string

const (
	EventInstanceCreated EventType = "instance.created"
	EventInstanceDeleted EventType = "instance.deleted"
	EventQRIssued        EventType = "qr.issued"
	EventQRExpired       EventType = "qr.expired"
	EventStateChanged    EventType = "state.changed"
)

// Event is emitted by the registry whenever an instance changes
type Event struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	Instance string    `json:"instanceName"`
	From     State     `json:"from,omitempty"`
	To       State     `json:"to,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}
