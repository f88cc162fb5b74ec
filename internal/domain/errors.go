package domain

import (
	"errors"
	"fmt"
)

const (
	CodeInvalidArgument   = "invalid_argument"
	CodeNotFound          = "not_found"
	CodeAlreadyExists     = "already_exists"
	CodeAlreadyConnected  = "already_connected"
	CodeNotConnected      = "not_connected"
	CodeInvalidTransition = "invalid_transition"
	CodeExpired           = "expired"
	CodeTransportError    = "transport_error"
)

// Error is a coded lifecycle error. Code is machine readable, Message is
// safe to show to API consumers and Inner never is.
type Error struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Instance string `json:"instanceName,omitempty"`
	State    State  `json:"state,omitempty"`
	Inner    error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Inner }

func InvalidArgument(msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: msg}
}

func NotFound(name string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("instance %q not found", name), Instance: name}
}

func AlreadyExists(name string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf("instance %q already exists", name), Instance: name}
}

func AlreadyConnected(name string) *Error {
	return &Error{
		Code:     CodeAlreadyConnected,
		Message:  fmt.Sprintf("instance %q is already connected", name),
		Instance: name,
		State:    StateConnected,
	}
}

func NotConnected(name string, state State) *Error {
	return &Error{
		Code:     CodeNotConnected,
		Message:  fmt.Sprintf("instance %q is not connected (state %s)", name, state),
		Instance: name,
		State:    state,
	}
}

func InvalidTransition(name string, state State, t Trigger) *Error {
	return &Error{
		Code:     CodeInvalidTransition,
		Message:  fmt.Sprintf("%s is not allowed in state %s", t, state),
		Instance: name,
		State:    state,
	}
}

func Expired(name string) *Error {
	return &Error{Code: CodeExpired, Message: fmt.Sprintf("qr code for %q has expired", name), Instance: name}
}

func TransportError(name string, inner error) *Error {
	msg := "transport failure"
	if inner != nil {
		msg = inner.Error()
	}
	return &Error{Code: CodeTransportError, Message: msg, Instance: name, Inner: inner}
}

// AsError returns the coded error inside err, or nil
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// CodeOf returns the code of err, or "" for uncoded errors
func CodeOf(err error) string {
	if e := AsError(err); e != nil {
		return e.Code
	}
	return ""
}

func IsInvalidArgument(err error) bool   { return CodeOf(err) == CodeInvalidArgument }
func IsNotFound(err error) bool          { return CodeOf(err) == CodeNotFound }
func IsAlreadyExists(err error) bool     { return CodeOf(err) == CodeAlreadyExists }
func IsAlreadyConnected(err error) bool  { return CodeOf(err) == CodeAlreadyConnected }
func IsNotConnected(err error) bool      { return CodeOf(err) == CodeNotConnected }
func IsInvalidTransition(err error) bool { return CodeOf(err) == CodeInvalidTransition }
func IsExpired(err error) bool           { return CodeOf(err) == CodeExpired }
func IsTransportError(err error) bool    { return CodeOf(err) == CodeTransportError }
