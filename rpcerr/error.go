package rpcerr

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the runtime can report. Kinds travel over the wire
// as their string value so both peers agree on them.
type Kind string

const (
	MalformedEntity       Kind = "malformed_entity"
	UnknownType           Kind = "unknown_type"
	UnknownFunction       Kind = "unknown_function"
	RegistryClosed        Kind = "registry_closed"
	ChannelClosed         Kind = "channel_closed"
	ConnectionUnavailable Kind = "connection_unavailable"
	ProtocolViolation     Kind = "protocol_violation"
	ExecutionFailed       Kind = "execution_failed" // Plain error returned by a remote handler
)

func (k Kind) Error() string { return string(k) }

// Kinds are usable as errors.Is targets: errors.Is(err, rpcerr.ChannelClosed).
func (k Kind) Is(target error) bool {
	if t, ok := target.(Kind); ok {
		return t == k
	}
	return false
}

type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "lrpc: " + string(e.Kind)
	}
	return "lrpc: " + string(e.Kind) + ": " + e.Message
}
func (e *Error) Unwrap() error { return e.cause }
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind && (t.Message == "" || t.Message == e.Message)
	}
	return false
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to cause. The message is taken from the cause.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return New(kind, "")
	}
	return &Error{Kind: kind, Message: cause.Error(), cause: cause}
}

// KindOf returns the kind of err; errors that carry no kind are ExecutionFailed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ExecutionFailed
}

// From converts any error into an *Error suitable for sending to a peer.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	msg := err.Error()
	if msg == "" {
		msg = "error"
	}
	return &Error{Kind: KindOf(err), Message: msg, cause: err}
}
