package wamp

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned for operations attempted on, or still
	// pending at the end of, a session that has been torn down.
	ErrSessionClosed = errors.New("wamp: session closed")

	// ErrCanceled is returned when the caller withdrew an operation before its
	// response arrived.
	ErrCanceled = errors.New("wamp: operation canceled")

	ErrAlreadyConnected   = errors.New("wamp: session is already connecting or established")
	ErrNotEstablished     = errors.New("wamp: session is not established")
	ErrIDSpaceExhausted   = errors.New("wamp: request id space exhausted")
	ErrDuplicateRequestID = errors.New("wamp: duplicate pending request id")
	ErrNoSuchRegistration = errors.New("wamp: no such registration")
	ErrNoSuchSubscription = errors.New("wamp: no such subscription")
	ErrAlreadySubscribed  = errors.New("wamp: subscription already active")
	ErrInvalidURI         = errors.New("wamp: invalid uri")
)

// TransportError wraps an I/O failure of the underlying transport. It is fatal
// to the session.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("wamp: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SerializationError reports bytes that could not be decoded into, or a
// message that could not be encoded to, the negotiated wire format. Decode
// failures are fatal to the session.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("wamp: serialization error: %v", e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ProtocolViolationError reports a message that is illegal for the current
// session state or that indicates the peers are out of sync.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return "wamp: protocol violation: " + e.Reason
}

// HandshakeAbortedError is returned by Connect when the router answers HELLO
// with ABORT.
type HandshakeAbortedError struct {
	Reason  URI
	Details Dict
}

func (e *HandshakeAbortedError) Error() string {
	if msg, ok := e.Details.String("message"); ok && msg != "" {
		return fmt.Sprintf("wamp: handshake aborted: %s: %s", e.Reason, msg)
	}
	return fmt.Sprintf("wamp: handshake aborted: %s", e.Reason)
}

// RouterClosedError is the terminal error of an established session that the
// router ended with GOODBYE or ABORT.
type RouterClosedError struct {
	Reason  URI
	Details Dict
	Abort   bool
}

func (e *RouterClosedError) Error() string {
	kind := "goodbye"
	if e.Abort {
		kind = "abort"
	}
	if msg, ok := e.Details.String("message"); ok && msg != "" {
		return fmt.Sprintf("wamp: router closed session (%s): %s: %s", kind, e.Reason, msg)
	}
	return fmt.Sprintf("wamp: router closed session (%s): %s", kind, e.Reason)
}

// CallError is an application-level failure. The router returns it for a
// failed CALL, REGISTER, SUBSCRIBE and so on; an invocation handler returns
// it to answer with ERROR under a specific URI.
type CallError struct {
	URI         URI
	Arguments   List
	ArgumentsKw Dict
	Details     Dict
}

// NewCallError builds a CallError with positional arguments.
func NewCallError(uri URI, args ...any) *CallError {
	return &CallError{URI: uri, Arguments: List(args)}
}

func (e *CallError) Error() string {
	if len(e.Arguments) > 0 {
		if msg, ok := e.Arguments[0].(string); ok {
			return fmt.Sprintf("wamp: %s: %s", e.URI, msg)
		}
	}
	return fmt.Sprintf("wamp: %s", e.URI)
}

// Is lets errors.Is match the sentinels for the predefined URIs that have one.
func (e *CallError) Is(target error) bool {
	switch target {
	case ErrNoSuchRegistration:
		return e.URI == ErrorNoSuchRegistration
	case ErrNoSuchSubscription:
		return e.URI == ErrorNoSuchSubscription
	case ErrInvalidURI:
		return e.URI == ErrorInvalidURI
	}
	return false
}

// CallErrorFromMessage converts a router ERROR into a CallError.
func CallErrorFromMessage(msg *Error) *CallError {
	return &CallError{
		URI:         msg.Error,
		Arguments:   msg.Arguments,
		ArgumentsKw: msg.ArgumentsKw,
		Details:     msg.Details,
	}
}
