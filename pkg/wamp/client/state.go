package client

import (
	"github.com/tsarna/wamplink/pkg/wamp"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateAuthenticating
	StateEstablished
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

type messageSet map[wamp.MessageType]struct{}

func newMessageSet(types ...wamp.MessageType) messageSet {
	set := make(messageSet, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

var (
	establishedReceive = newMessageSet(
		wamp.MessageTypeError,
		wamp.MessageTypeResult,
		wamp.MessageTypeRegistered,
		wamp.MessageTypeUnregistered,
		wamp.MessageTypeInvocation,
		wamp.MessageTypeSubscribed,
		wamp.MessageTypeUnsubscribed,
		wamp.MessageTypePublished,
		wamp.MessageTypeEvent,
		wamp.MessageTypeGoodbye,
		wamp.MessageTypeAbort,
	)

	receiveLegal = map[State]messageSet{
		StateAuthenticating: newMessageSet(wamp.MessageTypeWelcome, wamp.MessageTypeAbort, wamp.MessageTypeChallenge),
		StateEstablished:    establishedReceive,
		// Responses to requests sent before our GOODBYE may still arrive.
		StateClosing: establishedReceive,
	}

	sendLegal = map[State]messageSet{
		StateConnecting:     newMessageSet(wamp.MessageTypeHello),
		StateAuthenticating: newMessageSet(wamp.MessageTypeAuthenticate, wamp.MessageTypeAbort),
		StateEstablished: newMessageSet(
			wamp.MessageTypeCall,
			wamp.MessageTypeRegister,
			wamp.MessageTypeUnregister,
			wamp.MessageTypeYield,
			wamp.MessageTypeError,
			wamp.MessageTypeSubscribe,
			wamp.MessageTypeUnsubscribe,
			wamp.MessageTypePublish,
			wamp.MessageTypeGoodbye,
			wamp.MessageTypeAbort,
		),
		StateClosing: newMessageSet(wamp.MessageTypeGoodbye, wamp.MessageTypeAbort),
	}
)

// CanReceive reports whether a message of type t is legal from the router in
// state s.
func (s State) CanReceive(t wamp.MessageType) bool {
	_, ok := receiveLegal[s][t]
	return ok
}

// CanSend reports whether the client may send a message of type t in state s.
func (s State) CanSend(t wamp.MessageType) bool {
	_, ok := sendLegal[s][t]
	return ok
}
