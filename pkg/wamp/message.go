package wamp

import "fmt"

// MessageType is the integer code that starts every WAMP message on the wire.
type MessageType int

const (
	MessageTypeHello        MessageType = 1
	MessageTypeWelcome      MessageType = 2
	MessageTypeAbort        MessageType = 3
	MessageTypeChallenge    MessageType = 4
	MessageTypeAuthenticate MessageType = 5
	MessageTypeGoodbye      MessageType = 6
	MessageTypeError        MessageType = 8

	MessageTypePublish      MessageType = 16
	MessageTypePublished    MessageType = 17
	MessageTypeSubscribe    MessageType = 32
	MessageTypeSubscribed   MessageType = 33
	MessageTypeUnsubscribe  MessageType = 34
	MessageTypeUnsubscribed MessageType = 35
	MessageTypeEvent        MessageType = 36

	MessageTypeCall         MessageType = 48
	MessageTypeResult       MessageType = 50
	MessageTypeRegister     MessageType = 64
	MessageTypeRegistered   MessageType = 65
	MessageTypeUnregister   MessageType = 66
	MessageTypeUnregistered MessageType = 67
	MessageTypeInvocation   MessageType = 68
	MessageTypeYield        MessageType = 70
)

var messageTypeNames = map[MessageType]string{
	MessageTypeHello:        "HELLO",
	MessageTypeWelcome:      "WELCOME",
	MessageTypeAbort:        "ABORT",
	MessageTypeChallenge:    "CHALLENGE",
	MessageTypeAuthenticate: "AUTHENTICATE",
	MessageTypeGoodbye:      "GOODBYE",
	MessageTypeError:        "ERROR",
	MessageTypePublish:      "PUBLISH",
	MessageTypePublished:    "PUBLISHED",
	MessageTypeSubscribe:    "SUBSCRIBE",
	MessageTypeSubscribed:   "SUBSCRIBED",
	MessageTypeUnsubscribe:  "UNSUBSCRIBE",
	MessageTypeUnsubscribed: "UNSUBSCRIBED",
	MessageTypeEvent:        "EVENT",
	MessageTypeCall:         "CALL",
	MessageTypeResult:       "RESULT",
	MessageTypeRegister:     "REGISTER",
	MessageTypeRegistered:   "REGISTERED",
	MessageTypeUnregister:   "UNREGISTER",
	MessageTypeUnregistered: "UNREGISTERED",
	MessageTypeInvocation:   "INVOCATION",
	MessageTypeYield:        "YIELD",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// Known reports whether t is one of the message types this package models.
func (t MessageType) Known() bool {
	_, ok := messageTypeNames[t]
	return ok
}

// Direction describes which peer may originate a message type.
type Direction int

const (
	DirectionClientToRouter Direction = iota + 1
	DirectionRouterToClient
	DirectionBoth
)

// Direction returns the legal direction for messages of type t.
func (t MessageType) Direction() Direction {
	switch t {
	case MessageTypeAbort, MessageTypeGoodbye, MessageTypeError:
		return DirectionBoth
	case MessageTypeHello, MessageTypeAuthenticate, MessageTypePublish, MessageTypeSubscribe,
		MessageTypeUnsubscribe, MessageTypeCall, MessageTypeRegister, MessageTypeUnregister,
		MessageTypeYield:
		return DirectionClientToRouter
	case MessageTypeWelcome, MessageTypeChallenge, MessageTypePublished, MessageTypeSubscribed,
		MessageTypeUnsubscribed, MessageTypeEvent, MessageTypeResult, MessageTypeRegistered,
		MessageTypeUnregistered, MessageTypeInvocation:
		return DirectionRouterToClient
	}
	return 0
}

// Message is implemented by every WAMP message kind in this package and by
// nothing else.
type Message interface {
	MessageType() MessageType
	isMessage()
}

// Payload carries the positional and keyword arguments shared by CALL,
// RESULT, EVENT, INVOCATION, YIELD, PUBLISH and ERROR.
type Payload struct {
	Arguments   List
	ArgumentsKw Dict
}

// Hello is sent by a client to join a realm.
type Hello struct {
	Realm   URI
	Details Dict
}

// Welcome is the router's acceptance of a HELLO.
type Welcome struct {
	Session ID
	Details Dict
}

// Abort ends a session without the GOODBYE exchange.
type Abort struct {
	Details Dict
	Reason  URI
}

// Challenge asks the client to authenticate with AuthMethod.
type Challenge struct {
	AuthMethod string
	Extra      Dict
}

// Authenticate answers a CHALLENGE.
type Authenticate struct {
	Signature string
	Extra     Dict
}

// Goodbye starts or acknowledges an orderly session close.
type Goodbye struct {
	Details Dict
	Reason  URI
}

// Error reports the failure of the request Request of type Type.
type Error struct {
	Type        MessageType
	Request     ID
	Details     Dict
	Error       URI
	Arguments   List
	ArgumentsKw Dict
}

type Publish struct {
	Request     ID
	Options     Dict
	Topic       URI
	Arguments   List
	ArgumentsKw Dict
}

type Published struct {
	Request     ID
	Publication ID
}

type Subscribe struct {
	Request ID
	Options Dict
	Topic   URI
}

type Subscribed struct {
	Request      ID
	Subscription ID
}

type Unsubscribe struct {
	Request      ID
	Subscription ID
}

type Unsubscribed struct {
	Request ID
}

type Event struct {
	Subscription ID
	Publication  ID
	Details      Dict
	Arguments    List
	ArgumentsKw  Dict
}

type Call struct {
	Request     ID
	Options     Dict
	Procedure   URI
	Arguments   List
	ArgumentsKw Dict
}

type Result struct {
	Request     ID
	Details     Dict
	Arguments   List
	ArgumentsKw Dict
}

type Register struct {
	Request   ID
	Options   Dict
	Procedure URI
}

type Registered struct {
	Request      ID
	Registration ID
}

type Unregister struct {
	Request      ID
	Registration ID
}

type Unregistered struct {
	Request ID
}

// Invocation asks a callee to execute the procedure bound to Registration.
// Its Request id is the invocation's own and must be echoed by the YIELD or
// ERROR that answers it.
type Invocation struct {
	Request      ID
	Registration ID
	Details      Dict
	Arguments    List
	ArgumentsKw  Dict
}

type Yield struct {
	Request     ID
	Options     Dict
	Arguments   List
	ArgumentsKw Dict
}

func (*Hello) MessageType() MessageType        { return MessageTypeHello }
func (*Welcome) MessageType() MessageType      { return MessageTypeWelcome }
func (*Abort) MessageType() MessageType        { return MessageTypeAbort }
func (*Challenge) MessageType() MessageType    { return MessageTypeChallenge }
func (*Authenticate) MessageType() MessageType { return MessageTypeAuthenticate }
func (*Goodbye) MessageType() MessageType      { return MessageTypeGoodbye }
func (*Error) MessageType() MessageType        { return MessageTypeError }
func (*Publish) MessageType() MessageType      { return MessageTypePublish }
func (*Published) MessageType() MessageType    { return MessageTypePublished }
func (*Subscribe) MessageType() MessageType    { return MessageTypeSubscribe }
func (*Subscribed) MessageType() MessageType   { return MessageTypeSubscribed }
func (*Unsubscribe) MessageType() MessageType  { return MessageTypeUnsubscribe }
func (*Unsubscribed) MessageType() MessageType { return MessageTypeUnsubscribed }
func (*Event) MessageType() MessageType        { return MessageTypeEvent }
func (*Call) MessageType() MessageType         { return MessageTypeCall }
func (*Result) MessageType() MessageType       { return MessageTypeResult }
func (*Register) MessageType() MessageType     { return MessageTypeRegister }
func (*Registered) MessageType() MessageType   { return MessageTypeRegistered }
func (*Unregister) MessageType() MessageType   { return MessageTypeUnregister }
func (*Unregistered) MessageType() MessageType { return MessageTypeUnregistered }
func (*Invocation) MessageType() MessageType   { return MessageTypeInvocation }
func (*Yield) MessageType() MessageType        { return MessageTypeYield }

func (*Hello) isMessage()        {}
func (*Welcome) isMessage()      {}
func (*Abort) isMessage()        {}
func (*Challenge) isMessage()    {}
func (*Authenticate) isMessage() {}
func (*Goodbye) isMessage()      {}
func (*Error) isMessage()        {}
func (*Publish) isMessage()      {}
func (*Published) isMessage()    {}
func (*Subscribe) isMessage()    {}
func (*Subscribed) isMessage()   {}
func (*Unsubscribe) isMessage()  {}
func (*Unsubscribed) isMessage() {}
func (*Event) isMessage()        {}
func (*Call) isMessage()         {}
func (*Result) isMessage()       {}
func (*Register) isMessage()     {}
func (*Registered) isMessage()   {}
func (*Unregister) isMessage()   {}
func (*Unregistered) isMessage() {}
func (*Invocation) isMessage()   {}
func (*Yield) isMessage()        {}

// RequestID returns the request id carried by msg, if the message kind has one.
// For EVENT no request id exists; WELCOME carries a session id which is not
// a request id either.
func RequestID(msg Message) (ID, bool) {
	switch m := msg.(type) {
	case *Error:
		return m.Request, true
	case *Publish:
		return m.Request, true
	case *Published:
		return m.Request, true
	case *Subscribe:
		return m.Request, true
	case *Subscribed:
		return m.Request, true
	case *Unsubscribe:
		return m.Request, true
	case *Unsubscribed:
		return m.Request, true
	case *Call:
		return m.Request, true
	case *Result:
		return m.Request, true
	case *Register:
		return m.Request, true
	case *Registered:
		return m.Request, true
	case *Unregister:
		return m.Request, true
	case *Unregistered:
		return m.Request, true
	case *Invocation:
		return m.Request, true
	case *Yield:
		return m.Request, true
	}
	return 0, false
}
