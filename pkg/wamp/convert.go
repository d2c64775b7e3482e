package wamp

import (
	"encoding/json"
	"fmt"
	"math"
)

// ToList converts msg to its positional wire form: the message type code
// followed by the fields the protocol defines for that type.
func ToList(msg Message) []any {
	switch m := msg.(type) {
	case *Hello:
		return []any{int64(MessageTypeHello), string(m.Realm), dictOrEmpty(m.Details)}
	case *Welcome:
		return []any{int64(MessageTypeWelcome), uint64(m.Session), dictOrEmpty(m.Details)}
	case *Abort:
		return []any{int64(MessageTypeAbort), dictOrEmpty(m.Details), string(m.Reason)}
	case *Challenge:
		return []any{int64(MessageTypeChallenge), m.AuthMethod, dictOrEmpty(m.Extra)}
	case *Authenticate:
		return []any{int64(MessageTypeAuthenticate), m.Signature, dictOrEmpty(m.Extra)}
	case *Goodbye:
		return []any{int64(MessageTypeGoodbye), dictOrEmpty(m.Details), string(m.Reason)}
	case *Error:
		out := []any{int64(MessageTypeError), int64(m.Type), uint64(m.Request), dictOrEmpty(m.Details), string(m.Error)}
		return appendPayload(out, m.Arguments, m.ArgumentsKw)
	case *Publish:
		out := []any{int64(MessageTypePublish), uint64(m.Request), dictOrEmpty(m.Options), string(m.Topic)}
		return appendPayload(out, m.Arguments, m.ArgumentsKw)
	case *Published:
		return []any{int64(MessageTypePublished), uint64(m.Request), uint64(m.Publication)}
	case *Subscribe:
		return []any{int64(MessageTypeSubscribe), uint64(m.Request), dictOrEmpty(m.Options), string(m.Topic)}
	case *Subscribed:
		return []any{int64(MessageTypeSubscribed), uint64(m.Request), uint64(m.Subscription)}
	case *Unsubscribe:
		return []any{int64(MessageTypeUnsubscribe), uint64(m.Request), uint64(m.Subscription)}
	case *Unsubscribed:
		return []any{int64(MessageTypeUnsubscribed), uint64(m.Request)}
	case *Event:
		out := []any{int64(MessageTypeEvent), uint64(m.Subscription), uint64(m.Publication), dictOrEmpty(m.Details)}
		return appendPayload(out, m.Arguments, m.ArgumentsKw)
	case *Call:
		out := []any{int64(MessageTypeCall), uint64(m.Request), dictOrEmpty(m.Options), string(m.Procedure)}
		return appendPayload(out, m.Arguments, m.ArgumentsKw)
	case *Result:
		out := []any{int64(MessageTypeResult), uint64(m.Request), dictOrEmpty(m.Details)}
		return appendPayload(out, m.Arguments, m.ArgumentsKw)
	case *Register:
		return []any{int64(MessageTypeRegister), uint64(m.Request), dictOrEmpty(m.Options), string(m.Procedure)}
	case *Registered:
		return []any{int64(MessageTypeRegistered), uint64(m.Request), uint64(m.Registration)}
	case *Unregister:
		return []any{int64(MessageTypeUnregister), uint64(m.Request), uint64(m.Registration)}
	case *Unregistered:
		return []any{int64(MessageTypeUnregistered), uint64(m.Request)}
	case *Invocation:
		out := []any{int64(MessageTypeInvocation), uint64(m.Request), uint64(m.Registration), dictOrEmpty(m.Details)}
		return appendPayload(out, m.Arguments, m.ArgumentsKw)
	case *Yield:
		out := []any{int64(MessageTypeYield), uint64(m.Request), dictOrEmpty(m.Options)}
		return appendPayload(out, m.Arguments, m.ArgumentsKw)
	}
	panic(fmt.Sprintf("wamp: unsupported message %T", msg))
}

// FromList builds a Message from its positional wire form. Values are
// normalized first, so lists decoded by any codec are accepted.
func FromList(list []any) (Message, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	for i := range list {
		list[i] = Normalize(list[i])
	}

	code, err := toInt(list[0])
	if err != nil {
		return nil, fmt.Errorf("invalid message type: %w", err)
	}
	typ := MessageType(code)
	if !typ.Known() {
		return nil, fmt.Errorf("unknown message type %d", code)
	}

	f := &fields{list: list, typ: typ}
	var msg Message

	switch typ {
	case MessageTypeHello:
		f.length(3, 3)
		msg = &Hello{Realm: f.uri(1), Details: f.dict(2)}
	case MessageTypeWelcome:
		f.length(3, 3)
		msg = &Welcome{Session: f.id(1), Details: f.dict(2)}
	case MessageTypeAbort:
		f.length(3, 3)
		msg = &Abort{Details: f.dict(1), Reason: f.uri(2)}
	case MessageTypeChallenge:
		f.length(3, 3)
		msg = &Challenge{AuthMethod: f.str(1), Extra: f.dict(2)}
	case MessageTypeAuthenticate:
		f.length(3, 3)
		msg = &Authenticate{Signature: f.str(1), Extra: f.dict(2)}
	case MessageTypeGoodbye:
		f.length(3, 3)
		msg = &Goodbye{Details: f.dict(1), Reason: f.uri(2)}
	case MessageTypeError:
		f.length(5, 7)
		msg = &Error{
			Type:        f.msgType(1),
			Request:     f.id(2),
			Details:     f.dict(3),
			Error:       f.uri(4),
			Arguments:   f.optList(5),
			ArgumentsKw: f.optDict(6),
		}
	case MessageTypePublish:
		f.length(4, 6)
		msg = &Publish{
			Request:     f.id(1),
			Options:     f.dict(2),
			Topic:       f.uri(3),
			Arguments:   f.optList(4),
			ArgumentsKw: f.optDict(5),
		}
	case MessageTypePublished:
		f.length(3, 3)
		msg = &Published{Request: f.id(1), Publication: f.id(2)}
	case MessageTypeSubscribe:
		f.length(4, 4)
		msg = &Subscribe{Request: f.id(1), Options: f.dict(2), Topic: f.uri(3)}
	case MessageTypeSubscribed:
		f.length(3, 3)
		msg = &Subscribed{Request: f.id(1), Subscription: f.id(2)}
	case MessageTypeUnsubscribe:
		f.length(3, 3)
		msg = &Unsubscribe{Request: f.id(1), Subscription: f.id(2)}
	case MessageTypeUnsubscribed:
		f.length(2, 3)
		msg = &Unsubscribed{Request: f.id(1)}
	case MessageTypeEvent:
		f.length(4, 6)
		msg = &Event{
			Subscription: f.id(1),
			Publication:  f.id(2),
			Details:      f.dict(3),
			Arguments:    f.optList(4),
			ArgumentsKw:  f.optDict(5),
		}
	case MessageTypeCall:
		f.length(4, 6)
		msg = &Call{
			Request:     f.id(1),
			Options:     f.dict(2),
			Procedure:   f.uri(3),
			Arguments:   f.optList(4),
			ArgumentsKw: f.optDict(5),
		}
	case MessageTypeResult:
		f.length(3, 5)
		msg = &Result{
			Request:     f.id(1),
			Details:     f.dict(2),
			Arguments:   f.optList(3),
			ArgumentsKw: f.optDict(4),
		}
	case MessageTypeRegister:
		f.length(4, 4)
		msg = &Register{Request: f.id(1), Options: f.dict(2), Procedure: f.uri(3)}
	case MessageTypeRegistered:
		f.length(3, 3)
		msg = &Registered{Request: f.id(1), Registration: f.id(2)}
	case MessageTypeUnregister:
		f.length(3, 3)
		msg = &Unregister{Request: f.id(1), Registration: f.id(2)}
	case MessageTypeUnregistered:
		f.length(2, 3)
		msg = &Unregistered{Request: f.id(1)}
	case MessageTypeInvocation:
		f.length(4, 6)
		msg = &Invocation{
			Request:      f.id(1),
			Registration: f.id(2),
			Details:      f.dict(3),
			Arguments:    f.optList(4),
			ArgumentsKw:  f.optDict(5),
		}
	case MessageTypeYield:
		f.length(3, 5)
		msg = &Yield{
			Request:     f.id(1),
			Options:     f.dict(2),
			Arguments:   f.optList(3),
			ArgumentsKw: f.optDict(4),
		}
	}

	if f.err != nil {
		return nil, f.err
	}
	return msg, nil
}

// fields reads typed values out of a positional message, keeping the first
// error encountered so that callers can check once at the end.
type fields struct {
	list []any
	typ  MessageType
	err  error
}

func (f *fields) fail(i int, format string, args ...any) {
	if f.err == nil {
		f.err = fmt.Errorf("%s field %d: %s", f.typ, i, fmt.Sprintf(format, args...))
	}
}

func (f *fields) length(lo, hi int) {
	if n := len(f.list); n < lo || n > hi {
		if f.err == nil {
			f.err = fmt.Errorf("%s: expected %d to %d elements, got %d", f.typ, lo, hi, n)
		}
		// Pad so that accessors stay in range; the error is already recorded.
		for len(f.list) < hi {
			f.list = append(f.list, nil)
		}
	}
}

func (f *fields) id(i int) ID {
	n, err := toInt(f.list[i])
	if err != nil {
		f.fail(i, "%v", err)
		return 0
	}
	if n < 0 || !ID(n).Valid() {
		f.fail(i, "id %d out of range", n)
		return 0
	}
	return ID(n)
}

func (f *fields) msgType(i int) MessageType {
	n, err := toInt(f.list[i])
	if err != nil {
		f.fail(i, "%v", err)
		return 0
	}
	return MessageType(n)
}

func (f *fields) str(i int) string {
	s, ok := f.list[i].(string)
	if !ok {
		f.fail(i, "expected string, got %T", f.list[i])
	}
	return s
}

func (f *fields) uri(i int) URI {
	return URI(f.str(i))
}

func (f *fields) dict(i int) Dict {
	switch v := f.list[i].(type) {
	case Dict:
		if v == nil {
			return Dict{}
		}
		return v
	case map[string]any:
		if v == nil {
			return Dict{}
		}
		return Dict(v)
	}
	f.fail(i, "expected dict, got %T", f.list[i])
	return nil
}

func (f *fields) optList(i int) List {
	if i >= len(f.list) || f.list[i] == nil {
		return nil
	}
	var out List
	switch v := f.list[i].(type) {
	case List:
		out = v
	case []any:
		out = List(v)
	default:
		f.fail(i, "expected list, got %T", f.list[i])
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (f *fields) optDict(i int) Dict {
	if i >= len(f.list) || f.list[i] == nil {
		return nil
	}
	d := f.dict(i)
	if len(d) == 0 {
		return nil
	}
	return d
}

func dictOrEmpty(d Dict) map[string]any {
	if d == nil {
		return map[string]any{}
	}
	return map[string]any(d)
}

func appendPayload(out []any, args List, kwargs Dict) []any {
	if len(kwargs) > 0 {
		if args == nil {
			args = List{}
		}
		return append(out, []any(args), map[string]any(kwargs))
	}
	if len(args) > 0 {
		return append(out, []any(args))
	}
	return out
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d overflows", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		// int64 conversion is undefined outside [-2^63, 2^63).
		if n < -(1<<63) || n >= 1<<63 {
			return 0, fmt.Errorf("integer %v overflows", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

// Normalize converts values produced by different decoders into one shape:
// integers become int64 (uint64 only above math.MaxInt64), other numbers
// float64, maps map[string]any and lists []any, recursively.
func Normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return normalizeUint(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return normalizeUint(n)
	case float32:
		return float64(n)
	case Dict:
		return normalizeMap(n)
	case map[string]any:
		return normalizeMap(n)
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, val := range n {
			out[fmt.Sprint(k)] = Normalize(val)
		}
		return out
	case List:
		return normalizeSlice(n)
	case []any:
		return normalizeSlice(n)
	}
	return v
}

func normalizeUint(n uint64) any {
	if n <= math.MaxInt64 {
		return int64(n)
	}
	return n
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = Normalize(val)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, val := range s {
		out[i] = Normalize(val)
	}
	return out
}
