package wamp

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allMessages has one populated value for every message kind.
func allMessages() []Message {
	details := Dict{"x": "y"}
	args := List{int64(1), "two", map[string]any{"three": int64(3)}}
	kwargs := Dict{"k": []any{true, 2.5}}

	return []Message{
		&Hello{Realm: "realm1", Details: Dict{"roles": map[string]any{"caller": map[string]any{}}}},
		&Welcome{Session: 42, Details: details},
		&Abort{Details: details, Reason: ErrorNoSuchRealm},
		&Challenge{AuthMethod: "ticket", Extra: Dict{}},
		&Authenticate{Signature: "secret", Extra: Dict{}},
		&Goodbye{Details: Dict{}, Reason: CloseNormal},
		&Error{Type: MessageTypeCall, Request: 7, Details: Dict{}, Error: "com.example.error", Arguments: args, ArgumentsKw: kwargs},
		&Publish{Request: 8, Options: Dict{"acknowledge": true}, Topic: "com.example.topic", Arguments: args},
		&Published{Request: 8, Publication: 99},
		&Subscribe{Request: 9, Options: Dict{"match": "prefix"}, Topic: "com.example"},
		&Subscribed{Request: 9, Subscription: 1001},
		&Unsubscribe{Request: 10, Subscription: 1001},
		&Unsubscribed{Request: 10},
		&Event{Subscription: 1001, Publication: 99, Details: Dict{}, Arguments: args, ArgumentsKw: kwargs},
		&Call{Request: 11, Options: Dict{}, Procedure: "com.example.add", Arguments: List{int64(2), int64(3)}},
		&Result{Request: 11, Details: Dict{}, Arguments: List{int64(5)}},
		&Register{Request: 12, Options: Dict{}, Procedure: "com.example.add"},
		&Registered{Request: 12, Registration: 2002},
		&Unregister{Request: 13, Registration: 2002},
		&Unregistered{Request: 13},
		&Invocation{Request: 14, Registration: 2002, Details: Dict{}, ArgumentsKw: kwargs},
		&Yield{Request: 14, Options: Dict{}, Arguments: List{"ok"}},
	}
}

func TestToListFromListRoundTrip(t *testing.T) {
	for _, msg := range allMessages() {
		t.Run(msg.MessageType().String(), func(t *testing.T) {
			list := ToList(msg)
			require.NotEmpty(t, list)
			assert.Equal(t, int64(msg.MessageType()), list[0])

			decoded, err := FromList(list)
			require.NoError(t, err)
			assert.Equal(t, msg, decoded)
		})
	}
}

func TestAllMessageKindsCovered(t *testing.T) {
	seen := make(map[MessageType]bool)
	for _, msg := range allMessages() {
		seen[msg.MessageType()] = true
	}
	for typ := range messageTypeNames {
		assert.True(t, seen[typ], "no sample message for %s", typ)
	}
}

func TestToListPayloadOmission(t *testing.T) {
	t.Run("no payload", func(t *testing.T) {
		list := ToList(&Call{Request: 1, Procedure: "p"})
		assert.Len(t, list, 4)
	})

	t.Run("args only", func(t *testing.T) {
		list := ToList(&Call{Request: 1, Procedure: "p", Arguments: List{int64(1)}})
		assert.Len(t, list, 5)
	})

	t.Run("kwargs only emits empty args", func(t *testing.T) {
		list := ToList(&Call{Request: 1, Procedure: "p", ArgumentsKw: Dict{"a": int64(1)}})
		require.Len(t, list, 6)
		assert.Equal(t, []any{}, list[4])
	})

	t.Run("nil details encode as empty dict", func(t *testing.T) {
		list := ToList(&Hello{Realm: "r"})
		assert.Equal(t, map[string]any{}, list[2])
	})
}

func TestFromListErrors(t *testing.T) {
	tests := []struct {
		name string
		list []any
	}{
		{"empty", []any{}},
		{"non-integer type", []any{"hello"}},
		{"unknown type", []any{int64(999)}},
		{"too short", []any{int64(MessageTypeResult), int64(1)}},
		{"too long", []any{int64(MessageTypeSubscribed), int64(1), int64(2), int64(3)}},
		{"bad id", []any{int64(MessageTypeSubscribed), "x", int64(2)}},
		{"negative id", []any{int64(MessageTypeSubscribed), int64(-1), int64(2)}},
		{"id too large", []any{int64(MessageTypeSubscribed), int64(MaxID) + 1, int64(2)}},
		{"zero request id", []any{int64(MessageTypeSubscribed), int64(0), int64(2)}},
		{"zero subscription id", []any{int64(MessageTypeSubscribed), int64(1), int64(0)}},
		{"zero session id", []any{int64(MessageTypeWelcome), int64(0), map[string]any{}}},
		{"huge float id", []any{int64(MessageTypeUnsubscribed), 1e300}},
		{"huge negative float id", []any{int64(MessageTypeUnsubscribed), -1e300}},
		{"infinite id", []any{int64(MessageTypeUnsubscribed), math.Inf(1)}},
		{"huge float type", []any{float64(1 << 63)}},
		{"bad details", []any{int64(MessageTypeWelcome), int64(1), "details"}},
		{"bad uri", []any{int64(MessageTypeAbort), map[string]any{}, int64(3)}},
		{"bad args", []any{int64(MessageTypeResult), int64(1), map[string]any{}, "args"}},
		{"fractional id", []any{int64(MessageTypeUnsubscribed), 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromList(tt.list)
			assert.Error(t, err)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, int64(5), Normalize(json.Number("5")))
	assert.Equal(t, 2.5, Normalize(json.Number("2.5")))
	assert.Equal(t, int64(7), Normalize(uint8(7)))
	assert.Equal(t, int64(7), Normalize(int32(7)))
	assert.Equal(t, uint64(1<<63), Normalize(uint64(1<<63)))
	assert.Equal(t, float64(float32(1.5)), Normalize(float32(1.5)))
	assert.Equal(t,
		map[string]any{"a": []any{int64(1)}},
		Normalize(map[any]any{"a": []any{int16(1)}}),
	)
	assert.Equal(t, "s", Normalize("s"))
}

func TestDirection(t *testing.T) {
	assert.Equal(t, DirectionClientToRouter, MessageTypeHello.Direction())
	assert.Equal(t, DirectionClientToRouter, MessageTypeYield.Direction())
	assert.Equal(t, DirectionRouterToClient, MessageTypeWelcome.Direction())
	assert.Equal(t, DirectionRouterToClient, MessageTypeInvocation.Direction())
	assert.Equal(t, DirectionBoth, MessageTypeError.Direction())
	assert.Equal(t, DirectionBoth, MessageTypeGoodbye.Direction())
	assert.Equal(t, Direction(0), MessageType(999).Direction())
}

func TestRequestID(t *testing.T) {
	id, ok := RequestID(&Result{Request: 5})
	assert.True(t, ok)
	assert.Equal(t, ID(5), id)

	_, ok = RequestID(&Event{Subscription: 1})
	assert.False(t, ok)

	_, ok = RequestID(&Welcome{Session: 1})
	assert.False(t, ok)
}
