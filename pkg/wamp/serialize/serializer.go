// Package serialize provides the codecs that turn WAMP messages into frames
// and back. The client selects one at connect time and never looks inside the
// bytes itself.
package serialize

import (
	"fmt"
	"strings"

	"github.com/tsarna/wamplink/pkg/wamp"
)

// Serializer encodes and decodes whole WAMP messages.
type Serializer interface {
	// Name is the short identity used in configuration ("json", "msgpack").
	Name() string
	// Subprotocol is the WebSocket subprotocol negotiated for this codec.
	Subprotocol() string
	// Binary reports whether frames must be sent as binary rather than text.
	Binary() bool

	Encode(msg wamp.Message) ([]byte, error)
	Decode(data []byte) (wamp.Message, error)
}

const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// ByName returns the serializer registered under name. The empty name
// selects JSON.
func ByName(name string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameJSON:
		return JSONSerializer{}, nil
	case NameMsgpack, "messagepack":
		return MsgpackSerializer{}, nil
	}
	return nil, fmt.Errorf("unsupported serializer %q", name)
}

// Names lists the supported serializer identities.
func Names() []string {
	return []string{NameJSON, NameMsgpack}
}

func decodeList(list []any) (wamp.Message, error) {
	msg, err := wamp.FromList(list)
	if err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return msg, nil
}
