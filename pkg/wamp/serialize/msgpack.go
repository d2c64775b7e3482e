package serialize

import (
	"bytes"
	"fmt"

	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackSerializer implements the "wamp.2.msgpack" encoding.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Name() string        { return NameMsgpack }
func (MsgpackSerializer) Subprotocol() string { return "wamp.2.msgpack" }
func (MsgpackSerializer) Binary() bool        { return true }

func (MsgpackSerializer) Encode(msg wamp.Message) ([]byte, error) {
	data, err := msgpack.Marshal(wamp.ToList(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.MessageType(), err)
	}
	return data, nil
}

func (MsgpackSerializer) Decode(data []byte) (wamp.Message, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var list []any
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return decodeList(list)
}
