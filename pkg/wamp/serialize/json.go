package serialize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tsarna/wamplink/pkg/wamp"
)

// JSONSerializer implements the "wamp.2.json" encoding.
type JSONSerializer struct{}

func (JSONSerializer) Name() string        { return NameJSON }
func (JSONSerializer) Subprotocol() string { return "wamp.2.json" }
func (JSONSerializer) Binary() bool        { return false }

func (JSONSerializer) Encode(msg wamp.Message) ([]byte, error) {
	data, err := json.Marshal(wamp.ToList(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.MessageType(), err)
	}
	return data, nil
}

// Decode keeps numbers as json.Number until they are normalized, so ids above
// 2^31 and integer arguments survive without a float64 detour.
func (JSONSerializer) Decode(data []byte) (wamp.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var list []any
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after message")
	}
	return decodeList(list)
}
