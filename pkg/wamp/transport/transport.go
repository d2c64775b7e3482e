// Package transport carries serialized WAMP messages between a client and a
// router. A Transport moves whole frames; framing and serialization are
// chosen by the Dialer and the Serializer it is given.
package transport

import (
	"context"

	"github.com/tsarna/wamplink/pkg/wamp/serialize"
)

// Transport is a bidirectional, message-framed connection. Send may be called
// concurrently with Recv, but each of them is only called from one goroutine
// at a time.
type Transport interface {
	// Send writes one complete frame.
	Send(ctx context.Context, frame []byte) error
	// Recv blocks until a complete frame arrives. It returns io.EOF once the
	// peer has closed the connection in an orderly way.
	Recv(ctx context.Context) ([]byte, error)
	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Dialer opens a Transport to a router endpoint, negotiating the given
// serializer.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, s serialize.Serializer) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint string, s serialize.Serializer) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string, s serialize.Serializer) (Transport, error) {
	return f(ctx, endpoint, s)
}
