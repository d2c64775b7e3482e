package client

import (
	"context"

	"github.com/tsarna/wamplink/pkg/wamp"
)

// Authenticator answers a router CHALLENGE with the signature (and optional
// extra details) of an AUTHENTICATE message.
type Authenticator func(ctx context.Context, challenge *wamp.Challenge) (signature string, extra wamp.Dict, err error)

// TicketAuthenticator answers "ticket" challenges with a fixed ticket.
func TicketAuthenticator(ticket string) Authenticator {
	return func(ctx context.Context, challenge *wamp.Challenge) (string, wamp.Dict, error) {
		return ticket, wamp.Dict{}, nil
	}
}
