package client

import (
	"context"

	"github.com/tsarna/wamplink/pkg/wamp"
)

// Connector is the part of a Client a Monitor may act on, for instance to
// re-establish a lost session.
type Connector interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic wamp.URI, match wamp.MatchPolicy, subscriber wamp.Subscriber, options wamp.Dict) (*Subscription, error)
	Register(ctx context.Context, procedure wamp.URI, handler Handler, options wamp.Dict) (*Registration, error)
}

// Monitor receives client lifecycle events. OnDisconnect gets a nil error
// only when the session was closed by Disconnect.
//
// Subscriptions and registrations that end because the session ended are not
// reported through OnUnsubscribe or OnUnregister.
type Monitor interface {
	OnConnect(ctx context.Context, client Connector)
	OnDisconnect(ctx context.Context, client Connector, err error)
	OnSubscribe(ctx context.Context, client Connector, sub *Subscription)
	OnUnsubscribe(ctx context.Context, client Connector, sub *Subscription)
	OnRegister(ctx context.Context, client Connector, reg *Registration)
	OnUnregister(ctx context.Context, client Connector, reg *Registration)
}
