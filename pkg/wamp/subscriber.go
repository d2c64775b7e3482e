package wamp

import "context"

// Subscriber is the event sink of a subscription. OnSubscribe is called once
// the router confirmed the subscription, OnEvent for every EVENT in arrival
// order, and OnUnsubscribe when the subscription ends for any reason,
// including session teardown.
//
// topic is the concrete topic of the publication when the router reports it
// (pattern-based subscriptions), otherwise the subscribed topic.
type Subscriber interface {
	OnSubscribe(ctx context.Context, topic URI) error
	OnUnsubscribe(ctx context.Context, topic URI) error
	OnEvent(ctx context.Context, topic URI, event *Event) error
}

// BaseSubscriber implements Subscriber with no-ops, for embedding.
type BaseSubscriber struct{}

func (b *BaseSubscriber) OnSubscribe(ctx context.Context, topic URI) error {
	return nil
}

func (b *BaseSubscriber) OnUnsubscribe(ctx context.Context, topic URI) error {
	return nil
}

func (b *BaseSubscriber) OnEvent(ctx context.Context, topic URI, event *Event) error {
	return nil
}

// EventHandlerFunc adapts a function to a Subscriber that only cares about
// events.
type EventHandlerFunc func(ctx context.Context, topic URI, event *Event) error

func (f EventHandlerFunc) OnSubscribe(ctx context.Context, topic URI) error {
	return nil
}

func (f EventHandlerFunc) OnUnsubscribe(ctx context.Context, topic URI) error {
	return nil
}

func (f EventHandlerFunc) OnEvent(ctx context.Context, topic URI, event *Event) error {
	return f(ctx, topic, event)
}
