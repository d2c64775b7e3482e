package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/subutils"
	"go.uber.org/zap"
)

// Subscription is an active topic subscription. Its subscriber sees
// OnSubscribe, then the events in arrival order, then OnUnsubscribe.
type Subscription struct {
	ID         wamp.ID
	Topic      wamp.URI
	Match      wamp.MatchPolicy
	Options    wamp.Dict
	Subscriber wamp.Subscriber

	queue *subutils.AsyncQueueingSubscriber
	sess  *session
}

// Subscribe subscribes to topic. An empty match uses the client's default
// policy. Events are delivered to subscriber from a queue of its own. A
// subscriber that falls a full queue behind holds up event dispatch, unless
// the client drops events when queues are full.
func (c *Client) Subscribe(ctx context.Context, topic wamp.URI, match wamp.MatchPolicy, subscriber wamp.Subscriber, options wamp.Dict) (*Subscription, error) {
	if subscriber == nil {
		return nil, errors.New("subscriber is required")
	}
	if match == "" {
		match = c.cfg.matchPolicy
	}
	if match == "" {
		match = wamp.MatchExact
	}
	if !match.Valid() {
		return nil, fmt.Errorf("invalid match policy %q", match)
	}
	if err := c.checkURI(topic, match == wamp.MatchWildcard); err != nil {
		return nil, err
	}
	s, err := c.established()
	if err != nil {
		return nil, err
	}

	opts := options.Clone()
	if match != wamp.MatchExact {
		opts["match"] = string(match)
	}

	id, err := s.ids.Next()
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		Topic:      topic,
		Match:      match,
		Options:    opts,
		Subscriber: subscriber,
		queue:      subutils.NewAsyncQueueingSubscriber(subscriber, c.cfg.eventQueueSize).WithBlocking(!c.cfg.dropWhenFull).Start(),
		sess:       s,
	}
	req := newPendingRequest(categorySubscribe, id)
	req.subscription = sub

	if _, err := s.request(ctx, req, &wamp.Subscribe{Request: id, Options: opts, Topic: topic}); err != nil {
		_ = sub.queue.Close()
		return nil, err
	}

	c.cfg.logger.Info("Subscribed",
		zap.String("topic", string(topic)), zap.String("match", string(match)), zap.Stringer("subscription", sub.ID))
	if c.cfg.monitor != nil {
		c.cfg.monitor.OnSubscribe(ctx, c, sub)
	}
	return sub, nil
}

// Unsubscribe ends a subscription made by Subscribe on the current session.
func (c *Client) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return wamp.ErrNoSuchSubscription
	}
	s, err := c.established()
	if err != nil {
		return err
	}
	if sub.sess != s || !s.hasSubscription(sub) {
		return fmt.Errorf("%w: %d", wamp.ErrNoSuchSubscription, sub.ID)
	}

	id, err := s.ids.Next()
	if err != nil {
		return err
	}
	req := newPendingRequest(categoryUnsubscribe, id)
	req.subscription = sub

	if _, err := s.request(ctx, req, &wamp.Unsubscribe{Request: id, Subscription: sub.ID}); err != nil {
		if errors.Is(err, wamp.ErrCanceled) || errors.Is(err, wamp.ErrNoSuchSubscription) {
			if s.removeSubscription(sub) {
				s.finishSubscription(sub)
			}
		}
		return err
	}

	c.cfg.logger.Info("Unsubscribed",
		zap.String("topic", string(sub.Topic)), zap.Stringer("subscription", sub.ID))
	if c.cfg.monitor != nil {
		c.cfg.monitor.OnUnsubscribe(ctx, c, sub)
	}
	return nil
}

// Publish sends an event to topic without waiting for the broker.
func (c *Client) Publish(ctx context.Context, topic wamp.URI, options wamp.Dict, args wamp.List, kwargs wamp.Dict) error {
	if err := c.checkURI(topic, false); err != nil {
		return err
	}
	s, err := c.established()
	if err != nil {
		return err
	}

	id, err := s.ids.Next()
	if err != nil {
		return err
	}
	opts := options.Clone()
	delete(opts, "acknowledge")

	return s.send(ctx, &wamp.Publish{Request: id, Options: opts, Topic: topic, Arguments: args, ArgumentsKw: kwargs})
}

// PublishAcknowledged publishes to topic and waits for the broker to confirm,
// returning the publication id.
func (c *Client) PublishAcknowledged(ctx context.Context, topic wamp.URI, options wamp.Dict, args wamp.List, kwargs wamp.Dict) (wamp.ID, error) {
	if err := c.checkURI(topic, false); err != nil {
		return 0, err
	}
	s, err := c.established()
	if err != nil {
		return 0, err
	}

	id, err := s.ids.Next()
	if err != nil {
		return 0, err
	}
	opts := options.Clone()
	opts["acknowledge"] = true

	msg, err := s.request(ctx, newPendingRequest(categoryPublish, id), &wamp.Publish{
		Request:     id,
		Options:     opts,
		Topic:       topic,
		Arguments:   args,
		ArgumentsKw: kwargs,
	})
	if err != nil {
		return 0, err
	}

	published, ok := msg.(*wamp.Published)
	if !ok {
		return 0, fmt.Errorf("unexpected %s in reply to PUBLISH", msg.MessageType())
	}
	return published.Publication, nil
}
