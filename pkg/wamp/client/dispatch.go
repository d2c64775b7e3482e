package client

import (
	"errors"
	"fmt"

	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/subutils"
	"go.uber.org/zap"
)

// handle routes one decoded message. It runs only on the read loop, which
// makes it the single writer of state changes driven by the router.
func (s *session) handle(msg wamp.Message) {
	state := s.State()
	if !state.CanReceive(msg.MessageType()) {
		s.violate(fmt.Sprintf("unexpected %s while %s", msg.MessageType(), state))
		return
	}

	switch m := msg.(type) {
	case *wamp.Welcome:
		s.handleWelcome(m)
	case *wamp.Challenge:
		s.handleChallenge(m)
	case *wamp.Abort:
		s.handleAbort(m, state)
	case *wamp.Goodbye:
		s.handleGoodbye(m, state)
	case *wamp.Error:
		s.handleError(m)
	case *wamp.Result:
		s.handleResponse(m.Request, categoryCall, m)
	case *wamp.Registered:
		s.handleResponse(m.Request, categoryRegister, m)
	case *wamp.Unregistered:
		s.handleResponse(m.Request, categoryUnregister, m)
	case *wamp.Subscribed:
		s.handleResponse(m.Request, categorySubscribe, m)
	case *wamp.Unsubscribed:
		s.handleResponse(m.Request, categoryUnsubscribe, m)
	case *wamp.Published:
		s.handleResponse(m.Request, categoryPublish, m)
	case *wamp.Event:
		s.handleEvent(m)
	case *wamp.Invocation:
		s.handleInvocation(m)
	case *wamp.Hello, *wamp.Authenticate, *wamp.Publish, *wamp.Subscribe, *wamp.Unsubscribe,
		*wamp.Call, *wamp.Register, *wamp.Unregister, *wamp.Yield:
		s.violate(fmt.Sprintf("router sent client message %s", msg.MessageType()))
	}
}

// violate aborts the session because the router broke the protocol.
func (s *session) violate(reason string) {
	s.logger.Error("Protocol violation", zap.String("reason", reason))
	s.cfg.metrics.violation(s.ctx)
	s.abort(wamp.ErrorProtocolViolation, reason, &wamp.ProtocolViolationError{Reason: reason})
}

func (s *session) handleWelcome(m *wamp.Welcome) {
	s.mu.Lock()
	s.state = StateEstablished
	s.id = m.Session
	s.details = m.Details
	s.established = true
	s.mu.Unlock()

	s.logger.Info("Joined realm",
		zap.String("realm", string(s.cfg.realm)),
		zap.Stringer("session", m.Session),
		zap.Any("router_roles", wamp.RouterRoles(m.Details)))
	close(s.joined)
}

func (s *session) handleChallenge(m *wamp.Challenge) {
	if s.cfg.authenticator == nil {
		reason := fmt.Sprintf("no authenticator for method %q", m.AuthMethod)
		s.logger.Error("Cannot answer challenge", zap.String("authmethod", m.AuthMethod))
		s.abort(wamp.ErrorAuthenticationFailed, reason, &wamp.HandshakeAbortedError{
			Reason:  wamp.ErrorAuthenticationFailed,
			Details: wamp.Dict{"message": reason},
		})
		return
	}

	signature, extra, err := s.cfg.authenticator(s.ctx, m)
	if err != nil {
		reason := err.Error()
		s.logger.Error("Authenticator failed", zap.String("authmethod", m.AuthMethod), zap.Error(err))
		s.abort(wamp.ErrorAuthenticationFailed, reason, &wamp.HandshakeAbortedError{
			Reason:  wamp.ErrorAuthenticationFailed,
			Details: wamp.Dict{"message": reason},
		})
		return
	}
	if extra == nil {
		extra = wamp.Dict{}
	}

	s.logger.Debug("Answering challenge", zap.String("authmethod", m.AuthMethod))
	if err := s.send(s.ctx, &wamp.Authenticate{Signature: signature, Extra: extra}); err != nil {
		s.teardown(err, false)
	}
}

func (s *session) handleAbort(m *wamp.Abort, state State) {
	if state == StateAuthenticating {
		s.teardown(&wamp.HandshakeAbortedError{Reason: m.Reason, Details: m.Details}, false)
		return
	}
	s.teardown(&wamp.RouterClosedError{Reason: m.Reason, Details: m.Details, Abort: true}, false)
}

func (s *session) handleGoodbye(m *wamp.Goodbye, state State) {
	if state == StateClosing {
		// The router acknowledged our GOODBYE.
		s.teardown(nil, false)
		return
	}

	s.logger.Info("Router closed the session", zap.String("reason", string(m.Reason)))
	s.setState(StateClosing)
	reply := &wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.CloseGoodbyeAndOut}
	if err := s.send(s.ctx, reply); err != nil {
		s.logger.Debug("Could not answer GOODBYE", zap.Error(err))
	}
	s.teardown(&wamp.RouterClosedError{Reason: m.Reason, Details: m.Details}, true)
}

func (s *session) handleError(m *wamp.Error) {
	cat, ok := categoryOf(m.Type)
	if !ok || m.Type.Direction() != wamp.DirectionClientToRouter {
		s.violate(fmt.Sprintf("ERROR for request type %s", m.Type))
		return
	}
	s.handleResponse(m.Request, cat, m)
}

func (s *session) handleResponse(id wamp.ID, cat category, msg wamp.Message) {
	req, result := s.pending.take(id, cat)
	switch result {
	case completed:
		req.fulfill(s.install(req, msg))
		s.cfg.metrics.pendingRequests(s.ctx, s.pending.len())
	case discarded:
		s.logger.Debug("Discarding response to canceled request",
			zap.Stringer("request", id), zap.Stringer("type", msg.MessageType()))
		s.release(msg)
	case unknown:
		s.logger.Warn("Response for unknown request",
			zap.Stringer("request", id), zap.Stringer("type", msg.MessageType()))
	case mismatch:
		s.violate(fmt.Sprintf("%s for request %d, which is a pending %s", msg.MessageType(), id, req.category))
	}
}

// install applies a successful response to the session tables before the
// caller sees it.
func (s *session) install(req *pendingRequest, msg wamp.Message) outcome {
	switch m := msg.(type) {
	case *wamp.Subscribed:
		sub := req.subscription
		if sub == nil {
			break
		}
		sub.ID = m.Subscription
		if err := s.addSubscription(sub); err != nil {
			return outcome{err: err}
		}
		_ = sub.queue.OnSubscribe(s.ctx, sub.Topic)
	case *wamp.Registered:
		if reg := req.registration; reg != nil {
			reg.ID = m.Registration
			if err := s.addRegistration(reg); err != nil {
				return outcome{err: err}
			}
		}
	case *wamp.Unsubscribed:
		if sub := req.subscription; sub != nil && s.removeSubscription(sub) {
			s.finishSubscription(sub)
		}
	case *wamp.Unregistered:
		if reg := req.registration; reg != nil {
			s.removeRegistration(reg)
		}
	}
	return outcome{msg: msg}
}

// release undoes a subscription or registration the router completed after
// the caller gave up on it.
func (s *session) release(msg wamp.Message) {
	var undo func(id wamp.ID) wamp.Message
	switch m := msg.(type) {
	case *wamp.Subscribed:
		if s.subscription(m.Subscription) != nil {
			return
		}
		undo = func(id wamp.ID) wamp.Message {
			return &wamp.Unsubscribe{Request: id, Subscription: m.Subscription}
		}
	case *wamp.Registered:
		if s.registration(m.Registration) != nil {
			return
		}
		undo = func(id wamp.ID) wamp.Message {
			return &wamp.Unregister{Request: id, Registration: m.Registration}
		}
	default:
		return
	}

	id, err := s.ids.Next()
	if err != nil {
		return
	}
	s.pending.markCanceled(id)
	if err := s.send(s.ctx, undo(id)); err != nil {
		s.logger.Debug("Could not release abandoned binding", zap.Error(err))
	}
}

func (s *session) handleEvent(m *wamp.Event) {
	sub := s.subscription(m.Subscription)
	if sub == nil {
		s.logger.Warn("Event for unknown subscription",
			zap.Stringer("subscription", m.Subscription), zap.Stringer("publication", m.Publication))
		s.cfg.metrics.eventDropped(s.ctx, "unknown_subscription")
		return
	}

	topic := sub.Topic
	if t, ok := m.Details.String("topic"); ok && t != "" {
		topic = wamp.URI(t)
	}
	s.cfg.metrics.eventReceived(s.ctx, sub.Topic)

	if err := sub.queue.OnEvent(s.ctx, topic, m); err != nil {
		reason := "closed"
		if errors.Is(err, subutils.ErrQueueFull) {
			reason = "queue_full"
		}
		s.logger.Warn("Dropping event",
			zap.String("topic", string(topic)), zap.Stringer("publication", m.Publication), zap.Error(err))
		s.cfg.metrics.eventDropped(s.ctx, reason)
	}
}

func (s *session) handleInvocation(m *wamp.Invocation) {
	reg := s.registration(m.Registration)
	if reg == nil {
		s.logger.Warn("Invocation for unknown registration",
			zap.Stringer("registration", m.Registration), zap.Stringer("request", m.Request))
		reply := &wamp.Error{
			Type:    wamp.MessageTypeInvocation,
			Request: m.Request,
			Details: wamp.Dict{},
			Error:   wamp.ErrorNoSuchRegistration,
		}
		if err := s.send(s.ctx, reply); err != nil {
			s.logger.Debug("Could not answer invocation", zap.Error(err))
		}
		return
	}

	s.cfg.metrics.invoked(s.ctx, reg.Procedure)
	go s.invoke(reg, m)
}
