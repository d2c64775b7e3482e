package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/o11y"
	"go.uber.org/zap"
)

// Handler implements a registered procedure. Returning a *wamp.CallError
// answers the invocation with that error URI; any other error is reported as
// wamp.error.runtime_error.
type Handler func(ctx context.Context, invocation *wamp.Invocation) (wamp.Payload, error)

// Registration is a procedure registered by this client.
type Registration struct {
	ID        wamp.ID
	Procedure wamp.URI
	Options   wamp.Dict
	Handler   Handler

	sess *session
}

// Call invokes procedure and waits for its result. A router ERROR is
// returned as a *wamp.CallError.
func (c *Client) Call(ctx context.Context, procedure wamp.URI, options wamp.Dict, args wamp.List, kwargs wamp.Dict) (*wamp.Result, error) {
	if err := c.checkURI(procedure, false); err != nil {
		return nil, err
	}
	s, err := c.established()
	if err != nil {
		return nil, err
	}

	ctx, span := c.startSpan(ctx, o11y.SpanCall, o11y.Label{Key: "wamp.procedure", Value: string(procedure)})
	start := time.Now()

	result, err := s.call(ctx, procedure, options, args, kwargs)

	c.cfg.metrics.callDone(ctx, procedure, start, err)
	endSpan(span, err)
	return result, err
}

func (s *session) call(ctx context.Context, procedure wamp.URI, options wamp.Dict, args wamp.List, kwargs wamp.Dict) (*wamp.Result, error) {
	id, err := s.ids.Next()
	if err != nil {
		return nil, err
	}

	msg, err := s.request(ctx, newPendingRequest(categoryCall, id), &wamp.Call{
		Request:     id,
		Options:     options.Clone(),
		Procedure:   procedure,
		Arguments:   args,
		ArgumentsKw: kwargs,
	})
	if err != nil {
		return nil, err
	}

	result, ok := msg.(*wamp.Result)
	if !ok {
		return nil, fmt.Errorf("unexpected %s in reply to CALL", msg.MessageType())
	}
	return result, nil
}

// Register makes procedure callable through the router, served by handler.
func (c *Client) Register(ctx context.Context, procedure wamp.URI, handler Handler, options wamp.Dict) (*Registration, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if err := c.checkURI(procedure, false); err != nil {
		return nil, err
	}
	s, err := c.established()
	if err != nil {
		return nil, err
	}

	id, err := s.ids.Next()
	if err != nil {
		return nil, err
	}

	reg := &Registration{
		Procedure: procedure,
		Options:   options.Clone(),
		Handler:   handler,
		sess:      s,
	}
	req := newPendingRequest(categoryRegister, id)
	req.registration = reg

	if _, err := s.request(ctx, req, &wamp.Register{Request: id, Options: reg.Options, Procedure: procedure}); err != nil {
		return nil, err
	}

	c.cfg.logger.Info("Registered procedure",
		zap.String("procedure", string(procedure)), zap.Stringer("registration", reg.ID))
	if c.cfg.monitor != nil {
		c.cfg.monitor.OnRegister(ctx, c, reg)
	}
	return reg, nil
}

// Unregister removes a registration made by Register on the current session.
func (c *Client) Unregister(ctx context.Context, reg *Registration) error {
	if reg == nil {
		return wamp.ErrNoSuchRegistration
	}
	s, err := c.established()
	if err != nil {
		return err
	}
	if reg.sess != s || !s.hasRegistration(reg) {
		return fmt.Errorf("%w: %d", wamp.ErrNoSuchRegistration, reg.ID)
	}

	id, err := s.ids.Next()
	if err != nil {
		return err
	}
	req := newPendingRequest(categoryUnregister, id)
	req.registration = reg

	if _, err := s.request(ctx, req, &wamp.Unregister{Request: id, Registration: reg.ID}); err != nil {
		// Either way the router no longer routes to it for us.
		if errors.Is(err, wamp.ErrCanceled) || errors.Is(err, wamp.ErrNoSuchRegistration) {
			s.removeRegistration(reg)
		}
		return err
	}

	c.cfg.logger.Info("Unregistered procedure",
		zap.String("procedure", string(reg.Procedure)), zap.Stringer("registration", reg.ID))
	if c.cfg.monitor != nil {
		c.cfg.monitor.OnUnregister(ctx, c, reg)
	}
	return nil
}

// invoke runs the handler for one INVOCATION and sends its YIELD or ERROR.
func (s *session) invoke(reg *Registration, inv *wamp.Invocation) {
	payload, err := s.runHandler(reg, inv)

	var reply wamp.Message
	if err != nil {
		s.logger.Debug("Invocation failed",
			zap.String("procedure", string(reg.Procedure)), zap.Stringer("request", inv.Request), zap.Error(err))
		reply = invocationError(inv.Request, err)
	} else {
		reply = &wamp.Yield{
			Request:     inv.Request,
			Options:     wamp.Dict{},
			Arguments:   payload.Arguments,
			ArgumentsKw: payload.ArgumentsKw,
		}
	}

	err = s.send(s.ctx, reply)
	var serr *wamp.SerializationError
	if errors.As(err, &serr) {
		s.logger.Error("Cannot encode invocation result",
			zap.String("procedure", string(reg.Procedure)), zap.Error(err))
		err = s.send(s.ctx, invocationError(inv.Request, err))
	}
	if err != nil {
		s.logger.Warn("Could not answer invocation",
			zap.String("procedure", string(reg.Procedure)), zap.Stringer("request", inv.Request), zap.Error(err))
	}
}

func (s *session) runHandler(reg *Registration, inv *wamp.Invocation) (payload wamp.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Invocation handler panicked",
				zap.String("procedure", string(reg.Procedure)), zap.Any("panic", r))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return reg.Handler(s.ctx, inv)
}

func invocationError(request wamp.ID, err error) *wamp.Error {
	var callErr *wamp.CallError
	if errors.As(err, &callErr) {
		details := callErr.Details
		if details == nil {
			details = wamp.Dict{}
		}
		return &wamp.Error{
			Type:        wamp.MessageTypeInvocation,
			Request:     request,
			Details:     details,
			Error:       callErr.URI,
			Arguments:   callErr.Arguments,
			ArgumentsKw: callErr.ArgumentsKw,
		}
	}
	return &wamp.Error{
		Type:      wamp.MessageTypeInvocation,
		Request:   request,
		Details:   wamp.Dict{},
		Error:     wamp.ErrorRuntime,
		Arguments: wamp.List{err.Error()},
	}
}
