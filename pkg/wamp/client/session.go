package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/transport"
	"go.uber.org/zap"
)

// flushTimeout bounds how long teardown waits for a final ABORT or GOODBYE
// to reach the transport.
const flushTimeout = time.Second

// session is one WAMP session: everything from HELLO until teardown. A
// Client creates a fresh session for every Connect.
type session struct {
	cfg    *config
	client *Client
	logger *zap.Logger

	ids     wamp.IDAllocator
	pending *pendingRegistry

	// mu guards the fields below it.
	mu          sync.Mutex
	state       State
	transport   transport.Transport
	id          wamp.ID
	details     wamp.Dict
	err         error
	established bool

	// tablesMu guards the binding tables. Once tablesClosed is set no
	// binding can be added.
	tablesMu      sync.RWMutex
	subscriptions map[wamp.ID]*Subscription
	registrations map[wamp.ID]*Registration
	tablesClosed  bool

	ctx        context.Context
	cancel     context.CancelFunc
	writeCh    chan []byte
	flushCh    chan chan struct{}
	writerDone chan struct{}
	joined     chan struct{}
	done       chan struct{}
	loops      sync.WaitGroup
	tearing    atomic.Bool
}

func newSession(ctx context.Context, c *Client) *session {
	s := &session{
		cfg:           c.cfg,
		client:        c,
		logger:        c.cfg.logger,
		pending:       newPendingRegistry(),
		state:         StateConnecting,
		subscriptions: make(map[wamp.ID]*Subscription),
		registrations: make(map[wamp.ID]*Registration),
		writeCh:       make(chan []byte, c.cfg.writeChannelSize),
		flushCh:       make(chan chan struct{}),
		writerDone:    make(chan struct{}),
		joined:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	// The session outlives the context Connect was called with.
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	return s
}

// open dials the router and performs the opening handshake. It returns once
// the session is established or has been torn down.
func (s *session) open(ctx context.Context) error {
	dialCtx, dialCancel := context.WithTimeout(ctx, s.cfg.dialTimeout)
	defer dialCancel()
	stop := context.AfterFunc(s.ctx, dialCancel)
	defer stop()

	tr, err := s.cfg.dialer.Dial(dialCtx, s.cfg.url, s.cfg.serializer)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", wamp.ErrCanceled, ctx.Err())
		} else {
			err = &wamp.TransportError{Err: err}
		}
		s.teardown(err, false)
		<-s.done
		return err
	}

	s.mu.Lock()
	if s.tearing.Load() {
		s.mu.Unlock()
		_ = tr.Close()
		return s.closedErr()
	}
	s.transport = tr
	s.mu.Unlock()

	s.loops.Add(2)
	go s.readLoop()
	go s.writeLoop()

	hello := &wamp.Hello{Realm: s.cfg.realm, Details: s.helloDetails()}
	if err := s.send(ctx, hello); err != nil {
		s.teardown(err, false)
		<-s.done
		return s.terminalErr()
	}

	select {
	case <-s.joined:
		return nil
	case <-s.done:
		return s.terminalErr()
	case <-ctx.Done():
		s.teardown(fmt.Errorf("%w: %w", wamp.ErrCanceled, ctx.Err()), false)
		<-s.done
		return s.terminalErr()
	}
}

func (s *session) helloDetails() wamp.Dict {
	details := s.cfg.helloDetails.Clone()
	details["roles"] = wamp.RolesDetails(s.cfg.roles)
	if s.cfg.agent != "" {
		details["agent"] = s.cfg.agent
	}
	if len(s.cfg.authMethods) > 0 {
		methods := make(wamp.List, len(s.cfg.authMethods))
		for i, m := range s.cfg.authMethods {
			methods[i] = m
		}
		details["authmethods"] = methods
	}
	if s.cfg.authID != "" {
		details["authid"] = s.cfg.authID
	}
	return details
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// terminalErr is the error the session ended with, or ErrSessionClosed if it
// was closed by Disconnect.
func (s *session) terminalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return wamp.ErrSessionClosed
}

// closedErr is returned for operations rejected because the session ended.
func (s *session) closedErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closedError(s.err)
}

func closedError(cause error) error {
	if cause == nil || errors.Is(cause, wamp.ErrSessionClosed) {
		return wamp.ErrSessionClosed
	}
	return fmt.Errorf("%w: %w", wamp.ErrSessionClosed, cause)
}

// send encodes msg and queues it for the writer. Sending a HELLO or GOODBYE
// moves the session to its next state.
func (s *session) send(ctx context.Context, msg wamp.Message) error {
	frame, err := s.cfg.serializer.Encode(msg)
	if err != nil {
		return &wamp.SerializationError{Err: err}
	}

	if err := s.transition(msg.MessageType()); err != nil {
		return err
	}

	select {
	case s.writeCh <- frame:
		if ce := s.logger.Check(zap.DebugLevel, "Sent message"); ce != nil {
			ce.Write(zap.Stringer("type", msg.MessageType()), zap.Int("bytes", len(frame)))
		}
		return nil
	case <-s.ctx.Done():
		return s.closedErr()
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", wamp.ErrCanceled, ctx.Err())
	}
}

func (s *session) transition(t wamp.MessageType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanSend(t) {
		switch s.state {
		case StateClosed:
			return closedError(s.err)
		case StateClosing:
			return fmt.Errorf("%w: session is closing", wamp.ErrSessionClosed)
		}
		return fmt.Errorf("%w: cannot send %s while %s", wamp.ErrNotEstablished, t, s.state)
	}

	switch t {
	case wamp.MessageTypeHello:
		s.state = StateAuthenticating
	case wamp.MessageTypeGoodbye:
		if s.state == StateEstablished {
			s.state = StateClosing
		}
	}
	return nil
}

// flush waits until every frame queued so far has been handed to the
// transport.
func (s *session) flush(timeout time.Duration) {
	ack := make(chan struct{})
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.flushCh <- ack:
	case <-s.writerDone:
		return
	case <-timer.C:
		return
	}
	select {
	case <-ack:
	case <-s.writerDone:
	case <-timer.C:
	}
}

func (s *session) writeLoop() {
	defer s.loops.Done()
	defer close(s.writerDone)

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.writeCh:
			if !s.write(frame) {
				return
			}
		case ack := <-s.flushCh:
			for drained := false; !drained; {
				select {
				case frame := <-s.writeCh:
					if !s.write(frame) {
						close(ack)
						return
					}
				default:
					drained = true
				}
			}
			close(ack)
		}
	}
}

func (s *session) write(frame []byte) bool {
	if err := s.transport.Send(s.ctx, frame); err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error("Failed to write to transport", zap.Error(err))
			s.teardown(&wamp.TransportError{Err: err}, false)
		}
		return false
	}
	return true
}

func (s *session) readLoop() {
	defer s.loops.Done()

	for {
		if s.ctx.Err() != nil {
			return
		}

		frame, err := s.transport.Recv(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info("Router closed the connection")
			} else {
				s.logger.Error("Failed to read from transport", zap.Error(err))
			}
			s.teardown(&wamp.TransportError{Err: err}, false)
			return
		}

		msg, err := s.cfg.serializer.Decode(frame)
		if err != nil {
			s.logger.Error("Failed to decode message", zap.Error(err), zap.Int("bytes", len(frame)))
			s.cfg.metrics.violation(s.ctx)
			s.abort(wamp.ErrorProtocolViolation, "undecodable message", &wamp.SerializationError{Err: err})
			return
		}

		if ce := s.logger.Check(zap.DebugLevel, "Received message"); ce != nil {
			ce.Write(zap.Stringer("type", msg.MessageType()))
		}
		s.handle(msg)
	}
}

// abort sends a best-effort ABORT and tears the session down with cause.
func (s *session) abort(reason wamp.URI, message string, cause error) {
	msg := &wamp.Abort{Details: wamp.Dict{"message": message}, Reason: reason}
	if err := s.send(s.ctx, msg); err != nil {
		s.logger.Debug("Could not send ABORT", zap.Error(err))
	}
	s.teardown(cause, true)
}

// teardown ends the session with cause, nil meaning a clean close. Only the
// first call has any effect.
func (s *session) teardown(cause error, flush bool) {
	if !s.tearing.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	s.err = cause
	wasEstablished := s.established
	s.mu.Unlock()

	if flush {
		s.flush(flushTimeout)
	}

	s.cancel()

	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()
	if tr != nil {
		if err := tr.Close(); err != nil {
			s.logger.Debug("Error closing transport", zap.Error(err))
		}
	}

	if n := s.pending.drain(closedError(cause)); n > 0 {
		s.logger.Debug("Failed pending requests", zap.Int("count", n))
	}
	s.cfg.metrics.pendingRequests(s.ctx, 0)

	s.tablesMu.Lock()
	subs := s.subscriptions
	s.subscriptions = make(map[wamp.ID]*Subscription)
	s.registrations = make(map[wamp.ID]*Registration)
	s.tablesClosed = true
	s.tablesMu.Unlock()

	s.setState(StateClosed)

	if cause == nil {
		s.logger.Info("WAMP session closed", zap.Stringer("session", s.sessionID()))
	} else {
		s.logger.Warn("WAMP session ended", zap.Stringer("session", s.sessionID()), zap.Error(cause))
	}

	for _, sub := range subs {
		s.finishSubscription(sub)
	}

	go func() {
		s.loops.Wait()
		close(s.done)
		if wasEstablished && s.cfg.monitor != nil {
			s.cfg.monitor.OnDisconnect(context.Background(), s.client, cause)
		}
	}()
}

func (s *session) sessionID() wamp.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// request registers req and sends msg, then waits for the response.
func (s *session) request(ctx context.Context, req *pendingRequest, msg wamp.Message) (wamp.Message, error) {
	if err := s.pending.add(req); err != nil {
		if errors.Is(err, wamp.ErrDuplicateRequestID) {
			s.logger.Error("Request id already pending", zap.Stringer("request", req.id), zap.Stringer("category", req.category))
		}
		return nil, err
	}
	s.cfg.metrics.pendingRequests(s.ctx, s.pending.len())

	if err := s.send(ctx, msg); err != nil {
		s.pending.remove(req.id)
		return nil, err
	}
	return s.await(ctx, req)
}

func (s *session) await(ctx context.Context, req *pendingRequest) (wamp.Message, error) {
	var out outcome
	select {
	case out = <-req.done:
	case <-ctx.Done():
		if s.pending.cancel(req.id) {
			s.logger.Debug("Request canceled", zap.Stringer("request", req.id), zap.Stringer("category", req.category))
			return nil, fmt.Errorf("%w: %w", wamp.ErrCanceled, ctx.Err())
		}
		out = <-req.done
	}

	if out.err != nil {
		return nil, out.err
	}
	if e, ok := out.msg.(*wamp.Error); ok {
		return nil, wamp.CallErrorFromMessage(e)
	}
	return out.msg, nil
}

func (s *session) subscription(id wamp.ID) *Subscription {
	s.tablesMu.RLock()
	defer s.tablesMu.RUnlock()
	return s.subscriptions[id]
}

func (s *session) hasSubscription(sub *Subscription) bool {
	return s.subscription(sub.ID) == sub
}

func (s *session) addSubscription(sub *Subscription) error {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	if s.tablesClosed {
		return s.closedErr()
	}
	if _, exists := s.subscriptions[sub.ID]; exists {
		return fmt.Errorf("%w: %d", wamp.ErrAlreadySubscribed, sub.ID)
	}
	s.subscriptions[sub.ID] = sub
	return nil
}

// removeSubscription reports whether sub was still in the table.
func (s *session) removeSubscription(sub *Subscription) bool {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	if s.subscriptions[sub.ID] != sub {
		return false
	}
	delete(s.subscriptions, sub.ID)
	return true
}

// finishSubscription delivers whatever is still queued for sub and then its
// OnUnsubscribe, without blocking the caller.
func (s *session) finishSubscription(sub *Subscription) {
	go func() {
		_ = sub.queue.Close()
		if err := sub.Subscriber.OnUnsubscribe(context.Background(), sub.Topic); err != nil {
			s.logger.Warn("Subscriber failed to unsubscribe", zap.String("topic", string(sub.Topic)), zap.Error(err))
		}
	}()
}

func (s *session) registration(id wamp.ID) *Registration {
	s.tablesMu.RLock()
	defer s.tablesMu.RUnlock()
	return s.registrations[id]
}

func (s *session) hasRegistration(reg *Registration) bool {
	return s.registration(reg.ID) == reg
}

func (s *session) addRegistration(reg *Registration) error {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	if s.tablesClosed {
		return s.closedErr()
	}
	if old, exists := s.registrations[reg.ID]; exists {
		s.logger.Warn("Router reused a registration id",
			zap.Stringer("registration", reg.ID),
			zap.String("old_procedure", string(old.Procedure)),
			zap.String("procedure", string(reg.Procedure)))
	}
	s.registrations[reg.ID] = reg
	return nil
}

func (s *session) removeRegistration(reg *Registration) bool {
	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	if s.registrations[reg.ID] != reg {
		return false
	}
	delete(s.registrations, reg.ID)
	return true
}
