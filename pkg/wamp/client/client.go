package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/o11y"
	"github.com/tsarna/wamplink/pkg/wamp/serialize"
	"github.com/tsarna/wamplink/pkg/wamp/transport"
	"go.uber.org/zap"
)

// Version is reported to routers in the HELLO agent string.
const Version = "0.1.0"

// DefaultAgent is the agent string sent unless the builder overrides it.
const DefaultAgent = "wamplink-go/" + Version

// config is the immutable configuration produced by ClientBuilder.
type config struct {
	// Connection
	url         string
	realm       wamp.URI
	serializer  serialize.Serializer
	dialer      transport.Dialer
	dialTimeout time.Duration

	// Handshake
	roles         []wamp.Role
	agent         string
	helloDetails  wamp.Dict
	authMethods   []string
	authID        string
	authenticator Authenticator

	// Behavior
	goodbyeTimeout   time.Duration
	writeChannelSize int
	eventQueueSize   int
	dropWhenFull     bool
	matchPolicy      wamp.MatchPolicy
	strictURIs       bool

	// Observability
	logger  *zap.Logger
	monitor Monitor
	metrics *clientMetrics
	tracing o11y.TracingProvider
}

// Client is a WAMP client. Each Connect opens a new session; calls made
// between sessions fail with ErrNotEstablished or ErrSessionClosed. A Client
// is safe for concurrent use.
type Client struct {
	cfg *config

	mu   sync.Mutex
	sess *session
}

var _ Connector = (*Client)(nil)

// Connect dials the router, joins the realm and returns once the session is
// established. It fails with ErrAlreadyConnected while a session is
// connecting or open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.sess != nil && c.sess.State() != StateClosed {
		c.mu.Unlock()
		return wamp.ErrAlreadyConnected
	}
	s := newSession(ctx, c)
	c.sess = s
	c.mu.Unlock()

	c.cfg.logger.Info("Connecting to WAMP router",
		zap.String("url", c.cfg.url),
		zap.String("realm", string(c.cfg.realm)),
		zap.String("serializer", c.cfg.serializer.Name()))

	if err := s.open(ctx); err != nil {
		c.cfg.logger.Warn("Failed to join realm", zap.String("realm", string(c.cfg.realm)), zap.Error(err))
		return err
	}

	if c.cfg.monitor != nil {
		c.cfg.monitor.OnConnect(ctx, c)
	}
	return nil
}

// Disconnect closes the session with GOODBYE and waits for the router's
// reply, the goodbye timeout or ctx, whichever comes first. Pending requests
// fail with ErrSessionClosed.
func (c *Client) Disconnect(ctx context.Context) error {
	s := c.current()
	if s == nil {
		return nil
	}

	if s.State() == StateEstablished {
		c.cfg.logger.Info("Leaving realm", zap.String("realm", string(c.cfg.realm)))
		err := s.send(ctx, &wamp.Goodbye{Details: wamp.Dict{}, Reason: wamp.CloseNormal})
		if err == nil {
			timer := time.NewTimer(c.cfg.goodbyeTimeout)
			select {
			case <-s.done:
			case <-timer.C:
				c.cfg.logger.Warn("Router did not answer GOODBYE")
			case <-ctx.Done():
			}
			timer.Stop()
		}
	}

	s.teardown(nil, false)
	<-s.done
	return nil
}

// State returns the state of the current session, or StateClosed if there is
// none.
func (c *Client) State() State {
	s := c.current()
	if s == nil {
		return StateClosed
	}
	return s.State()
}

// SessionID returns the router-assigned id of the current session, or 0
// before WELCOME.
func (c *Client) SessionID() wamp.ID {
	s := c.current()
	if s == nil {
		return 0
	}
	return s.sessionID()
}

// WelcomeDetails returns the details of the router's WELCOME.
func (c *Client) WelcomeDetails() wamp.Dict {
	s := c.current()
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details.Clone()
}

// Done returns a channel that is closed when the current session has ended.
func (c *Client) Done() <-chan struct{} {
	s := c.current()
	if s == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return s.done
}

// Err returns the error that ended the last session: nil while it is open or
// after Disconnect.
func (c *Client) Err() error {
	s := c.current()
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (c *Client) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// established returns the current session if requests may be sent on it.
func (c *Client) established() (*session, error) {
	s := c.current()
	if s == nil {
		return nil, wamp.ErrNotEstablished
	}
	switch state := s.State(); state {
	case StateEstablished:
		return s, nil
	case StateClosed, StateClosing:
		return nil, s.closedErr()
	default:
		return nil, fmt.Errorf("%w: session is %s", wamp.ErrNotEstablished, state)
	}
}

func (c *Client) checkURI(u wamp.URI, wildcard bool) error {
	valid := u.ValidLoose(wildcard)
	if valid && c.cfg.strictURIs {
		if wildcard {
			valid = u.ValidStrictWildcard()
		} else {
			valid = u.ValidStrict()
		}
	}
	if !valid {
		return fmt.Errorf("%w: %q", wamp.ErrInvalidURI, u)
	}
	return nil
}

func (c *Client) startSpan(ctx context.Context, name string, labels ...o11y.Label) (context.Context, o11y.Span) {
	if c.cfg.tracing == nil {
		return ctx, nil
	}
	ctx, span := c.cfg.tracing.StartSpan(ctx, name)
	span.SetAttributes(labels...)
	return ctx, span
}

func endSpan(span o11y.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.SetStatus(o11y.SpanStatusError, err.Error())
	} else {
		span.SetStatus(o11y.SpanStatusOK, "")
	}
	span.End()
}
