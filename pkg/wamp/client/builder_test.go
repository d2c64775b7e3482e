package client

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/o11y"
	"github.com/tsarna/wamplink/pkg/wamp/serialize"
	"github.com/tsarna/wamplink/pkg/wamp/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestClientBuilder_Defaults(t *testing.T) {
	c, err := NewClient().
		WithURL("ws://localhost:8080/ws").
		WithRealm("realm1").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/ws", c.cfg.url)
	assert.Equal(t, wamp.URI("realm1"), c.cfg.realm)
	assert.Equal(t, "json", c.cfg.serializer.Name())
	assert.Equal(t, 30*time.Second, c.cfg.dialTimeout)
	assert.Equal(t, 5*time.Second, c.cfg.goodbyeTimeout)
	assert.Equal(t, 100, c.cfg.writeChannelSize)
	assert.Equal(t, 100, c.cfg.eventQueueSize)
	assert.Equal(t, wamp.ClientRoles, c.cfg.roles)
	assert.Equal(t, DefaultAgent, c.cfg.agent)
	assert.Equal(t, wamp.MatchExact, c.cfg.matchPolicy)
	assert.NotNil(t, c.cfg.logger)
	assert.Nil(t, c.cfg.monitor)

	// Without a custom dialer the WebSocket dialer is used.
	_, ok := c.cfg.dialer.(*transport.WebSocketDialer)
	assert.True(t, ok)

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, wamp.ID(0), c.SessionID())
	assert.Nil(t, c.Err())
}

func TestClientBuilder_AllOptions(t *testing.T) {
	logger := zaptest.NewLogger(t)
	monitor := NewBindingTracker()
	metrics := o11y.NewStandaloneMetricsProvider(nil, nil)
	authenticator := func(ctx context.Context, ch *wamp.Challenge) (string, wamp.Dict, error) {
		return "secret", nil, nil
	}

	c, err := NewClient().
		WithURL("wss://router.example.com/ws").
		WithRealm("com.example.realm").
		WithSerializer(serialize.MsgpackSerializer{}).
		WithLogger(logger).
		WithDialTimeout(3 * time.Second).
		WithGoodbyeTimeout(time.Second).
		WithWriteChannelSize(10).
		WithEventQueueSize(20).
		WithDropEventsWhenFull(true).
		WithRoles(wamp.RoleCaller, wamp.RoleSubscriber).
		WithAgent("test-agent").
		WithHelloDetails(wamp.Dict{"custom": true}).
		WithAuthMethods("wampcra", "ticket").
		WithAuthID("joe").
		WithAuthenticator(authenticator).
		WithHeader("X-API-Key", "key123").
		WithAuthorization("Bearer token").
		WithMatchPolicy(wamp.MatchPrefix).
		WithStrictURIs(true).
		WithMonitor(monitor).
		WithMetrics(metrics).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "msgpack", c.cfg.serializer.Name())
	assert.Same(t, logger, c.cfg.logger)
	assert.Equal(t, 3*time.Second, c.cfg.dialTimeout)
	assert.Equal(t, time.Second, c.cfg.goodbyeTimeout)
	assert.Equal(t, 10, c.cfg.writeChannelSize)
	assert.Equal(t, 20, c.cfg.eventQueueSize)
	assert.True(t, c.cfg.dropWhenFull)
	assert.Equal(t, []wamp.Role{wamp.RoleCaller, wamp.RoleSubscriber}, c.cfg.roles)
	assert.Equal(t, "test-agent", c.cfg.agent)
	assert.Equal(t, wamp.Dict{"custom": true}, c.cfg.helloDetails)
	assert.Equal(t, []string{"wampcra", "ticket"}, c.cfg.authMethods)
	assert.Equal(t, "joe", c.cfg.authID)
	assert.NotNil(t, c.cfg.authenticator)
	assert.Equal(t, wamp.MatchPrefix, c.cfg.matchPolicy)
	assert.True(t, c.cfg.strictURIs)
	assert.Same(t, monitor, c.cfg.monitor)
	assert.NotNil(t, c.cfg.metrics)

	dialer, ok := c.cfg.dialer.(*transport.WebSocketDialer)
	require.True(t, ok)
	assert.Equal(t, []string{"key123"}, dialer.Headers["X-API-Key"])
	require.NotNil(t, dialer.AuthProvider)
	header, err := dialer.AuthProvider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", header)
}

func TestClientBuilder_Ticket(t *testing.T) {
	c, err := NewClient().
		WithURL("ws://localhost/ws").
		WithRealm("realm1").
		WithTicket("joe", "secret").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "joe", c.cfg.authID)
	assert.Equal(t, []string{"ticket"}, c.cfg.authMethods)

	signature, extra, err := c.cfg.authenticator(context.Background(), &wamp.Challenge{AuthMethod: "ticket"})
	require.NoError(t, err)
	assert.Equal(t, "secret", signature)
	assert.Empty(t, extra)
}

func TestClientBuilder_InvalidValuesIgnored(t *testing.T) {
	c, err := NewClient().
		WithURL("ws://localhost/ws").
		WithRealm("realm1").
		WithSerializer(nil).
		WithLogger(nil).
		WithDialTimeout(-1).
		WithGoodbyeTimeout(0).
		WithWriteChannelSize(0).
		WithEventQueueSize(-5).
		WithRoles().
		Build()
	require.NoError(t, err)

	assert.Equal(t, "json", c.cfg.serializer.Name())
	assert.NotNil(t, c.cfg.logger)
	assert.Equal(t, 30*time.Second, c.cfg.dialTimeout)
	assert.Equal(t, 5*time.Second, c.cfg.goodbyeTimeout)
	assert.Equal(t, 100, c.cfg.writeChannelSize)
	assert.Equal(t, 100, c.cfg.eventQueueSize)
	assert.Equal(t, wamp.ClientRoles, c.cfg.roles)
}

func TestClientBuilder_BuildCopiesSlices(t *testing.T) {
	b := NewClient().
		WithURL("ws://localhost/ws").
		WithRealm("realm1").
		WithAuthMethods("ticket").
		WithHelloDetails(wamp.Dict{"a": 1})

	c, err := b.Build()
	require.NoError(t, err)

	b.WithAuthMethods("wampcra").WithHelloDetails(wamp.Dict{"b": 2})
	assert.Equal(t, []string{"ticket"}, c.cfg.authMethods)
	assert.Equal(t, wamp.Dict{"a": 1}, c.cfg.helloDetails)
}

func TestClientBuilder_FluentInterface(t *testing.T) {
	builder := NewClient()

	// Each method should return the same builder instance
	assert.Same(t, builder, builder.WithURL("ws://localhost/ws"))
	assert.Same(t, builder, builder.WithRealm("realm1"))
	assert.Same(t, builder, builder.WithSerializer(serialize.JSONSerializer{}))
	assert.Same(t, builder, builder.WithDialer(nil))
	assert.Same(t, builder, builder.WithLogger(zap.NewNop()))
	assert.Same(t, builder, builder.WithDialTimeout(time.Second))
	assert.Same(t, builder, builder.WithGoodbyeTimeout(time.Second))
	assert.Same(t, builder, builder.WithWriteChannelSize(1))
	assert.Same(t, builder, builder.WithEventQueueSize(1))
	assert.Same(t, builder, builder.WithRoles(wamp.RoleCaller))
	assert.Same(t, builder, builder.WithAgent("agent"))
	assert.Same(t, builder, builder.WithHelloDetails(nil))
	assert.Same(t, builder, builder.WithAuthMethods())
	assert.Same(t, builder, builder.WithAuthID(""))
	assert.Same(t, builder, builder.WithAuthenticator(nil))
	assert.Same(t, builder, builder.WithTicket("", ""))
	assert.Same(t, builder, builder.WithTLSConfig(nil))
	assert.Same(t, builder, builder.WithAuthorization(""))
	assert.Same(t, builder, builder.WithAuthorizationProvider(nil))
	assert.Same(t, builder, builder.WithHeaders(nil))
	assert.Same(t, builder, builder.WithHeader("k", "v"))
	assert.Same(t, builder, builder.WithMatchPolicy(wamp.MatchExact))
	assert.Same(t, builder, builder.WithStrictURIs(false))
	assert.Same(t, builder, builder.WithMonitor(nil))
	assert.Same(t, builder, builder.WithMetrics(nil))
	assert.Same(t, builder, builder.WithTracing(nil))
	assert.Same(t, builder, builder.WithObservability(o11y.ObservabilityConfig{}))
}

func TestClientBuilder_IsValid(t *testing.T) {
	tests := []struct {
		name          string
		setupBuilder  func() *ClientBuilder
		expectError   bool
		errorContains string
	}{
		{
			name: "valid configuration",
			setupBuilder: func() *ClientBuilder {
				return NewClient().WithURL("ws://localhost/ws").WithRealm("realm1")
			},
		},
		{
			name: "custom dialer without URL",
			setupBuilder: func() *ClientBuilder {
				return NewClient().WithDialer(&transport.WebSocketDialer{}).WithRealm("realm1")
			},
		},
		{
			name: "missing URL",
			setupBuilder: func() *ClientBuilder {
				return NewClient().WithRealm("realm1")
			},
			expectError:   true,
			errorContains: "URL is required",
		},
		{
			name: "missing realm",
			setupBuilder: func() *ClientBuilder {
				return NewClient().WithURL("ws://localhost/ws")
			},
			expectError:   true,
			errorContains: "realm is required",
		},
		{
			name: "invalid realm",
			setupBuilder: func() *ClientBuilder {
				return NewClient().WithURL("ws://localhost/ws").WithRealm("bad realm")
			},
			expectError:   true,
			errorContains: "invalid realm",
		},
		{
			name: "invalid match policy",
			setupBuilder: func() *ClientBuilder {
				return NewClient().
					WithURL("ws://localhost/ws").
					WithRealm("realm1").
					WithMatchPolicy("regex")
			},
			expectError:   true,
			errorContains: "invalid match policy",
		},
		{
			name: "empty match policy is valid",
			setupBuilder: func() *ClientBuilder {
				return NewClient().
					WithURL("ws://localhost/ws").
					WithRealm("realm1").
					WithMatchPolicy("")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := tt.setupBuilder()
			err := builder.IsValid()

			if tt.expectError {
				if err == nil {
					t.Error("Expected validation error but got none")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain '%s', got: %s", tt.errorContains, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no validation error but got: %s", err.Error())
				}
			}
		})
	}

	t.Run("build fails on invalid configuration", func(t *testing.T) {
		c, err := NewClient().WithRealm("realm1").Build()
		assert.Error(t, err)
		assert.Nil(t, c)
	})
}
