package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/o11y"
)

func TestCall(t *testing.T) {
	t.Run("result", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		resCh := goResult(func() (*wamp.Result, error) {
			return c.Call(context.Background(), "com.example.add", nil, wamp.List{2, 3}, nil)
		})

		call := expect[*wamp.Call](t, r)
		assert.Equal(t, wamp.URI("com.example.add"), call.Procedure)
		assert.Equal(t, wamp.List{int64(2), int64(3)}, call.Arguments)
		assert.Equal(t, wamp.ID(1), call.Request)

		r.send(&wamp.Result{Request: call.Request, Details: wamp.Dict{}, Arguments: wamp.List{5}})

		res, err := waitResult(t, resCh)
		require.NoError(t, err)
		assert.Equal(t, wamp.List{int64(5)}, res.Arguments)
	})

	t.Run("router error", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		resCh := goResult(func() (*wamp.Result, error) {
			return c.Call(context.Background(), "com.example.fail", nil, nil, nil)
		})
		call := expect[*wamp.Call](t, r)
		r.send(&wamp.Error{
			Type:        wamp.MessageTypeCall,
			Request:     call.Request,
			Details:     wamp.Dict{},
			Error:       "com.example.error.oops",
			Arguments:   wamp.List{"it broke"},
			ArgumentsKw: wamp.Dict{"code": 7},
		})

		_, err := waitResult(t, resCh)
		var callErr *wamp.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, wamp.URI("com.example.error.oops"), callErr.URI)
		assert.Equal(t, int64(7), callErr.ArgumentsKw["code"])
		assert.Contains(t, err.Error(), "it broke")
		assert.Equal(t, StateEstablished, c.State())
	})

	t.Run("no such procedure", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		resCh := goResult(func() (*wamp.Result, error) {
			return c.Call(context.Background(), "com.example.missing", nil, nil, nil)
		})
		call := expect[*wamp.Call](t, r)
		r.send(&wamp.Error{Type: wamp.MessageTypeCall, Request: call.Request, Details: wamp.Dict{}, Error: wamp.ErrorNoSuchProcedure})

		_, err := waitResult(t, resCh)
		var callErr *wamp.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, wamp.ErrorNoSuchProcedure, callErr.URI)
	})

	t.Run("concurrent calls get unique ids", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		const n = 50
		results := make([]<-chan result[*wamp.Result], n)
		for i := 0; i < n; i++ {
			i := i
			results[i] = goResult(func() (*wamp.Result, error) {
				return c.Call(context.Background(), "com.example.echo", nil, wamp.List{i}, nil)
			})
		}

		seen := make(map[wamp.ID]bool)
		calls := make([]*wamp.Call, 0, n)
		for i := 0; i < n; i++ {
			call := expect[*wamp.Call](t, r)
			assert.False(t, seen[call.Request], "request id %d reused", call.Request)
			seen[call.Request] = true
			calls = append(calls, call)
		}
		assert.Len(t, seen, n)

		// Answer in reverse order to exercise correlation.
		for i := len(calls) - 1; i >= 0; i-- {
			r.send(&wamp.Result{Request: calls[i].Request, Details: wamp.Dict{}, Arguments: calls[i].Arguments})
		}

		for i := 0; i < n; i++ {
			res, err := waitResult(t, results[i])
			require.NoError(t, err)
			assert.Equal(t, wamp.List{int64(i)}, res.Arguments)
		}
	})

	t.Run("result for unknown request is ignored", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		r.send(&wamp.Result{Request: 9999, Details: wamp.Dict{}})

		resCh := goResult(func() (*wamp.Result, error) {
			return c.Call(context.Background(), "com.example.proc", nil, nil, nil)
		})
		call := expect[*wamp.Call](t, r)
		r.send(&wamp.Result{Request: call.Request, Details: wamp.Dict{}})

		_, err := waitResult(t, resCh)
		require.NoError(t, err)
		assert.Equal(t, StateEstablished, c.State())
		assert.Equal(t, 1, r.logged("Response for unknown request"))
	})

	t.Run("canceled call discards late result", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		ctx, cancel := context.WithCancel(context.Background())
		resCh := goResult(func() (*wamp.Result, error) {
			return c.Call(ctx, "com.example.slow", nil, nil, nil)
		})
		call := expect[*wamp.Call](t, r)
		cancel()

		_, err := waitResult(t, resCh)
		assert.ErrorIs(t, err, wamp.ErrCanceled)
		assert.ErrorIs(t, err, context.Canceled)

		r.send(&wamp.Result{Request: call.Request, Details: wamp.Dict{}, Arguments: wamp.List{"late"}})

		resCh = goResult(func() (*wamp.Result, error) {
			return c.Call(context.Background(), "com.example.fast", nil, nil, nil)
		})
		next := expect[*wamp.Call](t, r)
		assert.Greater(t, next.Request, call.Request)
		r.send(&wamp.Result{Request: next.Request, Details: wamp.Dict{}, Arguments: wamp.List{"fresh"}})

		res, err := waitResult(t, resCh)
		require.NoError(t, err)
		assert.Equal(t, wamp.List{"fresh"}, res.Arguments)
		assert.Equal(t, StateEstablished, c.State())
		assert.Equal(t, 1, r.logged("Discarding response to canceled request"))
		assert.Zero(t, r.logged("Response for unknown request"))
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := c.Call(ctx, "com.example.slow", nil, nil, nil)
		assert.ErrorIs(t, err, wamp.ErrCanceled)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		expect[*wamp.Call](t, r)
	})

	t.Run("response of the wrong kind aborts", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		resCh := goResult(func() (*wamp.Result, error) {
			return c.Call(context.Background(), "com.example.proc", nil, nil, nil)
		})
		call := expect[*wamp.Call](t, r)
		r.send(&wamp.Registered{Request: call.Request, Registration: 5})

		abort := expect[*wamp.Abort](t, r)
		assert.Equal(t, wamp.ErrorProtocolViolation, abort.Reason)

		_, err := waitResult(t, resCh)
		assert.ErrorIs(t, err, wamp.ErrSessionClosed)
		var violation *wamp.ProtocolViolationError
		assert.ErrorAs(t, err, &violation)
	})

	t.Run("invalid uri", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		_, err := c.Call(context.Background(), "com.example.bad uri", nil, nil, nil)
		assert.ErrorIs(t, err, wamp.ErrInvalidURI)
		_, err = c.Call(context.Background(), "com..example", nil, nil, nil)
		assert.ErrorIs(t, err, wamp.ErrInvalidURI)
		r.expectNothing()
	})

	t.Run("strict uris", func(t *testing.T) {
		c, r := newTestClient(t, func(b *ClientBuilder) { b.WithStrictURIs(true) })
		connect(t, c, r)

		_, err := c.Call(context.Background(), "com.Example.Proc", nil, nil, nil)
		assert.ErrorIs(t, err, wamp.ErrInvalidURI)
		_, err = c.Call(context.Background(), "wamp.session.count", nil, nil, nil)
		assert.ErrorIs(t, err, wamp.ErrInvalidURI)
		r.expectNothing()
	})

	t.Run("unencodable arguments", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		_, err := c.Call(context.Background(), "com.example.proc", nil, wamp.List{make(chan int)}, nil)
		var serr *wamp.SerializationError
		assert.ErrorAs(t, err, &serr)
		assert.Equal(t, StateEstablished, c.State())
		r.expectNothing()
	})

	t.Run("metrics and tracing", func(t *testing.T) {
		metrics := o11y.NewStandaloneMetricsProvider(nil, nil)
		tracer := &recordingTracer{}
		c, r := newTestClient(t, func(b *ClientBuilder) {
			b.WithMetrics(metrics).WithTracing(tracer)
		})
		connect(t, c, r)

		resCh := goResult(func() (*wamp.Result, error) {
			return c.Call(context.Background(), "com.example.proc", nil, nil, nil)
		})
		call := expect[*wamp.Call](t, r)
		r.send(&wamp.Error{Type: wamp.MessageTypeCall, Request: call.Request, Details: wamp.Dict{}, Error: "com.example.error"})
		_, err := waitResult(t, resCh)
		require.Error(t, err)

		snapshot := metrics.Snapshot()
		assert.Equal(t, int64(1), snapshot.Counters["wamp_client_calls_total"])
		assert.Equal(t, int64(1), snapshot.Counters["wamp_client_call_errors_total"])
		assert.Len(t, snapshot.Histograms["wamp_client_call_duration_seconds"], 1)

		tracer.mu.Lock()
		defer tracer.mu.Unlock()
		require.Len(t, tracer.spans, 1)
		assert.Equal(t, "wamp.call", tracer.spans[0].name)
		assert.Equal(t, o11y.SpanStatusError, tracer.spans[0].status)
		assert.True(t, tracer.spans[0].ended)
	})
}

func TestRegister(t *testing.T) {
	echo := func(ctx context.Context, inv *wamp.Invocation) (wamp.Payload, error) {
		return wamp.Payload{Arguments: inv.Arguments, ArgumentsKw: inv.ArgumentsKw}, nil
	}

	register := func(t *testing.T, c *Client, r *testRouter, procedure wamp.URI, handler Handler, id wamp.ID) *Registration {
		t.Helper()
		regCh := goResult(func() (*Registration, error) {
			return c.Register(context.Background(), procedure, handler, nil)
		})
		msg := expect[*wamp.Register](t, r)
		assert.Equal(t, procedure, msg.Procedure)
		r.send(&wamp.Registered{Request: msg.Request, Registration: id})

		reg, err := waitResult(t, regCh)
		require.NoError(t, err)
		require.Equal(t, id, reg.ID)
		return reg
	}

	t.Run("invocation is answered with yield", func(t *testing.T) {
		monitor := &recordingMonitor{}
		c, r := newTestClient(t, func(b *ClientBuilder) { b.WithMonitor(monitor) })
		connect(t, c, r)
		register(t, c, r, "com.example.echo", echo, 11)

		r.send(&wamp.Invocation{
			Request:      100,
			Registration: 11,
			Details:      wamp.Dict{},
			Arguments:    wamp.List{"hi"},
			ArgumentsKw:  wamp.Dict{"n": 1},
		})

		yield := expect[*wamp.Yield](t, r)
		assert.Equal(t, wamp.ID(100), yield.Request)
		assert.Equal(t, wamp.List{"hi"}, yield.Arguments)
		assert.Equal(t, wamp.Dict{"n": int64(1)}, yield.ArgumentsKw)

		monitor.mu.Lock()
		assert.Equal(t, 1, monitor.registers)
		monitor.mu.Unlock()
	})

	t.Run("unknown registration", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		r.send(&wamp.Invocation{Request: 7, Registration: 999, Details: wamp.Dict{}})

		msg := expect[*wamp.Error](t, r)
		assert.Equal(t, wamp.MessageTypeInvocation, msg.Type)
		assert.Equal(t, wamp.ID(7), msg.Request)
		assert.Equal(t, wamp.ErrorNoSuchRegistration, msg.Error)
		assert.Equal(t, StateEstablished, c.State())
	})

	t.Run("handler errors", func(t *testing.T) {
		tests := []struct {
			name    string
			handler Handler
			uri     wamp.URI
			arg     string
		}{
			{
				name: "call error",
				handler: func(ctx context.Context, inv *wamp.Invocation) (wamp.Payload, error) {
					return wamp.Payload{}, wamp.NewCallError("com.example.error.nope", "not today")
				},
				uri: "com.example.error.nope",
				arg: "not today",
			},
			{
				name: "wrapped call error",
				handler: func(ctx context.Context, inv *wamp.Invocation) (wamp.Payload, error) {
					return wamp.Payload{}, fmt.Errorf("lookup: %w", wamp.NewCallError(wamp.ErrorInvalidArgument, "bad id"))
				},
				uri: wamp.ErrorInvalidArgument,
				arg: "bad id",
			},
			{
				name: "plain error",
				handler: func(ctx context.Context, inv *wamp.Invocation) (wamp.Payload, error) {
					return wamp.Payload{}, errors.New("boom")
				},
				uri: wamp.ErrorRuntime,
				arg: "boom",
			},
			{
				name: "panic",
				handler: func(ctx context.Context, inv *wamp.Invocation) (wamp.Payload, error) {
					panic("kaboom")
				},
				uri: wamp.ErrorRuntime,
				arg: "handler panic: kaboom",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c, r := newTestClient(t)
				connect(t, c, r)
				register(t, c, r, "com.example.proc", tt.handler, 21)

				r.send(&wamp.Invocation{Request: 5, Registration: 21, Details: wamp.Dict{}})

				msg := expect[*wamp.Error](t, r)
				assert.Equal(t, wamp.MessageTypeInvocation, msg.Type)
				assert.Equal(t, wamp.ID(5), msg.Request)
				assert.Equal(t, tt.uri, msg.Error)
				assert.Equal(t, wamp.List{tt.arg}, msg.Arguments)
				assert.Equal(t, StateEstablished, c.State())
			})
		}
	})

	t.Run("slow handler does not block dispatch", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		release := make(chan struct{})
		register(t, c, r, "com.example.slow", func(ctx context.Context, inv *wamp.Invocation) (wamp.Payload, error) {
			<-release
			return wamp.Payload{Arguments: wamp.List{"slow"}}, nil
		}, 31)
		register(t, c, r, "com.example.fast", func(ctx context.Context, inv *wamp.Invocation) (wamp.Payload, error) {
			return wamp.Payload{Arguments: wamp.List{"fast"}}, nil
		}, 32)

		r.send(&wamp.Invocation{Request: 1, Registration: 31, Details: wamp.Dict{}})
		r.send(&wamp.Invocation{Request: 2, Registration: 32, Details: wamp.Dict{}})

		first := expect[*wamp.Yield](t, r)
		assert.Equal(t, wamp.ID(2), first.Request)

		close(release)
		second := expect[*wamp.Yield](t, r)
		assert.Equal(t, wamp.ID(1), second.Request)
	})

	t.Run("unregister", func(t *testing.T) {
		monitor := &recordingMonitor{}
		c, r := newTestClient(t, func(b *ClientBuilder) { b.WithMonitor(monitor) })
		connect(t, c, r)
		reg := register(t, c, r, "com.example.echo", echo, 11)

		errCh := goErr(func() error { return c.Unregister(context.Background(), reg) })
		msg := expect[*wamp.Unregister](t, r)
		assert.Equal(t, wamp.ID(11), msg.Registration)
		r.send(&wamp.Unregistered{Request: msg.Request})
		require.NoError(t, waitErr(t, errCh))

		r.send(&wamp.Invocation{Request: 3, Registration: 11, Details: wamp.Dict{}})
		reply := expect[*wamp.Error](t, r)
		assert.Equal(t, wamp.ErrorNoSuchRegistration, reply.Error)

		err := c.Unregister(context.Background(), reg)
		assert.ErrorIs(t, err, wamp.ErrNoSuchRegistration)

		monitor.mu.Lock()
		assert.Equal(t, 1, monitor.unregisters)
		monitor.mu.Unlock()
	})

	t.Run("unregister rejected by router", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)
		reg := register(t, c, r, "com.example.echo", echo, 11)

		errCh := goErr(func() error { return c.Unregister(context.Background(), reg) })
		msg := expect[*wamp.Unregister](t, r)
		r.send(&wamp.Error{Type: wamp.MessageTypeUnregister, Request: msg.Request, Details: wamp.Dict{}, Error: wamp.ErrorNoSuchRegistration})

		err := waitErr(t, errCh)
		assert.ErrorIs(t, err, wamp.ErrNoSuchRegistration)
		assert.ErrorIs(t, c.Unregister(context.Background(), reg), wamp.ErrNoSuchRegistration)
	})

	t.Run("register rejected by router", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		regCh := goResult(func() (*Registration, error) {
			return c.Register(context.Background(), "com.example.taken", echo, nil)
		})
		msg := expect[*wamp.Register](t, r)
		r.send(&wamp.Error{Type: wamp.MessageTypeRegister, Request: msg.Request, Details: wamp.Dict{}, Error: wamp.ErrorProcedureExists})

		_, err := waitResult(t, regCh)
		var callErr *wamp.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, wamp.ErrorProcedureExists, callErr.URI)
	})

	t.Run("late registered after cancel is released", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		ctx, cancel := context.WithCancel(context.Background())
		regCh := goResult(func() (*Registration, error) {
			return c.Register(ctx, "com.example.echo", echo, nil)
		})
		msg := expect[*wamp.Register](t, r)
		cancel()
		_, err := waitResult(t, regCh)
		require.ErrorIs(t, err, wamp.ErrCanceled)

		r.send(&wamp.Registered{Request: msg.Request, Registration: 77})
		undo := expect[*wamp.Unregister](t, r)
		assert.Equal(t, wamp.ID(77), undo.Registration)
		r.send(&wamp.Unregistered{Request: undo.Request})

		r.send(&wamp.Invocation{Request: 4, Registration: 77, Details: wamp.Dict{}})
		reply := expect[*wamp.Error](t, r)
		assert.Equal(t, wamp.ErrorNoSuchRegistration, reply.Error)
		assert.Zero(t, r.logged("Response for unknown request"))
	})

	t.Run("nil handler", func(t *testing.T) {
		c, r := newTestClient(t)
		connect(t, c, r)

		_, err := c.Register(context.Background(), "com.example.proc", nil, nil)
		assert.Error(t, err)
		r.expectNothing()
	})
}

type recordedSpan struct {
	name   string
	labels []o11y.Label
	status o11y.SpanStatusCode
	ended  bool
}

func (s *recordedSpan) SetAttributes(labels ...o11y.Label) {
	s.labels = append(s.labels, labels...)
}

func (s *recordedSpan) SetStatus(code o11y.SpanStatusCode, description string) {
	s.status = code
}

func (s *recordedSpan) End() {
	s.ended = true
}

type recordingTracer struct {
	mu    sync.Mutex
	spans []*recordedSpan
}

func (r *recordingTracer) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := &recordedSpan{name: name}
	r.spans = append(r.spans, span)
	return ctx, span
}
