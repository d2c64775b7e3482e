package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/transform"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func TestResolveLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		debug   bool
		verbose bool
		want    zapcore.Level
	}{
		{level: "info", want: zap.InfoLevel},
		{level: "WARN", want: zap.WarnLevel},
		{level: "warning", want: zap.WarnLevel},
		{level: "error", want: zap.ErrorLevel},
		{level: "bogus", want: zap.InfoLevel},
		{level: "error", debug: true, want: zap.DebugLevel},
		{level: "info", verbose: true, want: zap.DebugLevel},
		{level: "warn", verbose: true, want: zap.WarnLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveLogLevel(tt.level, tt.debug, tt.verbose), "%+v", tt)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{in: `2`, want: int64(2)},
		{in: `2.5`, want: 2.5},
		{in: `true`, want: true},
		{in: `null`, want: nil},
		{in: `"quoted"`, want: "quoted"},
		{in: `plain`, want: "plain"},
		{in: `1 2`, want: "1 2"},
		{in: ``, want: ""},
		{in: `[1, "x"]`, want: []any{int64(1), "x"}},
		{in: `{"a": {"b": 3}}`, want: map[string]any{"a": map[string]any{"b": int64(3)}}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.in))
		})
	}
}

func TestParseArgs(t *testing.T) {
	assert.Nil(t, parseArgs(nil))
	assert.Equal(t, wamp.List{int64(1), "two"}, parseArgs([]string{"1", "two"}))
}

func TestParseKwargs(t *testing.T) {
	kwargs, err := parseKwargs(nil)
	require.NoError(t, err)
	assert.Nil(t, kwargs)

	kwargs, err = parseKwargs([]string{"n=3", "name=alice", "expr=a=b"})
	require.NoError(t, err)
	assert.Equal(t, wamp.Dict{"n": int64(3), "name": "alice", "expr": "a=b"}, kwargs)

	_, err = parseKwargs([]string{"novalue"})
	assert.ErrorContains(t, err, "expected key=value")

	_, err = parseKwargs([]string{"=3"})
	assert.Error(t, err)
}

func TestFormatPayload(t *testing.T) {
	tests := []struct {
		name   string
		args   wamp.List
		kwargs wamp.Dict
		want   string
	}{
		{name: "empty", want: `[]`},
		{name: "single argument", args: wamp.List{int64(5)}, want: `5`},
		{name: "arguments", args: wamp.List{int64(1), "x"}, want: `[1,"x"]`},
		{name: "kwargs", kwargs: wamp.Dict{"a": "<b>"}, want: `{"args":[],"kwargs":{"a":"<b>"}}`},
		{name: "both", args: wamp.List{true}, kwargs: wamp.Dict{"n": 1.5}, want: `{"args":[true],"kwargs":{"n":1.5}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatPayload(tt.args, tt.kwargs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := formatPayload(wamp.List{make(chan int)}, nil)
	assert.Error(t, err)
}

func TestPrintingSubscriber(t *testing.T) {
	ctx := context.Background()
	event := &wamp.Event{
		Subscription: 1,
		Publication:  2,
		Arguments:    wamp.List{int64(21)},
		ArgumentsKw:  wamp.Dict{"unit": "C"},
	}

	t.Run("prints topic and payload", func(t *testing.T) {
		var out bytes.Buffer
		s := &printingSubscriber{out: &out, logger: zaptest.NewLogger(t)}

		require.NoError(t, s.OnEvent(ctx, "com.example.temp", event))
		assert.Equal(t, "com.example.temp\t{\"args\":[21],\"kwargs\":{\"unit\":\"C\"}}\n", out.String())
	})

	t.Run("jq transform", func(t *testing.T) {
		filter, err := transform.JqTransform(`select(.args[0] > 20) | .args[0]`, nil)
		require.NoError(t, err)

		var out bytes.Buffer
		s := &printingSubscriber{out: &out, logger: zaptest.NewLogger(t), transform: filter}

		require.NoError(t, s.OnEvent(ctx, "com.example.temp", event))
		require.NoError(t, s.OnEvent(ctx, "com.example.temp", &wamp.Event{Arguments: wamp.List{int64(3)}}))
		assert.Equal(t, "com.example.temp\t21\n", out.String())
	})

	t.Run("unencodable payload", func(t *testing.T) {
		var out bytes.Buffer
		s := &printingSubscriber{out: &out, logger: zaptest.NewLogger(t)}

		require.NoError(t, s.OnEvent(ctx, "t", &wamp.Event{Arguments: wamp.List{make(chan int)}}))
		assert.Contains(t, out.String(), "<error marshaling JSON")
	})
}

func TestNewHandler(t *testing.T) {
	ctx := context.Background()
	inv := &wamp.Invocation{
		Request:     7,
		Arguments:   wamp.List{int64(2), int64(3)},
		ArgumentsKw: wamp.Dict{"op": "add"},
	}

	t.Run("echo", func(t *testing.T) {
		h := newHandler(zaptest.NewLogger(t), "com.example.echo", nil)
		got, err := h(ctx, inv)
		require.NoError(t, err)
		assert.Equal(t, wamp.Payload{Arguments: inv.Arguments, ArgumentsKw: inv.ArgumentsKw}, got)
	})

	t.Run("jq result", func(t *testing.T) {
		sum, err := transform.JqTransform(`{args: [(.args | add), $uri]}`, nil)
		require.NoError(t, err)

		h := newHandler(zaptest.NewLogger(t), "com.example.add", sum)
		got, err := h(ctx, inv)
		require.NoError(t, err)
		require.Len(t, got.Arguments, 2)
		assert.EqualValues(t, 5, got.Arguments[0])
		assert.Equal(t, "com.example.add", got.Arguments[1])
	})

	t.Run("jq without result", func(t *testing.T) {
		none, err := transform.JqTransform(`empty`, nil)
		require.NoError(t, err)

		got, err := newHandler(zaptest.NewLogger(t), "p", none)(ctx, inv)
		require.NoError(t, err)
		assert.Equal(t, wamp.Payload{}, got)
	})

	t.Run("jq error", func(t *testing.T) {
		fail, err := transform.JqTransform(`error("nope")`, nil)
		require.NoError(t, err)

		_, err = newHandler(zaptest.NewLogger(t), "p", fail)(ctx, inv)
		assert.ErrorContains(t, err, "nope")
	})
}

// withGlobals restores the command line flag variables after a test.
func withGlobals(t *testing.T) {
	saved := struct {
		configPath, clientName, serializer string
		dialTimeout                        time.Duration
	}{configPath, clientName, serializer, dialTimeout}

	t.Cleanup(func() {
		configPath = saved.configPath
		clientName = saved.clientName
		serializer = saved.serializer
		dialTimeout = saved.dialTimeout
	})
}

func TestClientSettings(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("command line only", func(t *testing.T) {
		withGlobals(t)
		configPath, clientName, serializer, dialTimeout = "", "", "msgpack", 7*time.Second

		settings, err := clientSettings(logger, "ws://localhost:8080/ws", "realm1", false)
		require.NoError(t, err)
		assert.Equal(t, "ws://localhost:8080/ws", settings.URL)
		assert.Equal(t, "realm1", settings.Realm)
		assert.Equal(t, "msgpack", settings.Serializer)
		assert.Equal(t, 7*time.Second, settings.DialTimeout)
		assert.Nil(t, settings.Reconnect)
	})

	t.Run("missing realm", func(t *testing.T) {
		withGlobals(t)
		configPath, serializer = "", ""

		_, err := clientSettings(logger, "ws://localhost:8080/ws", "", false)
		assert.ErrorContains(t, err, "realm is required")
	})

	t.Run("config file", func(t *testing.T) {
		withGlobals(t)

		path := filepath.Join(t.TempDir(), "clients.hcl")
		require.NoError(t, os.WriteFile(path, []byte(`
client "lab" {
  url          = "ws://lab:8080/ws"
  realm        = "lab"
  dial_timeout = 3

  reconnect {
    max_retries = 5
  }
}

client "prod" {
  url   = "wss://prod/ws"
  realm = "prod"
}
`), 0o644))

		configPath, clientName, serializer, dialTimeout = path, "lab", "", 10*time.Second

		settings, err := clientSettings(logger, "", "override", false)
		require.NoError(t, err)
		assert.Equal(t, "lab", settings.Name)
		assert.Equal(t, "ws://lab:8080/ws", settings.URL)
		assert.Equal(t, "override", settings.Realm)
		assert.Equal(t, 3*time.Second, settings.DialTimeout)
		require.NotNil(t, settings.Reconnect)
		assert.Equal(t, 5, settings.Reconnect.MaxRetries)

		reconnector := newReconnector(logger, settings)
		assert.True(t, reconnector.IsEnabled())

		settings, err = clientSettings(logger, "", "", true)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, settings.DialTimeout)

		clientName = ""
		_, err = clientSettings(logger, "", "", false)
		assert.Error(t, err, "two clients and none named default")

		clientName = "missing"
		_, err = clientSettings(logger, "", "", false)
		assert.Error(t, err)
	})

	t.Run("invalid config file", func(t *testing.T) {
		withGlobals(t)

		path := filepath.Join(t.TempDir(), "bad.hcl")
		require.NoError(t, os.WriteFile(path, []byte(`client "x" {}`), 0o644))
		configPath = path

		_, err := clientSettings(logger, "ws://x", "r", false)
		assert.Error(t, err)
	})
}

func TestLazyPublisher(t *testing.T) {
	p := &lazyPublisher{}
	err := p.Publish(context.Background(), "wamplink.metrics", nil, nil, nil)
	assert.ErrorIs(t, err, wamp.ErrNotEstablished)
}
