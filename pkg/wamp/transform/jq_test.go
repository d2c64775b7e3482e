package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/wamplink/pkg/wamp"
	"go.uber.org/zap/zaptest"
)

func TestJqTransform(t *testing.T) {
	ctx := context.Background()
	payload := wamp.Payload{
		Arguments:   wamp.List{int64(2), int64(3)},
		ArgumentsKw: wamp.Dict{"name": "alice", "tags": []any{"a", "b"}},
	}

	run := func(t *testing.T, query string, p wamp.Payload) (wamp.Payload, bool, error) {
		t.Helper()
		transform, err := JqTransform(query, zaptest.NewLogger(t))
		require.NoError(t, err)
		return transform(ctx, "com.example.add", p)
	}

	t.Run("scalar result becomes single argument", func(t *testing.T) {
		out, ok, err := run(t, ".args | add", payload)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, out.Arguments, 1)
		assert.EqualValues(t, 5, out.Arguments[0])
		assert.Nil(t, out.ArgumentsKw)
	})

	t.Run("array result becomes arguments", func(t *testing.T) {
		out, ok, err := run(t, ".kwargs.tags", payload)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, wamp.List{"a", "b"}, out.Arguments)
	})

	t.Run("explicit payload object", func(t *testing.T) {
		out, ok, err := run(t, `{args: [$uri], kwargs: {who: .kwargs.name}}`, payload)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, wamp.List{"com.example.add"}, out.Arguments)
		assert.Equal(t, wamp.Dict{"who": "alice"}, out.ArgumentsKw)
	})

	t.Run("kwargs only", func(t *testing.T) {
		out, ok, err := run(t, `{kwargs: .kwargs}`, payload)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Nil(t, out.Arguments)
		assert.Equal(t, "alice", out.ArgumentsKw["name"])
	})

	t.Run("other objects are a single argument", func(t *testing.T) {
		out, ok, err := run(t, `{name: .kwargs.name}`, payload)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, wamp.List{map[string]any{"name": "alice"}}, out.Arguments)
	})

	t.Run("multiple results are collected", func(t *testing.T) {
		out, ok, err := run(t, ".kwargs.tags[]", payload)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, wamp.List{"a", "b"}, out.Arguments)
	})

	t.Run("no results drops the payload", func(t *testing.T) {
		_, ok, err := run(t, `select(.kwargs.name == "bob")`, payload)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty payload", func(t *testing.T) {
		out, ok, err := run(t, ".args | length", wamp.Payload{})
		require.NoError(t, err)
		require.True(t, ok)
		assert.EqualValues(t, 0, out.Arguments[0])
	})

	t.Run("execution error", func(t *testing.T) {
		_, ok, err := run(t, `error("boom")`, payload)
		assert.False(t, ok)
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("unrepresentable payload", func(t *testing.T) {
		_, _, err := run(t, ".", wamp.Payload{Arguments: wamp.List{make(chan int)}})
		assert.Error(t, err)
	})
}

func TestJqTransformInvalidQuery(t *testing.T) {
	_, err := JqTransform(".[", nil)
	assert.ErrorContains(t, err, "parse")

	_, err = JqTransform("$undefined", nil)
	assert.ErrorContains(t, err, "compile")
}
