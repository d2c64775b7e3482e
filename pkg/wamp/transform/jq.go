// Package transform reshapes WAMP payloads with jq queries. The command line
// tools use it to filter call results and events and to compute the results
// of served procedures.
package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/tsarna/wamplink/pkg/wamp"
	"go.uber.org/zap"
)

// PayloadTransformFunc maps a payload delivered for uri to a new payload. A
// false second result means the query produced nothing and the payload
// should be dropped.
type PayloadTransformFunc func(ctx context.Context, uri wamp.URI, payload wamp.Payload) (wamp.Payload, bool, error)

// JqTransform compiles jqQuery into a PayloadTransformFunc.
//
// The query's input is an object with "args" and "kwargs" keys, and the URI
// the payload was delivered for is available as $uri. Results become the
// new payload:
//   - an object with only "args" and/or "kwargs" keys replaces both parts
//   - an array becomes the positional arguments
//   - any other value becomes the single positional argument
//
// Multiple results are collected into one array of positional arguments.
//
// Example usage:
//
//	sum, err := JqTransform(".args | add", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
func JqTransform(jqQuery string, logger *zap.Logger) (PayloadTransformFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query: %w", err)
	}

	compiledQuery, err := gojq.Compile(query, gojq.WithVariables([]string{"$uri"}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query: %w", err)
	}

	return func(ctx context.Context, uri wamp.URI, payload wamp.Payload) (wamp.Payload, bool, error) {
		input, err := jqInput(payload)
		if err != nil {
			return wamp.Payload{}, false, err
		}

		iter := compiledQuery.RunWithContext(ctx, input, string(uri))

		var results []any
		for {
			result, ok := iter.Next()
			if !ok {
				break
			}
			if execErr, isErr := result.(error); isErr {
				logger.Debug("JQ execution error",
					zap.String("jq_query", jqQuery),
					zap.String("uri", string(uri)),
					zap.Error(execErr))
				return wamp.Payload{}, false, fmt.Errorf("jq: %w", execErr)
			}
			results = append(results, wamp.Normalize(result))
		}

		switch len(results) {
		case 0:
			return wamp.Payload{}, false, nil
		case 1:
			return toPayload(results[0]), true, nil
		default:
			return wamp.Payload{Arguments: wamp.List(results)}, true, nil
		}
	}, nil
}

// jqInput converts a payload to the plain JSON values gojq accepts. Decoded
// integers are int64 and the containers are named types, neither of which
// gojq handles directly.
func jqInput(payload wamp.Payload) (any, error) {
	args := payload.Arguments
	if args == nil {
		args = wamp.List{}
	}
	kwargs := payload.ArgumentsKw
	if kwargs == nil {
		kwargs = wamp.Dict{}
	}

	data, err := json.Marshal(map[string]any{"args": args, "kwargs": kwargs})
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON-representable: %w", err)
	}

	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, err
	}
	return input, nil
}

func toPayload(v any) wamp.Payload {
	switch value := v.(type) {
	case []any:
		return wamp.Payload{Arguments: wamp.List(value)}
	case map[string]any:
		if p, ok := explicitPayload(value); ok {
			return p
		}
	}
	return wamp.Payload{Arguments: wamp.List{v}}
}

func explicitPayload(m map[string]any) (wamp.Payload, bool) {
	if len(m) == 0 || len(m) > 2 {
		return wamp.Payload{}, false
	}

	var p wamp.Payload
	for key, value := range m {
		switch key {
		case "args":
			list, ok := value.([]any)
			if !ok {
				return wamp.Payload{}, false
			}
			p.Arguments = wamp.List(list)
		case "kwargs":
			dict, ok := value.(map[string]any)
			if !ok {
				return wamp.Payload{}, false
			}
			p.ArgumentsKw = wamp.Dict(dict)
		default:
			return wamp.Payload{}, false
		}
	}
	return p, true
}
