package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tsarna/wamplink/pkg/wamp"
)

// parseValue reads a command line argument as JSON, falling back to the
// plain string when it is not valid JSON.
func parseValue(s string) any {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	return wamp.Normalize(v)
}

func parseArgs(args []string) wamp.List {
	if len(args) == 0 {
		return nil
	}
	list := make(wamp.List, len(args))
	for i, arg := range args {
		list[i] = parseValue(arg)
	}
	return list
}

// parseKwargs reads key=value pairs, values parsed like positional arguments.
func parseKwargs(pairs []string) (wamp.Dict, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	kwargs := make(wamp.Dict, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid keyword argument %q, expected key=value", pair)
		}
		kwargs[key] = parseValue(value)
	}
	return kwargs, nil
}

// formatPayload renders a payload as compact JSON: the lone argument itself,
// the argument list, or an object with "args" and "kwargs" when there are
// keyword arguments.
func formatPayload(args wamp.List, kwargs wamp.Dict) (string, error) {
	var v any
	switch {
	case len(kwargs) > 0:
		if args == nil {
			args = wamp.List{}
		}
		v = map[string]any{"args": args, "kwargs": kwargs}
	case len(args) == 1:
		v = args[0]
	case args == nil:
		v = wamp.List{}
	default:
		v = args
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
