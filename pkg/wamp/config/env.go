package config

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// GetEnvObject returns the environment as a cty object, so configs can refer
// to env.WAMP_TICKET and the like.
func GetEnvObject() cty.Value {
	envMap := make(map[string]cty.Value)

	for _, envVar := range os.Environ() {
		key, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}
		envMap[sanitizeEnvVarName(key)] = cty.StringVal(value)
	}

	if len(envMap) == 0 {
		return cty.EmptyObjectVal
	}

	return cty.ObjectVal(envMap)
}

// sanitizeEnvVarName turns name into a valid HCL attribute name: a letter
// or underscore followed by letters, digits, underscores and hyphens.
func sanitizeEnvVarName(name string) string {
	if name == "" {
		return "_"
	}

	var result strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			result.WriteRune(r)
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
			result.WriteRune(r)
		default:
			result.WriteRune('_')
		}
	}

	return result.String()
}
