package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/sosodev/duration"
	"github.com/zclconf/go-cty/cty"
)

// IsExpressionProvided reports whether an optional attribute was set. HCL
// gives omitted attributes an empty expression with a zero-length range.
func IsExpressionProvided(expr hcl.Expression) bool {
	return expr != nil && expr.Range().End.Byte > expr.Range().Start.Byte
}

// ParseDuration evaluates a duration expression. Numbers are seconds,
// strings starting with "P" are ISO 8601 durations, and other strings use
// Go's duration syntax.
func (c *Config) ParseDuration(expr hcl.Expression) (time.Duration, hcl.Diagnostics) {
	val, diags := expr.Value(c.evalCtx)
	if diags.HasErrors() {
		return 0, diags
	}

	var (
		d   time.Duration
		err error
	)

	switch val.Type() {
	case cty.Number:
		seconds, accuracy := val.AsBigFloat().Float64()
		if accuracy != big.Exact {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagWarning,
				Summary:  "Duration precision loss",
				Detail:   "The number provided for duration may have lost precision when converted to seconds",
				Subject:  expr.Range().Ptr(),
			})
		}
		d, err = secondsToDuration(seconds)
	case cty.String:
		d, err = ParseDurationString(val.AsString())
	default:
		err = fmt.Errorf("duration must be a number (seconds) or string, got %s", val.Type().FriendlyName())
	}

	if err != nil {
		return 0, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid duration",
			Detail:   err.Error(),
			Subject:  expr.Range().Ptr(),
		})
	}
	return d, diags
}

// ParseDurationString parses an ISO 8601 duration such as "PT5M" or a Go
// duration such as "5m".
func ParseDurationString(str string) (time.Duration, error) {
	str = strings.TrimSpace(str)

	var d time.Duration
	if strings.HasPrefix(str, "P") {
		iso, err := duration.Parse(str)
		if err != nil {
			return 0, fmt.Errorf("failed to parse ISO 8601 duration '%s': %w", str, err)
		}
		d = iso.ToTimeDuration()
	} else {
		var err error
		d, err = time.ParseDuration(str)
		if err != nil {
			return 0, fmt.Errorf("failed to parse duration '%s': %w. Expected a number (seconds), ISO 8601 duration (e.g., 'PT5M'), or Go duration (e.g., '5m')", str, err)
		}
	}

	if d < 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}

// durationFromAny converts a decoded TOML value to a duration.
func durationFromAny(v any) (time.Duration, error) {
	switch n := v.(type) {
	case int64:
		return secondsToDuration(float64(n))
	case float64:
		return secondsToDuration(n)
	case string:
		return ParseDurationString(n)
	}
	return 0, fmt.Errorf("duration must be a number (seconds) or string, got %T", v)
}

func secondsToDuration(seconds float64) (time.Duration, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
