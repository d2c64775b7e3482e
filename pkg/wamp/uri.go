package wamp

import (
	"strings"
	"unicode"
)

// Predefined URIs used by the client.
const (
	ErrorInvalidURI           URI = "wamp.error.invalid_uri"
	ErrorNoSuchProcedure      URI = "wamp.error.no_such_procedure"
	ErrorProcedureExists      URI = "wamp.error.procedure_already_exists"
	ErrorNoSuchRegistration   URI = "wamp.error.no_such_registration"
	ErrorNoSuchSubscription   URI = "wamp.error.no_such_subscription"
	ErrorInvalidArgument      URI = "wamp.error.invalid_argument"
	ErrorNotAuthorized        URI = "wamp.error.not_authorized"
	ErrorAuthenticationFailed URI = "wamp.error.authentication_failed"
	ErrorNoSuchRealm          URI = "wamp.error.no_such_realm"
	ErrorNoAuthMethod         URI = "wamp.error.no_auth_method"
	ErrorCanceled             URI = "wamp.error.canceled"
	ErrorProtocolViolation    URI = "wamp.error.protocol_violation"

	// ErrorRuntime is sent for invocations whose handler failed without
	// returning a CallError.
	ErrorRuntime URI = "wamp.error.runtime_error"

	CloseNormal         URI = "wamp.close.normal"
	CloseSystemShutdown URI = "wamp.close.system_shutdown"
	CloseRealm          URI = "wamp.close.close_realm"
	CloseGoodbyeAndOut  URI = "wamp.close.goodbye_and_out"
)

// ValidStrict reports whether u follows the strict URI rules: non-empty
// dot-separated components of lower-case letters, digits and underscores,
// and no reserved "wamp." prefix.
func (u URI) ValidStrict() bool {
	return u.validStrict(false)
}

// ValidStrictWildcard is ValidStrict for wildcard subscription topics, where
// an empty component matches any value.
func (u URI) ValidStrictWildcard() bool {
	return u.validStrict(true)
}

func (u URI) validStrict(allowEmpty bool) bool {
	s := string(u)
	if s == "" || strings.HasPrefix(s, "wamp.") {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			if allowEmpty {
				continue
			}
			return false
		}
		for _, r := range part {
			if r == '_' || unicode.IsDigit(r) {
				continue
			}
			if !unicode.IsLetter(r) || !unicode.IsLower(r) {
				return false
			}
		}
	}
	return true
}

// ValidLoose reports whether u follows the loose URI rules: components may
// contain anything except whitespace and '#'. Empty components are only
// allowed when allowEmpty is set, which is the case for wildcard
// subscriptions.
func (u URI) ValidLoose(allowEmpty bool) bool {
	s := string(u)
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			if allowEmpty {
				continue
			}
			return false
		}
		if strings.ContainsAny(part, "#") || strings.IndexFunc(part, unicode.IsSpace) >= 0 {
			return false
		}
	}
	return true
}
