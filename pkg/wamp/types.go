package wamp

// URI identifies realms, topics, procedures and errors.
type URI string

// Dict is a WAMP dictionary. Keys are always strings.
type Dict map[string]any

// List is a WAMP list of arbitrary values.
type List []any

// MatchPolicy selects how a subscription's topic is matched by the broker.
// The client passes it through without interpreting it.
type MatchPolicy string

const (
	MatchExact    MatchPolicy = "exact"
	MatchPrefix   MatchPolicy = "prefix"
	MatchWildcard MatchPolicy = "wildcard"
)

// Valid reports whether m is one of the defined policies. The empty policy is
// treated as exact.
func (m MatchPolicy) Valid() bool {
	switch m {
	case "", MatchExact, MatchPrefix, MatchWildcard:
		return true
	}
	return false
}

// String returns the value of key in d if it is a string.
func (d Dict) String(key string) (string, bool) {
	v, ok := d[key].(string)
	return v, ok
}

// Dict returns the value of key in d if it is a dictionary.
func (d Dict) Dict(key string) (Dict, bool) {
	switch v := d[key].(type) {
	case Dict:
		return v, true
	case map[string]any:
		return Dict(v), true
	}
	return nil, false
}

// Clone returns a shallow copy of d. A nil Dict clones to an empty one.
func (d Dict) Clone() Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
