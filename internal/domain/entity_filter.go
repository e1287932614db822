package domain

import (
	"net/url"
	"strings"

	"github.com/spf13/cast"
)

// Value is a single inbound filter value: a scalar string, possibly
// comma-delimited, or an explicit list.
type Value struct {
	items []string
	list  bool
}

// Scalar wraps a single string value.
func Scalar(s string) Value {
	return Value{items: []string{s}}
}

// List wraps an explicit list of values.
func List(items ...string) Value {
	return Value{items: append([]string(nil), items...), list: true}
}

// IsList reports whether the value arrived as an explicit list.
func (v Value) IsList() bool {
	return v.list
}

// Empty reports whether the value carries nothing usable.
func (v Value) Empty() bool {
	for _, item := range v.items {
		if item != "" {
			return false
		}
	}
	return true
}

// String returns the scalar form; lists are joined with commas.
func (v Value) String() string {
	return strings.Join(v.items, ",")
}

// Items returns the raw items without splitting scalars.
func (v Value) Items() []string {
	return append([]string(nil), v.items...)
}

// Values returns list items, or the comma-separated parts of a scalar.
// Parts are trimmed and empty parts are dropped.
func (v Value) Values() []string {
	raw := v.items
	if !v.list {
		raw = strings.Split(v.String(), ",")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Params is the inbound filter mapping of one request
type Params map[string]Value

// Get returns the value stored under name.
func (p Params) Get(name string) (Value, bool) {
	v, ok := p[name]
	return v, ok
}

// Has reports whether the key is present, even with an empty value.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// String returns the scalar form of a parameter or "" when absent.
func (p Params) String(name string) string {
	v, ok := p[name]
	if !ok {
		return ""
	}
	return v.String()
}

// Clone returns a shallow copy that can be rewritten without touching the
// caller's mapping.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for key, value := range p {
		out[key] = value
	}
	return out
}

// ParamsFromQuery converts URL query values. Keys ending in "[]" and keys
// given more than once become lists.
func ParamsFromQuery(values url.Values) Params {
	params := make(Params, len(values))
	for key, items := range values {
		name := strings.TrimSuffix(key, "[]")
		explicit := name != key
		if existing, ok := params[name]; ok {
			params[name] = List(append(existing.items, items...)...)
			continue
		}
		if explicit || len(items) > 1 {
			params[name] = List(items...)
			continue
		}
		if len(items) == 0 {
			params[name] = Scalar("")
			continue
		}
		params[name] = Scalar(items[0])
	}
	return params
}

// ParamsFromMap converts a decoded JSON body or any loosely typed mapping.
func ParamsFromMap(values map[string]any) Params {
	params := make(Params, len(values))
	for key, raw := range values {
		switch typed := raw.(type) {
		case nil:
			params[key] = Scalar("")
		case []string:
			params[key] = List(typed...)
		case []any:
			items := make([]string, len(typed))
			for i, item := range typed {
				items[i] = cast.ToString(item)
			}
			params[key] = List(items...)
		default:
			params[key] = Scalar(cast.ToString(typed))
		}
	}
	return params
}
