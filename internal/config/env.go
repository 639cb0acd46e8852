package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	StrPrefix  = "HL_CFG_STR_"
	JSONPrefix = "HL_CFG_JSON_"
)

// ConfigParseError reports a configuration entry that could not be
// interpreted. It names the offending key but never carries the raw value,
// which may be a secret.
type ConfigParseError struct {
	Key string
	Msg string
	err error
}

func (e *ConfigParseError) Error() string {
	if e.Key == "" {
		return e.Msg
	}
	return fmt.Sprintf("config %s: %s", e.Key, e.Msg)
}

func (e *ConfigParseError) Unwrap() error { return e.err }

// Values maps config names to their decoded values. Names have their prefix
// removed.
type Values map[string]any

// Lookup returns the value for name.
func (v Values) Lookup(name string) (any, bool) {
	x, ok := v[name]
	return x, ok
}

// ParseEnv collects every HL_CFG_STR_ and HL_CFG_JSON_ entry from environ.
// String entries are taken verbatim; JSON entries are decoded with integers
// kept as int64. A name supplied under both prefixes is an error.
func ParseEnv(environ map[string]string) (Values, error) {
	keys := make([]string, 0, len(environ))
	for k := range environ {
		keys = append(keys, k)
	}
	// Deterministic error reporting when several entries are bad.
	sort.Strings(keys)

	out := make(Values)
	source := make(map[string]string)

	for _, key := range keys {
		var (
			name  string
			value any
		)
		switch {
		case strings.HasPrefix(key, StrPrefix):
			name = strings.TrimPrefix(key, StrPrefix)
			value = environ[key]
		case strings.HasPrefix(key, JSONPrefix):
			name = strings.TrimPrefix(key, JSONPrefix)
			v, err := decodeJSON(environ[key])
			if err != nil {
				return nil, &ConfigParseError{Key: key, Msg: jsonFailure(err), err: err}
			}
			value = v
		default:
			continue
		}

		if name == "" {
			return nil, &ConfigParseError{Key: key, Msg: "missing config name after prefix"}
		}
		if prev, dup := source[name]; dup {
			return nil, &ConfigParseError{
				Key: key,
				Msg: fmt.Sprintf("config name %s is also set by %s", name, prev),
			}
		}
		source[name] = key
		out[name] = value
	}
	return out, nil
}

func decodeJSON(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	default:
		return v
	}
}

// jsonFailure describes a decode failure without quoting the input. The
// standard library's messages can echo fragments of the value.
func jsonFailure(err error) string {
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("invalid JSON (at character %d)", syntaxErr.Offset)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "invalid JSON (unexpected end of input)"
	default:
		return "invalid JSON"
	}
}

