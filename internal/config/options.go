package config

import "encoding/json"

// Options is a free-form JSON object with typed, defaulting accessors. The
// HTTP API uses it for per-request overrides.
type Options map[string]any

// String returns the string at key or def.
func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the bool at key or def.
func (o Options) Bool(key string, def bool) bool {
	if b, ok := o[key].(bool); ok {
		return b
	}
	return def
}

// Int returns the number at key truncated to int, or def. JSON numbers
// decode as float64.
func (o Options) Int(key string, def int) int {
	switch n := o[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

// Float returns the number at key or def.
func (o Options) Float(key string, def float64) float64 {
	switch n := o[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return def
}

// Rune returns the first rune of the string at key, or def when missing or
// empty.
func (o Options) Rune(key string, def rune) rune {
	if s, ok := o[key].(string); ok && s != "" {
		return []rune(s)[0]
	}
	return def
}

// StringMap returns the string-valued entries of the object at key. Other
// values are skipped. The result is never nil.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if m, ok := o[key].(map[string]any); ok {
		for k, v := range m {
			if s, ok := v.(string); ok {
				res[k] = s
			}
		}
	}
	return res
}

// UnmarshalJSON decodes a missing or null object as an empty Options.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
