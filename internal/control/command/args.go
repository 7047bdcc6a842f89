// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package command

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Args are decoded command arguments. Accessors never fail: a missing or
// wrongly typed value yields the supplied default.
type Args map[string]any

// ParseArgs decodes a JSON object. Anything else yields empty Args.
func ParseArgs(raw []byte) Args {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Args{}
	}
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil || m == nil {
		return Args{}
	}
	return Args(m)
}

func (a Args) Int64(key string, def int64) int64 {
	switch v := a[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f)
		}
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return def
}

func (a Args) Int(key string, def int) int {
	n := a.Int64(key, int64(def))
	if n > math.MaxInt32 || n < math.MinInt32 {
		return def
	}
	return int(n)
}

func (a Args) Float(key string, def float64) float64 {
	switch v := a[key].(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}

func (a Args) Bool(key string, def bool) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return def
}

// HasBool reports whether key holds a boolean.
func (a Args) HasBool(key string) bool {
	_, ok := a[key].(bool)
	return ok
}

func (a Args) String(key, def string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return def
}

// Object returns a nested object, or nil.
func (a Args) Object(key string) Args {
	if m, ok := a[key].(map[string]any); ok {
		return Args(m)
	}
	return nil
}

// Objects returns the object elements of a nested array; other elements are
// returned as nil so positions are preserved.
func (a Args) Objects(key string) []Args {
	list, ok := a[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Args, len(list))
	for i, el := range list {
		if m, ok := el.(map[string]any); ok {
			out[i] = Args(m)
		}
	}
	return out
}

// StringMap returns a nested object with scalar values rendered as strings.
func (a Args) StringMap(key string) map[string]string {
	m := a.Object(key)
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
