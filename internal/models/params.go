package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Params is a flat map of request parameters. Values must be scalars
// (string, bool, integer or floating point numbers).
type Params map[string]any

// Validate rejects nested or non-scalar values
func (p Params) Validate() error {
	for k, v := range p {
		switch v.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return fmt.Errorf("param %q has non-scalar value of type %T", k, v)
		}
	}
	return nil
}

// Canonical returns a deterministic encoding with keys sorted
func (p Params) Canonical() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return "", fmt.Errorf("failed to encode param key %q: %w", k, err)
		}
		vb, err := json.Marshal(p[k])
		if err != nil {
			return "", fmt.Errorf("failed to encode param %q: %w", k, err)
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String(), nil
}

// String returns the value of key formatted as a string, or "" when absent
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
