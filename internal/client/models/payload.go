package models

import "strings"

// Payload is the open-ended form document. Values are JSON-shaped:
// maps, slices, strings, numbers, booleans and nil.
type Payload map[string]any

// CertificateNumberField is the payload key under which the form shows the
// certificate number. It is owned by the Draft and rejected by Draft.Set.
const CertificateNumberField = "certificateNumber"

// volatileKeys are server or storage metadata that never count as an edit.
var volatileKeys = map[string]struct{}{
	"id":               {},
	"report_id":        {},
	"created_at":       {},
	"updated_at":       {},
	"pdf_url":          {},
	"pdf_generated_at": {},
}

// IsVolatileKey reports whether key is metadata rather than form content.
// Keys starting with "_" are client-side scratch values.
func IsVolatileKey(key string) bool {
	if strings.HasPrefix(key, "_") {
		return true
	}
	_, ok := volatileKeys[key]
	return ok
}

// Clone returns a deep copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// WithoutVolatile returns a deep copy with metadata keys removed at the top level.
func (p Payload) WithoutVolatile() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		if IsVolatileKey(k) {
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Merge overlays other onto a copy of p; keys in other win.
func (p Payload) Merge(other Payload) Payload {
	out := p.Clone()
	for k, v := range other {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Payload:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}
