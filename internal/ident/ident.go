// Package ident normalizes the identifier fields of backend records.
//
// The render backend is not consistent about where it puts a record's
// identifier: some responses carry "id", some "_id", and some only the
// entity-specific field. Every record is passed through Resolve before it is
// compared, selected or sent back to the backend.
package ident

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is one decoded JSON object returned by the backend.
type Record map[string]any

// Kind selects the entity-specific identifier field.
type Kind string

const (
	KindProject Kind = "project"
	KindAsset   Kind = "asset"
)

// MissingIdentifierError is returned when none of the candidate fields of a
// record holds a usable identifier.
type MissingIdentifierError struct {
	Kind       Kind
	Candidates []string
}

func (e *MissingIdentifierError) Error() string {
	return fmt.Sprintf("%s record has no identifier (checked %s)", e.Kind, strings.Join(e.Candidates, ", "))
}

// Fields returns the candidate identifier fields for kind in priority order.
func Fields(kind Kind) []string {
	switch kind {
	case KindProject:
		return []string{"id", "_id", "project_id"}
	case KindAsset:
		return []string{"id", "_id", "asset_id"}
	default:
		return []string{"id", "_id"}
	}
}

// Resolve returns the canonical identifier of rec.
func Resolve(rec Record, kind Kind) (string, error) {
	candidates := Fields(kind)
	for _, field := range candidates {
		if id, ok := scalar(rec[field]); ok {
			return id, nil
		}
	}
	return "", &MissingIdentifierError{Kind: kind, Candidates: candidates}
}

// String returns the trimmed string value of field, or "" when the field is
// absent or not a scalar.
func (r Record) String(field string) string {
	s, _ := scalar(r[field])
	return s
}

// Float returns the numeric value of field.
func (r Record) Float(field string) (float64, bool) {
	switch v := r[field].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		if f, err := t.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		s := strings.TrimSpace(t.String())
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}
