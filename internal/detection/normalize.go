package detection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// NormalizationError reports a response that is not a well-formed detection object.
type NormalizationError struct {
	Field string
	Err   error
}

func (e *NormalizationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("normalize detection response: %v", e.Err)
	}
	return fmt.Sprintf("normalize detection response: field %s: %v", e.Field, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

var errNotObject = errors.New("not a JSON object")

type object map[string]json.RawMessage

// Normalize maps a raw service response onto a Result. Scalars that are
// missing or have the wrong type are defaulted; only structural problems
// (non-object payload, entities that are not a list of objects) fail.
func Normalize(raw []byte) (*Result, error) {
	top, err := decodeObject(raw)
	if err != nil {
		return nil, &NormalizationError{Err: err}
	}

	res := &Result{
		SanitizedText: Placeholder,
		Entities:      []Entity{},
	}

	if s, ok := stringField(top, "sanitized_text"); ok && s != "" {
		res.SanitizedText = s
	}
	if f, ok := unitField(top, "risk_score"); ok {
		res.RiskScore = &f
	}
	if s, ok := stringField(top, "decision"); ok {
		res.Decision = Decision(strings.TrimSpace(s))
	}

	entities, err := normalizeEntities(top["entities"])
	if err != nil {
		return nil, err
	}
	res.Entities = entities

	if raw, ok := present(top, "metadata"); ok {
		meta, err := decodeObject(raw)
		if err != nil {
			return nil, &NormalizationError{Field: "metadata", Err: err}
		}
		res.Metadata = normalizeMetadata(meta)
		if g, ok := present(meta, "llm_guard"); ok {
			if guard, err := decodeObject(g); err == nil {
				res.Guard = normalizeGuard(guard)
			}
		}
	}

	return res, nil
}

func normalizeEntities(raw json.RawMessage) ([]Entity, error) {
	out := []Entity{}
	if isAbsent(raw) {
		return out, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &NormalizationError{Field: "entities", Err: errors.New("not a JSON array")}
	}
	for i, item := range items {
		obj, err := decodeObject(item)
		if err != nil {
			return nil, &NormalizationError{Field: fmt.Sprintf("entities[%d]", i), Err: err}
		}
		e := Entity{}
		e.Type, _ = stringField(obj, "type")
		e.Value, _ = stringField(obj, "value")
		e.Source, _ = stringField(obj, "source")
		if c, ok := numberField(obj, "confidence"); ok {
			e.Confidence = clampUnit(c)
		}
		if v, ok := intField(obj, "start"); ok {
			e.Start = v
		}
		if v, ok := intField(obj, "end"); ok {
			e.End = v
		}
		if e.End < e.Start {
			e.End = e.Start
		}
		out = append(out, e)
	}
	return out, nil
}

func normalizeMetadata(meta object) SourceMetadata {
	m := SourceMetadata{}
	m.SourceType, _ = stringField(meta, "source_type")
	m.Filename, _ = stringField(meta, "filename")
	m.Lang, _ = stringField(meta, "lang")
	if v, ok := intField(meta, "pages"); ok {
		m.Pages = &v
	}
	if v, ok := intField(meta, "paragraphs"); ok {
		m.Paragraphs = &v
	}
	w, wok := intField(meta, "width")
	h, hok := intField(meta, "height")
	if wok && hok {
		m.Width, m.Height = &w, &h
	}
	if v, ok := numberField(meta, "size"); ok && v >= 0 {
		size := int64(v)
		m.Size = &size
	}
	return m
}

func normalizeGuard(g object) *GuardAssessment {
	out := &GuardAssessment{Flags: []string{}}
	if d, ok := stringField(g, "llm_guard_decision"); ok {
		out.Decision = d
	} else if d, ok := stringField(g, "decision"); ok {
		out.Decision = d
	}
	if s, ok := unitField(g, "llm_guard_score"); ok {
		out.Score = &s
	} else if s, ok := unitField(g, "risk_score"); ok {
		out.Score = &s
	}
	flags, ok := present(g, "llm_guard_flags")
	if !ok {
		flags = g["flags"]
	}
	var items []json.RawMessage
	if err := json.Unmarshal(flags, &items); err == nil {
		for _, item := range items {
			var s string
			if json.Unmarshal(item, &s) == nil {
				out.Flags = append(out.Flags, s)
			}
		}
	}
	if raw, ok := present(g, "enabled"); ok {
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			out.Enabled = &b
		}
	}
	out.Reason, _ = stringField(g, "reason")
	return out
}

func decodeObject(raw []byte) (object, error) {
	if isAbsent(raw) {
		return nil, errNotObject
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, errNotObject
	}
	return obj, nil
}

func isAbsent(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func present(obj object, key string) (json.RawMessage, bool) {
	raw, ok := obj[key]
	if !ok || isAbsent(raw) {
		return nil, false
	}
	return raw, true
}

func stringField(obj object, key string) (string, bool) {
	raw, ok := present(obj, key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func numberField(obj object, key string) (float64, bool) {
	raw, ok := present(obj, key)
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// maxExactInt is the largest magnitude a float64 holds without losing
// integer precision.
const maxExactInt = 1 << 53

// intField treats non-finite numbers and magnitudes beyond maxExactInt as
// absent.
func intField(obj object, key string) (int, bool) {
	f, ok := numberField(obj, key)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxExactInt {
		return 0, false
	}
	return int(f), true
}

// unitField accepts only numbers within [0,1].
func unitField(obj object, key string) (float64, bool) {
	f, ok := numberField(obj, key)
	if !ok || f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
