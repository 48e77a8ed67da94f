package mockservice

import (
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/straja-ai/desens/internal/detection"
)

// BlockedMessage replaces the whole text on a BLOCK decision.
const BlockedMessage = "Text too sensitive to be sent as is."

const ruleConfidence = 0.99

type rule struct {
	typ string
	re  *regexp.Regexp
}

// Rules are applied in order; a match overlapping an earlier one is dropped.
var defaultRules = []rule{
	{typ: "EMAIL", re: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{typ: "BANK_IBAN", re: regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){3,7}(?: ?[A-Z0-9]{1,3})?\b`)},
	{typ: "CREDIT_CARD", re: regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`)},
	{typ: "SSN", re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{typ: "IP_ADDRESS", re: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{typ: "PHONE", re: regexp.MustCompile(`(?:\+\d{1,3}[ .-]?)?\(?\d{2,4}\)?(?:[ .-]?\d{2,4}){2,4}\b`)},
}

// Weights is the risk configuration of the decision engine.
type Weights struct {
	PerType        map[string]float64
	Default        float64
	MaskThreshold  float64
	BlockThreshold float64
}

// DefaultWeights returns the configuration the mock starts with.
func DefaultWeights() Weights {
	return Weights{
		PerType: map[string]float64{
			"EMAIL":       2,
			"PHONE":       2,
			"IP_ADDRESS":  1,
			"PERSON":      3,
			"SSN":         6,
			"BANK_IBAN":   6,
			"CREDIT_CARD": 8,
		},
		Default:        1,
		MaskThreshold:  0.2,
		BlockThreshold: 0.7,
	}
}

// Engine detects, scores and masks text. It is safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	weights Weights
	rules   []rule
}

// NewEngine creates an engine with the given weights.
func NewEngine(w Weights) *Engine {
	return &Engine{weights: copyWeights(w), rules: defaultRules}
}

// SetWeights replaces the per-type weights; default and thresholds stay.
func (e *Engine) SetWeights(perType map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights.PerType = make(map[string]float64, len(perType))
	for k, v := range perType {
		e.weights.PerType[strings.ToUpper(strings.TrimSpace(k))] = v
	}
}

// Weights returns a copy of the current configuration.
func (e *Engine) Weights() Weights {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyWeights(e.weights)
}

type match struct {
	typ        string
	start, end int // byte offsets
}

// Analysis is the outcome of one pass over a text.
type Analysis struct {
	SanitizedText string
	Decision      detection.Decision
	RiskScore     float64
	Entities      []detection.Entity
}

// Analyze runs detection, scoring and masking over text.
// Entity offsets are reported in characters, not bytes.
func (e *Engine) Analyze(text string) Analysis {
	matches := e.detect(text)
	decision, score := e.decide(matches)

	entities := make([]detection.Entity, 0, len(matches))
	for _, m := range matches {
		entities = append(entities, detection.Entity{
			Type:       m.typ,
			Value:      text[m.start:m.end],
			Confidence: ruleConfidence,
			Start:      utf8.RuneCountInString(text[:m.start]),
			End:        utf8.RuneCountInString(text[:m.end]),
			Source:     "rules",
		})
	}

	return Analysis{
		SanitizedText: mask(text, matches, decision),
		Decision:      decision,
		RiskScore:     score,
		Entities:      entities,
	}
}

func (e *Engine) detect(text string) []match {
	var out []match
	for _, r := range e.rules {
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			m := match{typ: r.typ, start: loc[0], end: loc[1]}
			if overlapsAny(m, out) {
				continue
			}
			out = append(out, m)
		}
	}
	return out
}

func overlapsAny(m match, accepted []match) bool {
	for _, a := range accepted {
		if m.start < a.end && a.start < m.end {
			return true
		}
	}
	return false
}

func (e *Engine) decide(matches []match) (detection.Decision, float64) {
	w := e.Weights()
	var sum float64
	for _, m := range matches {
		if v, ok := w.PerType[m.typ]; ok {
			sum += v
		} else {
			sum += w.Default
		}
	}
	score := math.Min(sum/10, 1)
	switch {
	case score < w.MaskThreshold:
		return detection.DecisionAllow, score
	case score < w.BlockThreshold:
		return detection.DecisionMask, score
	default:
		return detection.DecisionBlock, score
	}
}

func mask(text string, matches []match, decision detection.Decision) string {
	switch decision {
	case detection.DecisionAllow:
		return text
	case detection.DecisionBlock:
		return BlockedMessage
	}
	ordered := append([]match(nil), matches...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].start > ordered[j].start })
	out := text
	for _, m := range ordered {
		out = out[:m.start] + "<" + m.typ + "_MASKED>" + out[m.end:]
	}
	return out
}

// GuessSourceType maps a content type or file extension to a source type.
// Content type wins; unknown inputs are "binary".
func GuessSourceType(filename, contentType string) string {
	if ct := strings.ToLower(contentType); ct != "" {
		switch {
		case strings.Contains(ct, "pdf"):
			return "pdf"
		case strings.Contains(ct, "word"), strings.Contains(ct, "officedocument"):
			return "docx"
		case strings.Contains(ct, "image"):
			return "image"
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".docx", ".doc":
		return "docx"
	case ".png", ".jpg", ".jpeg", ".tiff", ".bmp":
		return "image"
	}
	return "binary"
}

func copyWeights(w Weights) Weights {
	out := w
	out.PerType = make(map[string]float64, len(w.PerType))
	for k, v := range w.PerType {
		out.PerType[k] = v
	}
	return out
}
