// Package present projects detection results and regression reports onto
// display-agnostic view models. Every function here is pure: it performs no
// I/O, never mutates its input and returns the same output for the same input.
package present

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/straja-ai/desens/internal/detection"
)

const (
	// NoEntitiesMessage replaces the entity table when nothing was detected.
	NoEntitiesMessage = "No sensitive entity detected."
	// NoGuardRiskFlag replaces an empty guard flag list.
	NoGuardRiskFlag = "No risk detected"
)

// Badge is the visual decision marker. Class is a stable style key.
type Badge struct {
	Label string `json:"label"`
	Class string `json:"class"`
}

// EntityRow is one line of the entity table.
type EntityRow struct {
	Type       string `json:"type"`
	Value      string `json:"value"`
	Confidence string `json:"confidence"`
	Span       string `json:"span"`
	Source     string `json:"source"`
}

// GuardView is the secondary assessment block.
type GuardView struct {
	Decision string   `json:"decision"`
	Score    string   `json:"score"`
	Flags    []string `json:"flags"`
	Reason   string   `json:"reason,omitempty"`
}

// ResultView is the projection of one detection result.
type ResultView struct {
	SanitizedText string `json:"sanitized_text"`
	RiskScore     string `json:"risk_score"`
	Badge         *Badge `json:"badge,omitempty"`
	// Entities is nil when EntitiesMessage is set.
	Entities        []EntityRow `json:"entities,omitempty"`
	EntitiesMessage string      `json:"entities_message,omitempty"`
	SourceLine      string      `json:"source_line"`
	Guard           *GuardView  `json:"guard,omitempty"`
}

// Result projects a normalized detection result.
func Result(r *detection.Result) ResultView {
	if r == nil {
		r = &detection.Result{SanitizedText: detection.Placeholder}
	}

	v := ResultView{
		SanitizedText: r.SanitizedText,
		RiskScore:     Score(r.RiskScore),
		Badge:         DecisionBadge(r.Decision),
		SourceLine:    sourceLine(r.Metadata),
	}
	if v.SanitizedText == "" {
		v.SanitizedText = detection.Placeholder
	}

	if len(r.Entities) == 0 {
		v.EntitiesMessage = NoEntitiesMessage
	} else {
		v.Entities = make([]EntityRow, 0, len(r.Entities))
		for _, e := range r.Entities {
			v.Entities = append(v.Entities, EntityRow{
				Type:       e.Type,
				Value:      e.Value,
				Confidence: Percent(e.Confidence),
				Span:       Span(e.Start, e.End),
				Source:     e.Source,
			})
		}
	}

	if r.Guard != nil {
		v.Guard = guardView(r.Guard)
	}
	return v
}

// Score renders a [0,1] score with two decimals, or the placeholder.
func Score(s *float64) string {
	if s == nil || *s < 0 || *s > 1 {
		return detection.Placeholder
	}
	return strconv.FormatFloat(*s, 'f', 2, 64)
}

// Percent renders a confidence as a one-decimal percentage.
func Percent(confidence float64) string {
	return strconv.FormatFloat(confidence*100, 'f', 1, 64) + "%"
}

// Span renders an offset pair.
func Span(start, end int) string {
	return fmt.Sprintf("%d–%d", start, end)
}

// DecisionBadge returns nil for anything outside ALLOW, MASK and BLOCK.
func DecisionBadge(d detection.Decision) *Badge {
	if !d.Recognized() {
		return nil
	}
	return &Badge{
		Label: string(d),
		Class: "badge-" + strings.ToLower(string(d)),
	}
}

func guardView(g *detection.GuardAssessment) *GuardView {
	v := &GuardView{
		Decision: g.Decision,
		Score:    Score(g.Score),
		Reason:   g.Reason,
	}
	if strings.TrimSpace(v.Decision) == "" {
		v.Decision = detection.Placeholder
	}
	if len(g.Flags) == 0 {
		v.Flags = []string{NoGuardRiskFlag}
	} else {
		v.Flags = append([]string(nil), g.Flags...)
	}
	return v
}

func sourceLine(m detection.SourceMetadata) string {
	return fmt.Sprintf("Source: %s | File: %s", orPlaceholder(m.SourceType), orPlaceholder(m.Filename))
}

// FileDetails summarizes file metadata, listing only the parts present.
func FileDetails(m detection.SourceMetadata) string {
	var parts []string
	if m.Filename != "" {
		parts = append(parts, "File: "+m.Filename)
	}
	if m.SourceType != "" {
		parts = append(parts, "Type: "+m.SourceType)
	}
	if m.Pages != nil && *m.Pages > 0 {
		parts = append(parts, fmt.Sprintf("Pages: %d", *m.Pages))
	}
	if m.Paragraphs != nil && *m.Paragraphs > 0 {
		parts = append(parts, fmt.Sprintf("Paragraphs: %d", *m.Paragraphs))
	}
	if m.Width != nil && m.Height != nil && *m.Width > 0 && *m.Height > 0 {
		parts = append(parts, fmt.Sprintf("Dimensions: %dx%d", *m.Width, *m.Height))
	}
	return strings.Join(parts, " | ")
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return detection.Placeholder
	}
	return s
}
