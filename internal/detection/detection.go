// Package detection holds the canonical result shape returned by the
// sanitization service and the normalizer that builds it from raw responses.
package detection

// Placeholder is rendered wherever a textual field is absent.
const Placeholder = "—"

// Decision is the coarse handling verdict issued by the service.
type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionMask  Decision = "MASK"
	DecisionBlock Decision = "BLOCK"
)

// Recognized reports whether d is one of ALLOW, MASK or BLOCK.
func (d Decision) Recognized() bool {
	switch d {
	case DecisionAllow, DecisionMask, DecisionBlock:
		return true
	default:
		return false
	}
}

// Entity is a detected span of input text classified into a sensitive category.
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Source     string  `json:"source,omitempty"`
}

// SourceMetadata describes where the analysed text came from.
// Width and Height are either both set or both nil.
type SourceMetadata struct {
	SourceType string `json:"source_type,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Pages      *int   `json:"pages,omitempty"`
	Paragraphs *int   `json:"paragraphs,omitempty"`
	Width      *int   `json:"width,omitempty"`
	Height     *int   `json:"height,omitempty"`
	Size       *int64 `json:"size,omitempty"`
	Lang       string `json:"lang,omitempty"`
}

// GuardAssessment is the secondary content-risk verdict attached by the service.
type GuardAssessment struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	Decision string   `json:"decision,omitempty"`
	Score    *float64 `json:"score"`
	Flags    []string `json:"flags"`
	Reason   string   `json:"reason,omitempty"`
}

// Result is the fully defaulted, canonical detection result.
type Result struct {
	SanitizedText string           `json:"sanitized_text"`
	RiskScore     *float64         `json:"risk_score"`
	Decision      Decision         `json:"decision"`
	Entities      []Entity         `json:"entities"`
	Metadata      SourceMetadata   `json:"metadata"`
	Guard         *GuardAssessment `json:"guard,omitempty"`
}

// EntityTypes returns the entity types in detector order, duplicates included.
func (r *Result) EntityTypes() []string {
	if r == nil {
		return []string{}
	}
	out := make([]string, 0, len(r.Entities))
	for _, e := range r.Entities {
		out = append(out, e.Type)
	}
	return out
}
