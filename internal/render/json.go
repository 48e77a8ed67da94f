package render

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/straja-ai/desens/internal/present"
)

// JSON writes one JSON document per call, for scripting.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSON(w io.Writer) *JSON {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return &JSON{enc: enc}
}

type resultDoc struct {
	SanitizedText string              `json:"sanitized_text"`
	RiskScore     string              `json:"risk_score"`
	Decision      string              `json:"decision,omitempty"`
	Entities      []present.EntityRow `json:"entities"`
	Message       string              `json:"message,omitempty"`
	Source        string              `json:"source"`
	Guard         *present.GuardView  `json:"guard,omitempty"`
}

func (j *JSON) Result(v present.ResultView) error {
	doc := resultDoc{
		SanitizedText: v.SanitizedText,
		RiskScore:     v.RiskScore,
		Entities:      v.Entities,
		Message:       v.EntitiesMessage,
		Source:        v.SourceLine,
		Guard:         v.Guard,
	}
	if doc.Entities == nil {
		doc.Entities = []present.EntityRow{}
	}
	if v.Badge != nil {
		doc.Decision = v.Badge.Label
	}
	return j.encode(doc)
}

func (j *JSON) FileDetails(s string) error {
	return j.encode(map[string]string{"file_details": s})
}

func (j *JSON) Report(_ present.ReportView, doc present.ReportDocument) error {
	return j.encode(doc)
}

func (j *JSON) Error(err error) error {
	if err == nil {
		return nil
	}
	return j.encode(map[string]string{"error": err.Error()})
}

func (j *JSON) encode(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(v)
}
