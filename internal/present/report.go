package present

import (
	"fmt"
	"strings"

	"github.com/straja-ai/desens/internal/detection"
	"github.com/straja-ai/desens/internal/regression"
)

const (
	StatusOK = "OK"
	StatusKO = "KO"
)

// OutcomeRow is one line of the regression table.
type OutcomeRow struct {
	ID       string `json:"id"`
	Expected string `json:"expected"`
	Detected string `json:"detected"`
	Decision string `json:"decision"`
	Score    string `json:"score"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// ReportView is the projection of a regression report.
type ReportView struct {
	RunID   string       `json:"run_id,omitempty"`
	Summary string       `json:"summary"`
	Rows    []OutcomeRow `json:"rows"`
	Passed  int          `json:"passed"`
	Total   int          `json:"total"`
}

// Report projects a regression report for display.
func Report(r *regression.Report) ReportView {
	if r == nil {
		r = &regression.Report{}
	}
	v := ReportView{
		RunID:   r.RunID,
		Summary: fmt.Sprintf("%d / %d tests passed.", r.PassedCount, r.TotalCount),
		Rows:    make([]OutcomeRow, 0, len(r.Outcomes)),
		Passed:  r.PassedCount,
		Total:   r.TotalCount,
	}
	for _, o := range r.Outcomes {
		row := OutcomeRow{
			ID:       o.CaseID,
			Expected: strings.Join(o.Expected, ", "),
			Detected: strings.Join(o.Detected, ", "),
			Decision: orPlaceholder(string(o.Decision)),
			Score:    Score(o.RiskScore),
			Status:   status(o.Passed),
		}
		if o.Err != nil {
			row.Error = o.Err.Error()
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}

// ReportDocument is the external report output shape.
type ReportDocument struct {
	RunID    string            `json:"run_id,omitempty"`
	Passed   int               `json:"passed"`
	Total    int               `json:"total"`
	Outcomes []OutcomeDocument `json:"outcomes"`
}

// OutcomeDocument is one outcome in a ReportDocument.
type OutcomeDocument struct {
	ID        string   `json:"id"`
	Expected  []string `json:"expected"`
	Detected  []string `json:"detected"`
	Decision  string   `json:"decision"`
	RiskScore *float64 `json:"risk_score"`
	Status    string   `json:"status"`
	Error     string   `json:"error,omitempty"`
}

// Document projects a regression report onto the report output shape.
func Document(r *regression.Report) ReportDocument {
	if r == nil {
		r = &regression.Report{}
	}
	doc := ReportDocument{
		RunID:    r.RunID,
		Passed:   r.PassedCount,
		Total:    r.TotalCount,
		Outcomes: make([]OutcomeDocument, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		od := OutcomeDocument{
			ID:       o.CaseID,
			Expected: nonNil(o.Expected),
			Detected: nonNil(o.Detected),
			Decision: string(o.Decision),
			Status:   status(o.Passed),
		}
		if o.RiskScore != nil {
			s := *o.RiskScore
			od.RiskScore = &s
		}
		if o.Err != nil {
			od.Error = o.Err.Error()
		}
		doc.Outcomes = append(doc.Outcomes, od)
	}
	return doc
}

// DecisionOf exposes the badge rule for report rows.
func DecisionOf(row OutcomeRow) *Badge {
	return DecisionBadge(detection.Decision(row.Decision))
}

func status(passed bool) string {
	if passed {
		return StatusOK
	}
	return StatusKO
}

func nonNil(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
