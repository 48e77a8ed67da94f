// Package publish delivers regression progress events to external sinks
// (JSONL files, webhooks) through an asynchronous, non-blocking emitter.
package publish

import (
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/desens/internal/regression"
)

const EventVersion = "1"

type Kind string

const (
	KindCase Kind = "case"
	KindRun  Kind = "run"
)

// CasePayload describes one evaluated case. Case text and entity values are
// never included.
type CasePayload struct {
	Index      int      `json:"index"`
	ID         string   `json:"id"`
	Expected   []string `json:"expected"`
	Detected   []string `json:"detected"`
	Decision   string   `json:"decision,omitempty"`
	RiskScore  *float64 `json:"risk_score,omitempty"`
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	DurationMs float64  `json:"duration_ms"`
}

type RunPayload struct {
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	Total      int     `json:"total"`
	StartedAt  string  `json:"started_at"`
	FinishedAt string  `json:"finished_at"`
	DurationMs float64 `json:"duration_ms"`
}

// Event is the canonical published payload.
type Event struct {
	Version   string       `json:"version"`
	ID        string       `json:"id"`
	Timestamp string       `json:"timestamp"`
	RunID     string       `json:"run_id"`
	Kind      Kind         `json:"kind"`
	Case      *CasePayload `json:"case,omitempty"`
	Run       *RunPayload  `json:"run,omitempty"`
}

// NewCaseEvent builds the event for one finished case.
func NewCaseEvent(runID string, index int, o regression.Outcome) *Event {
	p := &CasePayload{
		Index:      index,
		ID:         o.CaseID,
		Expected:   copyStrings(o.Expected),
		Detected:   copyStrings(o.Detected),
		Decision:   string(o.Decision),
		Status:     status(o.Passed),
		DurationMs: millis(o.Duration),
	}
	if o.RiskScore != nil {
		s := *o.RiskScore
		p.RiskScore = &s
	}
	if o.Err != nil {
		p.Error = o.Err.Error()
	}
	ev := newEvent(runID, KindCase)
	ev.Case = p
	return ev
}

// NewRunEvent builds the summary event for a finished run.
func NewRunEvent(r *regression.Report) *Event {
	ev := newEvent(r.RunID, KindRun)
	ev.Run = &RunPayload{
		Passed:     r.PassedCount,
		Failed:     r.FailedCount,
		Total:      r.TotalCount,
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: r.FinishedAt.UTC().Format(time.RFC3339Nano),
		DurationMs: millis(r.FinishedAt.Sub(r.StartedAt)),
	}
	return ev
}

func newEvent(runID string, kind Kind) *Event {
	return &Event{
		Version:   EventVersion,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     runID,
		Kind:      kind,
	}
}

func status(passed bool) string {
	if passed {
		return "OK"
	}
	return "KO"
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
