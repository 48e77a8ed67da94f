// Package regression runs labeled datasets against the sanitization service
// and aggregates pass/fail reports.
package regression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/straja-ai/desens/internal/detection"
)

// ClassifyFunc submits one text and returns its normalized result.
type ClassifyFunc func(ctx context.Context, text string) (*detection.Result, error)

// Outcome is the evaluation of one case.
type Outcome struct {
	CaseID    string
	Expected  []string
	Detected  []string
	Decision  detection.Decision
	RiskScore *float64
	Passed    bool
	// Err is set when the service call or normalization failed for this case.
	Err      error
	Duration time.Duration
}

// Report aggregates one run. Outcomes follow dataset order.
type Report struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcomes    []Outcome
	PassedCount int
	TotalCount  int
	FailedCount int
}

// Observer is notified as outcomes are produced. With Concurrency > 1,
// CaseDone may be called from several goroutines and out of index order.
type Observer interface {
	CaseDone(ctx context.Context, runID string, index int, o Outcome)
	RunDone(ctx context.Context, r *Report)
}

// Evaluator drives a ClassifyFunc over a dataset.
type Evaluator struct {
	// Concurrency bounds in-flight classify calls. Values below 2 keep the
	// strictly sequential single-flight mode.
	Concurrency int
	Observers   []Observer
}

var errNilResult = errors.New("service returned no result")

// Passed reports whether every expected type appears among detected.
// Order and multiplicity in detected do not matter. Both sides are compared
// in NormalizeType form.
func Passed(expected, detected []string) bool {
	set := make(map[string]struct{}, len(detected))
	for _, d := range detected {
		set[NormalizeType(d)] = struct{}{}
	}
	for _, e := range expected {
		if _, ok := set[NormalizeType(e)]; !ok {
			return false
		}
	}
	return true
}

// Evaluate runs every case and returns the aggregated report. Per-case
// failures are recorded as failed outcomes; the run is never aborted.
func (e *Evaluator) Evaluate(ctx context.Context, cases []Case, classify ClassifyFunc) *Report {
	rep := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Outcomes:  make([]Outcome, len(cases)),
	}

	if e.concurrency() > 1 && len(cases) > 1 {
		var g errgroup.Group
		g.SetLimit(e.concurrency())
		for i, c := range cases {
			g.Go(func() error {
				rep.Outcomes[i] = evaluateCase(ctx, c, classify)
				e.caseDone(ctx, rep.RunID, i, rep.Outcomes[i])
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, c := range cases {
			rep.Outcomes[i] = evaluateCase(ctx, c, classify)
			e.caseDone(ctx, rep.RunID, i, rep.Outcomes[i])
		}
	}

	rep.TotalCount = len(rep.Outcomes)
	for _, o := range rep.Outcomes {
		if o.Passed {
			rep.PassedCount++
		}
		if o.Err != nil {
			rep.FailedCount++
		}
	}
	rep.FinishedAt = time.Now().UTC()

	for _, obs := range e.Observers {
		obs.RunDone(ctx, rep)
	}
	return rep
}

func (e *Evaluator) concurrency() int {
	if e == nil || e.Concurrency < 1 {
		return 1
	}
	return e.Concurrency
}

func (e *Evaluator) caseDone(ctx context.Context, runID string, i int, o Outcome) {
	for _, obs := range e.Observers {
		obs.CaseDone(ctx, runID, i, o)
	}
}

func evaluateCase(ctx context.Context, c Case, classify ClassifyFunc) (o Outcome) {
	start := time.Now()
	o = Outcome{
		CaseID:   c.ID,
		Expected: append([]string{}, c.Expected...),
		Detected: []string{},
	}
	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("case %s: classify panicked: %v", c.ID, r)
			o.Detected = []string{}
			o.Passed = false
		}
		o.Duration = time.Since(start)
	}()

	res, err := classify(ctx, c.Text)
	if err != nil {
		o.Err = err
		return o
	}
	if res == nil {
		o.Err = errNilResult
		return o
	}

	o.Detected = res.EntityTypes()
	o.Decision = res.Decision
	o.RiskScore = res.RiskScore
	o.Passed = Passed(o.Expected, o.Detected)
	return o
}
