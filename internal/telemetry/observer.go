package telemetry

import (
	"context"

	"github.com/straja-ai/desens/internal/detection"
	"github.com/straja-ai/desens/internal/regression"
)

// Observer records regression progress as metrics.
type Observer struct {
	Provider *Provider
}

var _ regression.Observer = Observer{}

func (o Observer) CaseDone(_ context.Context, _ string, _ int, out regression.Outcome) {
	status := "KO"
	if out.Passed {
		status = "OK"
	}
	o.Provider.RecordCase(status, string(out.Decision), out.Duration)
}

func (o Observer) RunDone(_ context.Context, r *regression.Report) {
	if r == nil {
		return
	}
	o.Provider.RecordRun(r.PassedCount, r.TotalCount, r.FinishedAt.Sub(r.StartedAt))
}

// Classify wraps a classifier with a client span per call.
func (p *Provider) Classify(endpoint string, next regression.ClassifyFunc) regression.ClassifyFunc {
	if p == nil {
		return next
	}
	return func(ctx context.Context, text string) (*detection.Result, error) {
		ctx, end := p.StartCall(ctx, endpoint)
		res, err := next(ctx, text)
		var (
			decision string
			types    []string
		)
		if res != nil {
			decision = string(res.Decision)
			types = res.EntityTypes()
		}
		end(decision, types, err)
		return res, err
	}
}
