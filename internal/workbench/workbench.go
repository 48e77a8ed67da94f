// Package workbench is the context object shared by every control surface:
// it owns the sanitization client, the rendering sink and the regression
// runner, and routes results and failures to the sink.
package workbench

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/straja-ai/desens/internal/detection"
	"github.com/straja-ai/desens/internal/log"
	"github.com/straja-ai/desens/internal/present"
	"github.com/straja-ai/desens/internal/regression"
	"github.com/straja-ai/desens/internal/render"
	"github.com/straja-ai/desens/internal/sanitizer"
	"github.com/straja-ai/desens/internal/telemetry"
)

// Options configures a Workbench. Client is required.
type Options struct {
	Client      sanitizer.Client
	Sink        render.Sink
	Logger      *log.Logger
	Telemetry   *telemetry.Provider
	Concurrency int
	// Observers receive regression progress in addition to logging and
	// telemetry.
	Observers []regression.Observer
}

type Workbench struct {
	client    sanitizer.Client
	sink      render.Sink
	logger    *log.Logger
	telemetry *telemetry.Provider
	runner    *regression.Runner
}

func New(opts Options) *Workbench {
	if opts.Sink == nil {
		opts.Sink = render.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Noop()
	}

	w := &Workbench{
		client:    opts.Client,
		sink:      opts.Sink,
		logger:    opts.Logger.Named("workbench"),
		telemetry: opts.Telemetry,
	}

	observers := append([]regression.Observer{
		logObserver{logger: w.logger},
		telemetry.Observer{Provider: opts.Telemetry},
	}, opts.Observers...)
	ev := &regression.Evaluator{Concurrency: opts.Concurrency, Observers: observers}
	w.runner = regression.NewRunner(ev, opts.Telemetry.Classify("/sanitize", opts.Client.SanitizeText))
	return w
}

// Runner exposes the regression runner for state inspection.
func (w *Workbench) Runner() *regression.Runner { return w.runner }

// SubmitText sanitizes one text and renders the result. Failures are
// rendered through the sink's error channel and returned.
func (w *Workbench) SubmitText(ctx context.Context, text string) (*detection.Result, error) {
	ctx, end := w.telemetry.StartCall(ctx, "/sanitize")
	start := time.Now()
	res, err := w.client.SanitizeText(ctx, text)
	end(decisionOf(res), typesOf(res), err)
	if err != nil {
		w.logger.Warn("sanitize failed", zap.Duration("duration", time.Since(start)), log.Err(err))
		_ = w.sink.Error(err)
		return nil, err
	}
	w.logger.Debug("sanitized text",
		zap.String("decision", string(res.Decision)),
		zap.Int("entities", len(res.Entities)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, w.sink.Result(present.Result(res))
}

// SubmitFile uploads one document and renders the result plus the file
// details line.
func (w *Workbench) SubmitFile(ctx context.Context, filename string, r io.Reader) (*detection.Result, error) {
	ctx, end := w.telemetry.StartCall(ctx, "/sanitize-file")
	start := time.Now()
	res, err := w.client.SanitizeFile(ctx, filename, r)
	end(decisionOf(res), typesOf(res), err)
	if err != nil {
		w.logger.Warn("sanitize file failed", zap.Duration("duration", time.Since(start)), log.Err(err))
		_ = w.sink.Error(err)
		return nil, err
	}
	w.logger.Debug("sanitized file",
		zap.String("source_type", res.Metadata.SourceType),
		zap.String("decision", string(res.Decision)),
		zap.Int("entities", len(res.Entities)),
		zap.Duration("duration", time.Since(start)),
	)
	if err := w.sink.Result(present.Result(res)); err != nil {
		return res, err
	}
	return res, w.sink.FileDetails(present.FileDetails(res.Metadata))
}

// RunDataset ingests a dataset and evaluates it through the runner. A
// dataset error or ErrBusy is rendered and returned without a report.
func (w *Workbench) RunDataset(ctx context.Context, dataset io.Reader) (*regression.Report, error) {
	rep, err := w.runner.Run(ctx, dataset)
	if err != nil {
		w.logger.Warn("regression run rejected", log.Err(err))
		_ = w.sink.Error(err)
		return nil, err
	}
	return rep, w.sink.Report(present.Report(rep), present.Document(rep))
}

// StartDataset parses a dataset and claims the runner synchronously, so a
// dataset error or ErrBusy is returned before anything runs. The returned
// function evaluates the cases and renders the report; the caller may run
// it on another goroutine but must call it exactly once.
func (w *Workbench) StartDataset(data []byte) (func(context.Context) *regression.Report, error) {
	cases, err := regression.ParseDataset(data)
	if err != nil {
		w.logger.Warn("regression run rejected", log.Err(err))
		return nil, err
	}
	claim, err := w.runner.Claim()
	if err != nil {
		w.logger.Warn("regression run rejected", log.Err(err))
		return nil, err
	}
	return func(ctx context.Context) *regression.Report {
		rep := claim.Run(ctx, cases)
		if err := w.sink.Report(present.Report(rep), present.Document(rep)); err != nil {
			w.logger.Warn("render report", log.Err(err))
		}
		return rep
	}, nil
}

func decisionOf(r *detection.Result) string {
	if r == nil {
		return ""
	}
	return string(r.Decision)
}

func typesOf(r *detection.Result) []string {
	if r == nil {
		return nil
	}
	return r.EntityTypes()
}

// logObserver logs per-case and per-run progress. Case text never appears.
type logObserver struct {
	logger *log.Logger
}

func (o logObserver) CaseDone(_ context.Context, runID string, index int, out regression.Outcome) {
	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.Int("index", index),
		zap.String("case_id", out.CaseID),
		zap.Bool("passed", out.Passed),
		zap.String("decision", string(out.Decision)),
		zap.Duration("duration", out.Duration),
	}
	if out.Err != nil {
		o.logger.Warn("case failed", append(fields, log.Err(out.Err))...)
		return
	}
	o.logger.Debug("case evaluated", fields...)
}

func (o logObserver) RunDone(_ context.Context, r *regression.Report) {
	if r == nil {
		return
	}
	o.logger.Info("regression run finished",
		zap.String("run_id", r.RunID),
		zap.Int("passed", r.PassedCount),
		zap.Int("total", r.TotalCount),
		zap.Int("failed_calls", r.FailedCount),
		zap.Duration("duration", r.FinishedAt.Sub(r.StartedAt)),
	)
}
