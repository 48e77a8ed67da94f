package regression

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/straja-ai/desens/internal/detection"
)

func TestRunnerRejectsReentrantRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	classify := func(ctx context.Context, text string) (*detection.Result, error) {
		close(started)
		<-release
		return &detection.Result{Entities: []detection.Entity{{Type: "EMAIL"}}}, nil
	}
	r := NewRunner(&Evaluator{}, classify)

	type result struct {
		rep *Report
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := r.Run(context.Background(), strings.NewReader(`[{"id":1,"text":"a","expected_entities":["EMAIL"]}]`))
		done <- result{rep, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not start")
	}

	if r.State() != StateRunning {
		t.Fatalf("expected running state, got %s", r.State())
	}
	if _, err := r.Run(context.Background(), strings.NewReader(`[]`)); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := r.RunCases(context.Background(), nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy from RunCases, got %v", err)
	}

	close(release)
	res := <-done
	if res.err != nil {
		t.Fatalf("run: %v", res.err)
	}
	if res.rep.PassedCount != 1 {
		t.Fatalf("expected pass, got %+v", res.rep)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle after completion, got %s", r.State())
	}
	if r.Last() != res.rep {
		t.Fatalf("last report should be the completed run")
	}
}

func TestRunnerReturnsToIdleOnDatasetError(t *testing.T) {
	calls := 0
	r := NewRunner(nil, func(ctx context.Context, text string) (*detection.Result, error) {
		calls++
		return &detection.Result{}, nil
	})

	_, err := r.Run(context.Background(), strings.NewReader(`{"not": "an array"}`))
	var derr *DatasetError
	if !errors.As(err, &derr) {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("no case may run on a dataset error, got %d calls", calls)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle, got %s", r.State())
	}
	if r.Last() != nil {
		t.Fatalf("failed ingestion must not produce a report")
	}
}

type panickingObserver struct{}

func (panickingObserver) CaseDone(context.Context, string, int, Outcome) { panic("sink exploded") }
func (panickingObserver) RunDone(context.Context, *Report)               {}

func TestRunnerReturnsToIdleOnPanic(t *testing.T) {
	r := NewRunner(&Evaluator{Observers: []Observer{panickingObserver{}}}, func(ctx context.Context, text string) (*detection.Result, error) {
		return &detection.Result{}, nil
	})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _ = r.RunCases(context.Background(), []Case{{ID: "1", Text: "a"}})
	}()

	if r.State() != StateIdle {
		t.Fatalf("expected idle after panic, got %s", r.State())
	}
	if _, err := r.RunCases(context.Background(), nil); err != nil {
		t.Fatalf("runner should accept a new run after panic: %v", err)
	}
}

func TestRunnerReplacesLastReport(t *testing.T) {
	r := NewRunner(nil, func(ctx context.Context, text string) (*detection.Result, error) {
		return &detection.Result{}, nil
	})
	first, err := r.RunCases(context.Background(), []Case{{ID: "1", Text: "a"}})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := r.RunCases(context.Background(), []Case{{ID: "2", Text: "b"}, {ID: "3", Text: "c"}})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if r.Last() != second || r.Last() == first {
		t.Fatalf("last report should be replaced wholesale")
	}
	if second.RunID == first.RunID {
		t.Fatalf("each run needs its own id")
	}
}

func TestStateString(t *testing.T) {
	if StateIdle.String() != "idle" || StateRunning.String() != "running" || State(9).String() != "unknown" {
		t.Fatalf("unexpected state names")
	}
}

func TestRunnerClaimHoldsUntilRunOrRelease(t *testing.T) {
	classify := func(ctx context.Context, text string) (*detection.Result, error) {
		return &detection.Result{Entities: []detection.Entity{{Type: "EMAIL"}}}, nil
	}
	r := NewRunner(&Evaluator{}, classify)

	claim, err := r.Claim()
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if r.State() != StateRunning {
		t.Fatalf("expected running after claim, got %s", r.State())
	}
	if _, err := r.Claim(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for a second claim, got %v", err)
	}
	if _, err := r.RunCases(context.Background(), nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while claimed, got %v", err)
	}

	rep := claim.Run(context.Background(), []Case{{ID: "1", Text: "a", Expected: []string{"EMAIL"}}})
	if rep.PassedCount != 1 || r.State() != StateIdle || r.Last() != rep {
		t.Fatalf("unexpected state after run: %s %+v", r.State(), rep)
	}
	claim.Release()

	released, err := r.Claim()
	if err != nil {
		t.Fatalf("claim after run: %v", err)
	}
	released.Release()
	released.Release()
	if r.State() != StateIdle {
		t.Fatalf("expected idle after release, got %s", r.State())
	}
}
