package regression

import (
	"context"
	"errors"
	"io"
	"sync"
)

// State is the runner's busy/idle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// ErrBusy is returned when a run is requested while another is active.
var ErrBusy = errors.New("regression run already in progress")

// Runner guards an Evaluator against re-entrant runs and keeps the most
// recent report. A new successful run replaces the previous report.
type Runner struct {
	evaluator *Evaluator
	classify  ClassifyFunc

	mu    sync.Mutex
	state State
	last  *Report
}

// NewRunner binds an evaluator to the collaborator it will drive.
func NewRunner(ev *Evaluator, classify ClassifyFunc) *Runner {
	if ev == nil {
		ev = &Evaluator{}
	}
	return &Runner{evaluator: ev, classify: classify, state: StateIdle}
}

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Last returns the report of the most recent completed run, or nil.
func (r *Runner) Last() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run ingests a dataset and evaluates it. A *DatasetError aborts before any
// case executes.
func (r *Runner) Run(ctx context.Context, dataset io.Reader) (*Report, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.end()

	cases, err := LoadDataset(dataset)
	if err != nil {
		return nil, err
	}
	return r.evaluate(ctx, cases), nil
}

// RunCases evaluates already-ingested cases under the same busy guard.
func (r *Runner) RunCases(ctx context.Context, cases []Case) (*Report, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.end()
	return r.evaluate(ctx, cases), nil
}

// Claim holds the runner in Running until it is run or released. It lets a
// caller reject a concurrent run before handing evaluation to a goroutine.
type Claim struct {
	r    *Runner
	once sync.Once
}

// Claim performs the Idle -> Running transition without evaluating
// anything. It returns ErrBusy when a run is already active. Exactly one of
// Claim.Run or Claim.Release must follow.
func (r *Runner) Claim() (*Claim, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	return &Claim{r: r}, nil
}

// Run evaluates cases under the claim and releases it.
func (c *Claim) Run(ctx context.Context, cases []Case) *Report {
	defer c.Release()
	return c.r.evaluate(ctx, cases)
}

// Release returns the runner to Idle. Calls after the first are no-ops.
func (c *Claim) Release() {
	c.once.Do(c.r.end)
}

func (r *Runner) evaluate(ctx context.Context, cases []Case) *Report {
	rep := r.evaluator.Evaluate(ctx, cases, r.classify)
	r.mu.Lock()
	r.last = rep
	r.mu.Unlock()
	return rep
}

// begin is the Idle -> Running transition.
func (r *Runner) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateIdle:
		r.state = StateRunning
		return nil
	case StateRunning:
		return ErrBusy
	default:
		return errors.New("regression runner in unknown state " + r.state.String())
	}
}

// end is the Running -> Idle transition. It is deferred by every entry
// point so it also runs when the evaluation panics.
func (r *Runner) end() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateIdle
}
