package sanitizer

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/straja-ai/desens/internal/detection"
)

// Fake is an in-process Client for tests. Responses and errors are keyed by
// the submitted text (or filename for file uploads).
type Fake struct {
	Results map[string]*detection.Result
	Errors  map[string]error
	Default *detection.Result
	Delay   time.Duration

	mu          sync.Mutex
	calls       []string
	inFlight    int
	maxInFlight int
}

// NewFake returns a Fake that answers every call with def.
func NewFake(def *detection.Result) *Fake {
	return &Fake{
		Results: map[string]*detection.Result{},
		Errors:  map[string]error{},
		Default: def,
	}
}

func (f *Fake) SanitizeText(ctx context.Context, text string) (*detection.Result, error) {
	return f.answer(ctx, text)
}

func (f *Fake) SanitizeFile(ctx context.Context, filename string, r io.Reader) (*detection.Result, error) {
	if r == nil {
		return nil, errors.New("fake: no file content")
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}
	return f.answer(ctx, filename)
}

// Calls returns the submitted keys in call order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// MaxInFlight is the highest number of concurrent calls observed.
func (f *Fake) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *Fake) answer(ctx context.Context, key string) (*detection.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	if err, ok := f.Errors[key]; ok && err != nil {
		return nil, err
	}
	if res, ok := f.Results[key]; ok {
		return res, nil
	}
	if f.Default != nil {
		return f.Default, nil
	}
	return &detection.Result{SanitizedText: detection.Placeholder, Entities: []detection.Entity{}}, nil
}
