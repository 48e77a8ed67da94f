package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/straja-ai/desens/internal/config"
	"github.com/straja-ai/desens/internal/detection"
	"github.com/straja-ai/desens/internal/regression"
)

func sampleOutcome() regression.Outcome {
	score := 0.8
	return regression.Outcome{
		CaseID:    "1",
		Expected:  []string{"PERSON", "SSN"},
		Detected:  []string{"PERSON", "SSN"},
		Decision:  detection.DecisionBlock,
		RiskScore: &score,
		Passed:    true,
		Duration:  1500 * time.Microsecond,
	}
}

func TestNewCaseEvent(t *testing.T) {
	o := sampleOutcome()
	ev := NewCaseEvent("run-1", 0, o)
	if ev.Kind != KindCase || ev.RunID != "run-1" || ev.Version != EventVersion || ev.ID == "" {
		t.Fatalf("unexpected envelope %+v", ev)
	}
	if ev.Case.Status != "OK" || ev.Case.DurationMs != 1.5 || *ev.Case.RiskScore != 0.8 {
		t.Fatalf("unexpected payload %+v", ev.Case)
	}

	o.Passed = false
	o.Err = errors.New("status 502")
	o.RiskScore = nil
	ko := NewCaseEvent("run-1", 3, o)
	if ko.Case.Status != "KO" || ko.Case.Error != "status 502" || ko.Case.RiskScore != nil || ko.Case.Index != 3 {
		t.Fatalf("unexpected KO payload %+v", ko.Case)
	}
}

func TestEventNeverCarriesText(t *testing.T) {
	o := sampleOutcome()
	data, err := json.Marshal(NewCaseEvent("run-1", 0, o))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"text"`) || strings.Contains(string(data), `"value"`) {
		t.Fatalf("event leaks content: %s", data)
	}
}

func TestNewRunEvent(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rep := &regression.Report{
		RunID:       "run-9",
		StartedAt:   start,
		FinishedAt:  start.Add(250 * time.Millisecond),
		PassedCount: 3,
		FailedCount: 1,
		TotalCount:  5,
	}
	ev := NewRunEvent(rep)
	if ev.Kind != KindRun || ev.Case != nil || ev.Run == nil {
		t.Fatalf("unexpected envelope %+v", ev)
	}
	if ev.Run.Passed != 3 || ev.Run.Total != 5 || ev.Run.Failed != 1 || ev.Run.DurationMs != 250 {
		t.Fatalf("unexpected run payload %+v", ev.Run)
	}
	if ev.Run.StartedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected started_at %q", ev.Run.StartedAt)
	}
}

func TestFileSinkWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")

	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), NewCaseEvent("run-1", 0, sampleOutcome())); err != nil {
		t.Fatalf("deliver 1: %v", err)
	}
	if err := sink.Deliver(context.Background(), NewCaseEvent("run-2", 1, sampleOutcome())); err != nil {
		t.Fatalf("deliver 2: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), NewCaseEvent("run-3", 2, sampleOutcome())); err == nil {
		t.Fatalf("expected error after close")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal jsonl line: %v", err)
	}
	if decoded.RunID != "run-1" || decoded.Case == nil || decoded.Case.ID != "1" {
		t.Fatalf("unexpected decoded event %+v", decoded)
	}
}

func readJournal(t *testing.T, path string) []Event {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var out []Event
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("unmarshal jsonl line: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

func TestFileSinkJournalsRunsInDatasetOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	ctx := context.Background()

	for _, idx := range []int{2, 0, 1} {
		if err := sink.Deliver(ctx, NewCaseEvent("run-a", idx, sampleOutcome())); err != nil {
			t.Fatalf("deliver case %d: %v", idx, err)
		}
	}
	if err := sink.Deliver(ctx, NewCaseEvent("run-b", 0, sampleOutcome())); err != nil {
		t.Fatalf("deliver run-b case: %v", err)
	}
	if got := readJournal(t, path); len(got) != 0 {
		t.Fatalf("cases must be held until the run ends, got %d lines", len(got))
	}

	start := time.Now()
	rep := &regression.Report{RunID: "run-a", PassedCount: 3, TotalCount: 3, StartedAt: start, FinishedAt: start.Add(time.Second)}
	if err := sink.Deliver(ctx, NewRunEvent(rep)); err != nil {
		t.Fatalf("deliver run: %v", err)
	}

	got := readJournal(t, path)
	if len(got) != 4 {
		t.Fatalf("expected 3 cases and a summary, got %d lines", len(got))
	}
	for i := 0; i < 3; i++ {
		if got[i].RunID != "run-a" || got[i].Case == nil || got[i].Case.Index != i {
			t.Fatalf("line %d out of order: %+v", i, got[i])
		}
	}
	if got[3].Kind != KindRun || got[3].Run == nil || got[3].Run.Total != 3 {
		t.Fatalf("expected run summary last, got %+v", got[3])
	}

	if err := sink.Deliver(ctx, NewCaseEvent("run-a", 3, sampleOutcome())); err != nil {
		t.Fatalf("deliver late case: %v", err)
	}
	if got := readJournal(t, path); len(got) != 5 || got[4].Case == nil || got[4].Case.Index != 3 {
		t.Fatalf("late case must be appended at once, got %+v", got)
	}

	if err := sink.Close(ctx); err != nil {
		t.Fatalf("close sink: %v", err)
	}
	got = readJournal(t, path)
	if len(got) != 6 || got[5].RunID != "run-b" || got[5].Kind != KindCase {
		t.Fatalf("open run must be written on close, got %+v", got)
	}

	if err := (&FileSink{}).Deliver(ctx, &Event{Kind: KindCase}); err == nil {
		t.Fatalf("expected error for a closed sink")
	}
}

func TestWebhookSinkDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("X-Test") != "1" {
			t.Errorf("missing custom header")
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("fail"))
	}))

	sink, err := NewWebhookSink(srv.URL, WebhookOptions{Headers: map[string]string{"X-Test": "1"}, Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	err = sink.Deliver(context.Background(), NewRunEvent(&regression.Report{RunID: "r"}))
	if err == nil || !strings.Contains(err.Error(), "status 418") {
		t.Fatalf("expected status error, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", hits.Load())
	}
}

func TestWebhookSinkRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	sink, err := NewWebhookSink(srv.URL, WebhookOptions{MaxRetries: 3, BackoffInitial: time.Millisecond})
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), NewRunEvent(&regression.Report{RunID: "r"})); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}

	hits.Store(0)
	noRetry, _ := NewWebhookSink(srv.URL, WebhookOptions{MaxRetries: -1})
	if err := noRetry.Deliver(context.Background(), NewRunEvent(&regression.Report{RunID: "r"})); err == nil {
		t.Fatalf("expected failure without retries")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", hits.Load())
	}
}

func TestEmitterDropsWhenQueueFull(t *testing.T) {
	wait := make(chan struct{})
	sink := &blockingSink{wait: wait}
	em := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1, ShutdownTimeout: time.Second}, []Sink{sink}, nil)

	ev := NewRunEvent(&regression.Report{RunID: "r1"})
	em.Emit(ev)
	em.Emit(ev)
	em.Emit(ev)

	if em.Metrics().Dropped == 0 {
		t.Fatalf("expected dropped events when queue is full")
	}

	close(wait)
	em.Close(context.Background())

	em.Emit(ev)
	if em.Metrics().Dropped < 2 {
		t.Fatalf("emit after close should count as dropped")
	}
}

func TestObserverPublishesThroughWebhook(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
	)
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			mu.Lock()
			received = append(received, ev)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))

	em, err := FromConfig(config.PublishConfig{
		QueueSize: 8,
		Workers:   1,
		Sinks:     []config.SinkConfig{{Type: "webhook", URL: srv.URL, Timeout: time.Second}},
	}, nil)
	if err != nil {
		t.Fatalf("from config: %v", err)
	}

	ev := &regression.Evaluator{Observers: []regression.Observer{Observer{Emitter: em}}}
	cases := []regression.Case{{ID: "1", Text: "secret text a"}, {ID: "2", Text: "secret text b"}}
	rep := ev.Evaluate(context.Background(), cases, func(ctx context.Context, text string) (*detection.Result, error) {
		return &detection.Result{SanitizedText: "x"}, nil
	})
	em.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 {
		t.Fatalf("expected 2 case events and 1 run event, got %d", len(received))
	}
	runs := 0
	for _, e := range received {
		if e.RunID != rep.RunID {
			t.Fatalf("event run id %q does not match report %q", e.RunID, rep.RunID)
		}
		if e.Kind == KindRun {
			runs++
		}
	}
	if runs != 1 {
		t.Fatalf("expected one run event, got %d", runs)
	}
	if m := em.Metrics(); m.SinkSuccess["webhook:"+srv.URL] != 3 || m.Dropped != 0 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestFromConfig(t *testing.T) {
	em, err := FromConfig(config.PublishConfig{}, nil)
	if err != nil || em != nil {
		t.Fatalf("expected nil emitter without sinks, got %v %v", em, err)
	}

	if _, err := FromConfig(config.PublishConfig{Sinks: []config.SinkConfig{{Type: "kafka"}}}, nil); err == nil {
		t.Fatalf("expected error for unknown sink type")
	}
}

type blockingSink struct {
	wait chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Deliver(context.Context, *Event) error {
	<-s.wait
	return nil
}

func (s *blockingSink) Close(context.Context) error { return nil }

func newTestServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping: cannot open listener: %v", err)
	}
	srv := httptest.NewUnstartedServer(h)
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
