package publish

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/straja-ai/desens/internal/log"
)

// Sink consumes published events.
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Metrics is a snapshot of delivery counters.
type Metrics struct {
	Enqueued    uint64
	Dropped     uint64
	SinkSuccess map[string]uint64
	SinkFailure map[string]uint64
}

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

// Emitter buffers events and delivers them to every sink from background
// workers. Emit never blocks: a full queue drops the event.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	logger          *log.Logger
	shutdownTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	statsMu sync.Mutex
	stats   Metrics
}

// NewEmitter starts background workers delivering to sinks.
func NewEmitter(cfg EmitterConfig, sinks []Sink, logger *log.Logger) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = log.NewNop()
	}

	e := &Emitter{
		queue:           make(chan *Event, cfg.QueueSize),
		sinks:           sinks,
		logger:          logger.Named("publish"),
		shutdownTimeout: cfg.ShutdownTimeout,
		stats: Metrics{
			SinkSuccess: make(map[string]uint64, len(sinks)),
			SinkFailure: make(map[string]uint64, len(sinks)),
		},
	}
	for _, s := range sinks {
		e.stats.SinkSuccess[s.Name()] = 0
		e.stats.SinkFailure[s.Name()] = 0
	}

	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Emit enqueues ev without blocking the caller.
func (e *Emitter) Emit(ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.count(func(m *Metrics) { m.Dropped++ })
		return
	}

	select {
	case e.queue <- ev:
		e.count(func(m *Metrics) { m.Enqueued++ })
	default:
		e.count(func(m *Metrics) { m.Dropped++ })
	}
}

// Close stops accepting events, waits up to the shutdown timeout for the
// queue to drain and closes every sink.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		e.logger.Warn("shutdown timeout, undelivered events dropped")
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			e.logger.Warn("sink close failed", zap.String("sink", s.Name()), log.Err(err))
		}
	}
}

// Metrics returns a copy of the delivery counters.
func (e *Emitter) Metrics() Metrics {
	if e == nil {
		return Metrics{}
	}
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	out := Metrics{
		Enqueued:    e.stats.Enqueued,
		Dropped:     e.stats.Dropped,
		SinkSuccess: make(map[string]uint64, len(e.stats.SinkSuccess)),
		SinkFailure: make(map[string]uint64, len(e.stats.SinkFailure)),
	}
	for k, v := range e.stats.SinkSuccess {
		out.SinkSuccess[k] = v
	}
	for k, v := range e.stats.SinkFailure {
		out.SinkFailure[k] = v
	}
	return out
}

func (e *Emitter) count(fn func(*Metrics)) {
	e.statsMu.Lock()
	fn(&e.stats)
	e.statsMu.Unlock()
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev *Event) {
	for _, s := range e.sinks {
		name := s.Name()
		if err := s.Deliver(context.Background(), ev); err != nil {
			e.logger.Warn("delivery failed",
				zap.String("sink", name),
				zap.String("run_id", ev.RunID),
				zap.String("kind", string(ev.Kind)),
				log.Err(err),
			)
			e.count(func(m *Metrics) { m.SinkFailure[name]++ })
			continue
		}
		e.count(func(m *Metrics) { m.SinkSuccess[name]++ })
	}
}
