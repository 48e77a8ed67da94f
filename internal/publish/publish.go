package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/straja-ai/desens/internal/config"
	"github.com/straja-ai/desens/internal/log"
	"github.com/straja-ai/desens/internal/regression"
)

// FromConfig builds the configured sinks and starts an emitter. It returns
// nil, nil when no sink is configured.
func FromConfig(cfg config.PublishConfig, logger *log.Logger) (*Emitter, error) {
	if len(cfg.Sinks) == 0 {
		return nil, nil
	}

	sinks := make([]Sink, 0, len(cfg.Sinks))
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close(context.Background())
		}
	}
	for i, sc := range cfg.Sinks {
		var (
			s   Sink
			err error
		)
		switch strings.ToLower(strings.TrimSpace(sc.Type)) {
		case "file_jsonl":
			s, err = NewFileSink(sc.Path)
		case "webhook":
			s, err = NewWebhookSink(sc.URL, WebhookOptions{
				Headers:        sc.Headers,
				Timeout:        sc.Timeout,
				MaxRetries:     sc.MaxRetries,
				BackoffInitial: sc.BackoffInitial,
				BackoffMax:     sc.BackoffMax,
			})
		default:
			err = fmt.Errorf("unknown type %q", sc.Type)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("publish sink %d: %w", i, err)
		}
		sinks = append(sinks, s)
	}

	return NewEmitter(EmitterConfig{
		QueueSize:       cfg.QueueSize,
		Workers:         cfg.Workers,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, sinks, logger), nil
}

// Observer turns regression progress into published events.
type Observer struct {
	Emitter *Emitter
}

var _ regression.Observer = Observer{}

func (o Observer) CaseDone(_ context.Context, runID string, index int, out regression.Outcome) {
	o.Emitter.Emit(NewCaseEvent(runID, index, out))
}

func (o Observer) RunDone(_ context.Context, r *regression.Report) {
	if r == nil {
		return
	}
	o.Emitter.Emit(NewRunEvent(r))
}
