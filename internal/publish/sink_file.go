package publish

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileSink journals regression runs to a JSONL file. Case events are held
// per run and written in dataset order, followed by the run summary, once
// the run event arrives. The file is synced after every completed run.
// A case that arrives after its run summary, which can happen with more than
// one emitter worker, is appended directly. Runs still open at Close are
// written as they stand, without a summary.
type FileSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer

	mu      sync.Mutex
	pending map[string][]*Event
	order   []string
	done    map[string]struct{}
}

func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return &FileSink{
		path:    path,
		file:    f,
		writer:  bufio.NewWriter(f),
		pending: make(map[string][]*Event),
		done:    make(map[string]struct{}),
	}, nil
}

func (s *FileSink) Name() string { return "file_jsonl:" + s.path }

func (s *FileSink) Deliver(_ context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("sink closed")
	}
	if ev.Kind == KindCase {
		if ev.Case == nil {
			return fmt.Errorf("case event without payload")
		}
		if _, late := s.done[ev.RunID]; late {
			if err := s.writeLocked(ev); err != nil {
				return err
			}
			return s.flushLocked()
		}
		if _, ok := s.pending[ev.RunID]; !ok {
			s.order = append(s.order, ev.RunID)
		}
		s.pending[ev.RunID] = append(s.pending[ev.RunID], ev)
		return nil
	}

	if err := s.writeRunLocked(ev.RunID); err != nil {
		return err
	}
	s.done[ev.RunID] = struct{}{}
	if err := s.writeLocked(ev); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *FileSink) flushLocked() error {
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// writeRunLocked writes the held case events of one run by case index.
func (s *FileSink) writeRunLocked(runID string) error {
	cases := s.pending[runID]
	delete(s.pending, runID)
	for i, id := range s.order {
		if id == runID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	sort.SliceStable(cases, func(i, j int) bool {
		return cases[i].Case.Index < cases[j].Case.Index
	})
	for _, ev := range cases {
		if err := s.writeLocked(ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSink) writeLocked(ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (s *FileSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	var errs []error
	for len(s.order) > 0 {
		if err := s.writeRunLocked(s.order[0]); err != nil {
			errs = append(errs, err)
			break
		}
	}
	errs = append(errs, s.writer.Flush(), s.file.Close())
	s.file = nil
	return errors.Join(errs...)
}
