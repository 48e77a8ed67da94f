package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/desens/internal/regression"
)

const (
	runPending   = "pending"
	runCompleted = "completed"
	runFailed    = "failed"
)

// runStore tracks background regression runs until they expire.
type runStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]runEntry
}

type runEntry struct {
	owner     string
	status    string
	report    *regression.Report
	err       string
	expiresAt time.Time
}

func newRunStore(ttl time.Duration) *runStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &runStore{
		ttl:  ttl,
		data: make(map[string]runEntry),
	}
}

// Start registers a pending run and returns its id.
func (s *runStore) Start(owner string) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	s.data[id] = runEntry{
		owner:     owner,
		status:    runPending,
		expiresAt: time.Now().Add(s.ttl),
	}
	return id
}

// Finish records the outcome of a run. A nil err marks it completed.
func (s *runStore) Finish(id string, rep *regression.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	entry := s.data[id]
	entry.expiresAt = time.Now().Add(s.ttl)
	if err != nil {
		entry.status = runFailed
		entry.err = err.Error()
	} else {
		entry.status = runCompleted
		entry.report = rep
	}
	s.data[id] = entry
}

func (s *runStore) Get(id string) (runEntry, bool) {
	if id == "" {
		return runEntry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[id]
	if !ok {
		return runEntry{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.data, id)
		return runEntry{}, false
	}
	return entry, true
}

func (s *runStore) cleanupLocked() {
	now := time.Now()
	for k, v := range s.data {
		if now.After(v.expiresAt) {
			delete(s.data, k)
		}
	}
}
