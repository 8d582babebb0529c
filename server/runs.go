package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// errRunStopped is the cancel cause of runs still active at shutdown.
var errRunStopped = errors.New("server stopped")

// RunInfo describes one active run.
type RunInfo struct {
	ID      string
	Started time.Time
}

type activeRun struct {
	info   RunInfo
	cancel context.CancelCauseFunc
}

// RunRegistry tracks in-flight program runs by ID so shutdown can cancel
// them.
type RunRegistry struct {
	mu   sync.Mutex
	runs map[string]*activeRun
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*activeRun)}
}

// Start registers a run and returns its ID.
func (r *RunRegistry) Start(cancel context.CancelCauseFunc) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.runs[id] = &activeRun{
		info:   RunInfo{ID: id, Started: time.Now()},
		cancel: cancel,
	}
	r.mu.Unlock()
	log.Debugf("run %s started", id)
	return id
}

// Finish removes a run. Finishing an unknown ID is a no-op.
func (r *RunRegistry) Finish(id string) {
	r.mu.Lock()
	_, ok := r.runs[id]
	delete(r.runs, id)
	r.mu.Unlock()
	if ok {
		log.Debugf("run %s finished", id)
	}
}

// CancelAll stops every active run.
func (r *RunRegistry) CancelAll(cause error) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		run.cancel(cause)
	}
	return len(r.runs)
}

// Active returns the active runs.
func (r *RunRegistry) Active() []RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunInfo, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.info)
	}
	return out
}
