package controlapi

import (
	"sync"

	"github.com/google/uuid"
)

type refreshState struct {
	status string
	error  string
}

// refreshTracker records the in-memory status of async /catalog/refresh
// runs. It is not persisted: a restart loses in-flight refresh status
// (unlike migration jobs, which the engine persists and resumes), but a
// refresh is idempotent and safe to simply re-trigger.
type refreshTracker struct {
	mu     sync.Mutex
	states map[string]refreshState
}

func newRefreshTracker() *refreshTracker {
	return &refreshTracker{states: make(map[string]refreshState)}
}

func (t *refreshTracker) start() string {
	id := uuid.NewString()
	t.mu.Lock()
	t.states[id] = refreshState{status: "running"}
	t.mu.Unlock()
	return id
}

func (t *refreshTracker) complete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.states[id]
	if st.status != "failed" {
		st.status = "completed"
	}
	t.states[id] = st
}

func (t *refreshTracker) fail(id, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[id] = refreshState{status: "failed", error: reason}
}

func (t *refreshTracker) get(id string) (refreshState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[id]
	return st, ok
}
