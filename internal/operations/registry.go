package operations

import (
	"context"
	"sort"
	"sync"
)

// Registry tracks executions started on behalf of API callers so they can
// be looked up while running and drained on shutdown.
type Registry struct {
	mu         sync.RWMutex
	executions map[string]*Execution
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{executions: make(map[string]*Execution)}
}

// Track registers exec and forgets it once it has finished
func (r *Registry) Track(exec *Execution) {
	r.mu.Lock()
	r.executions[exec.RunID] = exec
	r.mu.Unlock()

	go func() {
		<-exec.Done()
		r.mu.Lock()
		delete(r.executions, exec.RunID)
		r.mu.Unlock()
	}()
}

// Get returns the running execution with the given id
func (r *Registry) Get(runID string) (*Execution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executions[runID]
	return exec, ok
}

// Active returns the running executions, oldest first
func (r *Registry) Active() []*Execution {
	r.mu.RLock()
	execs := make([]*Execution, 0, len(r.executions))
	for _, exec := range r.executions {
		execs = append(execs, exec)
	}
	r.mu.RUnlock()

	sort.Slice(execs, func(i, j int) bool {
		return execs[i].StartedAt.Before(execs[j].StartedAt)
	})
	return execs
}

// Drain cancels every running execution and waits for them to finish or
// for ctx to expire
func (r *Registry) Drain(ctx context.Context) error {
	for _, exec := range r.Active() {
		exec.Cancel()
	}
	for _, exec := range r.Active() {
		select {
		case <-exec.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
