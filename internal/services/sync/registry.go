package sync

import (
	"sync"

	"github.com/TheMichaelB/chatsync/internal/models"
)

// Registry tracks the checkpoints of all syncs currently running in this
// process. Presence of an entry is the single-flight lock: it means one
// coordinator loop holds authority over that target's checkpoint. The
// registry is injectable; tests construct a fresh one instead of sharing a
// package singleton.
type Registry struct {
	mu     sync.Mutex
	active map[string]*models.Checkpoint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*models.Checkpoint)}
}

// Admit registers a checkpoint for a target. It returns false when a sync
// is already active for that target.
func (r *Registry) Admit(targetID string, cp *models.Checkpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[targetID]; exists {
		return false
	}
	r.active[targetID] = cp
	return true
}

// Get returns the active checkpoint for a target, or nil.
func (r *Registry) Get(targetID string) *models.Checkpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[targetID]
}

// Release removes a target's entry. Releasing an absent target is a no-op.
func (r *Registry) Release(targetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, targetID)
}

// Len returns the number of active syncs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
