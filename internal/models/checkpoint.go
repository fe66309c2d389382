package models

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Status is the lifecycle state of a history sync checkpoint.
type Status string

const (
	StatusNotStarted  Status = "NOT_STARTED"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusCompleted   Status = "COMPLETED"
	StatusInterrupted Status = "INTERRUPTED"
	StatusFailed      Status = "FAILED"
	StatusCancelled   Status = "CANCELLED"
)

// transitions defines the allowed status edges. COMPLETED and CANCELLED
// have no outgoing edges.
var transitions = map[Status][]Status{
	StatusNotStarted:  {StatusInProgress},
	StatusInProgress:  {StatusCompleted, StatusInterrupted, StatusFailed, StatusCancelled},
	StatusInterrupted: {StatusInProgress, StatusCancelled},
	StatusFailed:      {StatusInProgress},
}

// ValidStatus reports whether s is a known checkpoint status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted,
		StatusInterrupted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Checkpoint tracks history sync progress for a single chat. All mutators
// are pure state transitions; persistence is the caller's job. The struct
// is safe for concurrent use because Cancel arrives from outside the
// coordinating loop that owns the other mutators.
type Checkpoint struct {
	mu sync.Mutex

	targetID      string
	cursor        string
	lastTimestamp int64
	recordsSynced int
	status        Status
	errorDetail   string
	createdAt     time.Time
	updatedAt     time.Time
}

// NewCheckpoint creates a checkpoint in NOT_STARTED for the given chat JID.
func NewCheckpoint(targetID string) (*Checkpoint, error) {
	if err := ValidateTargetID(targetID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Checkpoint{
		targetID:  targetID,
		status:    StatusNotStarted,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ValidateTargetID checks that id looks like an external chat JID
// (user@server form).
func ValidateTargetID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty target id", ErrInvalidTargetID)
	}
	if !strings.Contains(id, "@") {
		return fmt.Errorf("%w: %q has no domain separator", ErrInvalidTargetID, id)
	}
	return nil
}

// TargetID returns the chat JID this checkpoint belongs to.
func (c *Checkpoint) TargetID() string {
	return c.targetID
}

// Status returns the current lifecycle status.
func (c *Checkpoint) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Cursor returns the last persisted fetch position.
func (c *Checkpoint) Cursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// RecordsSynced returns the running record count.
func (c *Checkpoint) RecordsSynced() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordsSynced
}

// Start moves NOT_STARTED to IN_PROGRESS.
func (c *Checkpoint) Start() error {
	return c.transition(StatusInProgress, "")
}

// UpdateProgress advances the cursor after a persisted batch. Valid only
// while IN_PROGRESS; delta must be non-negative.
func (c *Checkpoint) UpdateProgress(cursor string, lastTimestamp int64, delta int) error {
	if delta < 0 {
		return fmt.Errorf("%w: negative progress delta %d", ErrValidation, delta)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusInProgress {
		return fmt.Errorf("%w: checkpoint for %s is %s", ErrNotInProgress, c.targetID, c.status)
	}

	c.cursor = cursor
	c.lastTimestamp = lastTimestamp
	c.recordsSynced += delta
	c.updatedAt = time.Now().UTC()
	return nil
}

// Complete marks the sync finished.
func (c *Checkpoint) Complete() error {
	return c.transition(StatusCompleted, "")
}

// Interrupt records a transient failure worth resuming. detail must say
// what went wrong; it is surfaced verbatim in status output.
func (c *Checkpoint) Interrupt(detail string) error {
	if strings.TrimSpace(detail) == "" {
		return fmt.Errorf("%w: interrupt requires a detail string", ErrValidation)
	}
	return c.transition(StatusInterrupted, detail)
}

// Fail records an unrecoverable failure. detail must be non-empty.
func (c *Checkpoint) Fail(detail string) error {
	if strings.TrimSpace(detail) == "" {
		return fmt.Errorf("%w: fail requires a detail string", ErrValidation)
	}
	return c.transition(StatusFailed, detail)
}

// Cancel terminates the sync. The owning loop observes the status change at
// its next iteration boundary.
func (c *Checkpoint) Cancel() error {
	return c.transition(StatusCancelled, "")
}

// Resume moves INTERRUPTED or FAILED back to IN_PROGRESS and clears the
// stored error detail. The cursor is kept so the loop continues where it
// stopped.
func (c *Checkpoint) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusInterrupted && c.status != StatusFailed {
		return fmt.Errorf("%w: checkpoint for %s is %s", ErrCannotResume, c.targetID, c.status)
	}

	c.status = StatusInProgress
	c.errorDetail = ""
	c.updatedAt = time.Now().UTC()
	return nil
}

// IsTerminal reports whether the checkpoint reached a final state.
func (c *Checkpoint) IsTerminal() bool {
	s := c.Status()
	return s == StatusCompleted || s == StatusCancelled
}

// IsResumable reports whether Resume would succeed.
func (c *Checkpoint) IsResumable() bool {
	s := c.Status()
	return s == StatusInterrupted || s == StatusFailed
}

// IsActive reports whether the fetch loop should keep running.
func (c *Checkpoint) IsActive() bool {
	return c.Status() == StatusInProgress
}

// transition applies a status edge, failing without side effects when the
// edge is not in the graph.
func (c *Checkpoint) transition(to Status, detail string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.canTransition(c.status, to) {
		return &TransitionError{TargetID: c.targetID, From: c.status, To: to}
	}

	c.status = to
	if detail != "" {
		c.errorDetail = detail
	}
	c.updatedAt = time.Now().UTC()
	return nil
}

func (c *Checkpoint) canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Snapshot returns a serializable copy of the checkpoint state.
func (c *Checkpoint) Snapshot() *CheckpointSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &CheckpointSnapshot{
		TargetID:      c.targetID,
		Cursor:        c.cursor,
		LastTimestamp: c.lastTimestamp,
		RecordsSynced: c.recordsSynced,
		Status:        c.status,
		ErrorDetail:   c.errorDetail,
		CreatedAt:     c.createdAt,
		UpdatedAt:     c.updatedAt,
	}
}

// CheckpointSnapshot is the persisted and externally visible form of a
// checkpoint. Timestamps serialize as ISO-8601.
type CheckpointSnapshot struct {
	TargetID      string    `json:"target_id"`
	Cursor        string    `json:"cursor,omitempty"`
	LastTimestamp int64     `json:"last_record_timestamp,omitempty"`
	RecordsSynced int       `json:"records_synced"`
	Status        Status    `json:"status"`
	ErrorDetail   string    `json:"error_detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Restore rebuilds a live checkpoint from a persisted snapshot.
func Restore(snap *CheckpointSnapshot) (*Checkpoint, error) {
	if err := ValidateTargetID(snap.TargetID); err != nil {
		return nil, err
	}
	if !ValidStatus(snap.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, snap.Status)
	}
	if snap.RecordsSynced < 0 {
		return nil, fmt.Errorf("%w: negative records_synced", ErrValidation)
	}

	return &Checkpoint{
		targetID:      snap.TargetID,
		cursor:        snap.Cursor,
		lastTimestamp: snap.LastTimestamp,
		recordsSynced: snap.RecordsSynced,
		status:        snap.Status,
		errorDetail:   snap.ErrorDetail,
		createdAt:     snap.CreatedAt,
		updatedAt:     snap.UpdatedAt,
	}, nil
}
