package state

import (
	"errors"

	"github.com/TheMichaelB/chatsync/internal/models"
)

// Store persists checkpoint snapshots so a crash loses at most one
// checkpoint interval of progress.
type Store interface {
	// Load retrieves the snapshot for a target.
	Load(targetID string) (*models.CheckpointSnapshot, error)

	// Save upserts the snapshot for its target.
	Save(snap *models.CheckpointSnapshot) error

	// List returns all snapshots, optionally filtered by status
	// (empty filter means all), newest update first.
	List(status models.Status) ([]*models.CheckpointSnapshot, error)

	// Delete removes the snapshot for a target. Deleting an absent
	// target is not an error.
	Delete(targetID string) error

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrNotFound = errors.New("checkpoint not found")
)
