package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/google/uuid"

	"github.com/TheMichaelB/chatsync/internal/events"
	"github.com/TheMichaelB/chatsync/internal/models"
	"github.com/TheMichaelB/chatsync/internal/state"
	"github.com/TheMichaelB/chatsync/internal/transport"
)

// Errors surfaced by the service layer.
var (
	ErrNotFound  = errors.New("no sync state for target")
	ErrNotActive = errors.New("no active sync for target")
)

// Service exposes history sync to the surrounding layer: start, status,
// cancel, resume. Each accepted start runs one background coordinator loop
// per target; conflicting starts are rejected, not queued.
type Service struct {
	registry    *Registry
	coordinator *Coordinator
	reconciler  *Reconciler
	fetcher     transport.Fetcher
	state       state.Store
	logger      *events.Logger

	wg gosync.WaitGroup
}

// NewService creates a sync service.
func NewService(
	registry *Registry,
	coordinator *Coordinator,
	reconciler *Reconciler,
	fetcher transport.Fetcher,
	stateStore state.Store,
	logger *events.Logger,
) *Service {
	return &Service{
		registry:    registry,
		coordinator: coordinator,
		reconciler:  reconciler,
		fetcher:     fetcher,
		state:       stateStore,
		logger:      logger.WithField("service", "sync"),
	}
}

// StartSync begins (or with resume=true, continues) a history sync for a
// target. It returns the checkpoint snapshot and whether the sync was
// accepted; accepted=false means a loop is already active for the target.
func (s *Service) StartSync(ctx context.Context, targetID string, resume bool, maxRecords int) (*models.CheckpointSnapshot, bool, error) {
	if err := models.ValidateTargetID(targetID); err != nil {
		return nil, false, err
	}
	if maxRecords <= 0 {
		return nil, false, fmt.Errorf("%w: max records must be positive", models.ErrValidation)
	}

	cp, err := s.prepareCheckpoint(targetID, resume)
	if err != nil {
		return nil, false, err
	}

	if !s.registry.Admit(targetID, cp) {
		if active := s.registry.Get(targetID); active != nil {
			return active.Snapshot(), false, nil
		}
		// The loop released its entry between Admit and Get. Its final
		// snapshot is already durable, so report that instead of racing
		// for a second admission.
		snap, loadErr := s.state.Load(targetID)
		if loadErr != nil {
			return nil, false, fmt.Errorf("load checkpoint: %w", loadErr)
		}
		return snap, false, nil
	}

	if err := s.state.Save(cp.Snapshot()); err != nil {
		s.registry.Release(targetID)
		return nil, false, fmt.Errorf("persist checkpoint: %w", err)
	}

	runID := uuid.NewString()
	logger := s.logger.WithFields(map[string]interface{}{
		"target_id": targetID,
		"run_id":    runID,
	})
	logger.Info("Sync accepted")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.coordinator.Run(ctx, targetID, cp, maxRecords,
			s.fetcher, s.reconciler.MergeBatch, s.registry); err != nil {
			logger.WithError(err).Warn("Sync run ended with error")
		}
	}()

	return cp.Snapshot(), true, nil
}

// prepareCheckpoint loads or creates the checkpoint a new run will own.
func (s *Service) prepareCheckpoint(targetID string, resume bool) (*models.Checkpoint, error) {
	snap, err := s.state.Load(targetID)
	if errors.Is(err, state.ErrNotFound) {
		if resume {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, targetID)
		}
		return models.NewCheckpoint(targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	if resume {
		cp, err := models.Restore(snap)
		if err != nil {
			return nil, err
		}
		// A durable IN_PROGRESS snapshot with no registered loop behind it
		// means the process died mid-sync. The cursor is still good, so
		// mark the run interrupted and continue from where it stopped.
		if cp.Status() == models.StatusInProgress && s.registry.Get(targetID) == nil {
			if err := cp.Interrupt("process exited mid-sync"); err != nil {
				return nil, err
			}
		}
		if err := cp.Resume(); err != nil {
			return nil, err
		}
		return cp, nil
	}

	// A fresh start supersedes any prior checkpoint for the target.
	return models.NewCheckpoint(targetID)
}

// Resume continues an INTERRUPTED or FAILED sync from its last persisted
// cursor.
func (s *Service) Resume(ctx context.Context, targetID string, maxRecords int) (*models.CheckpointSnapshot, error) {
	if s.registry.Get(targetID) != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrSyncInProgress, targetID)
	}

	snap, accepted, err := s.StartSync(ctx, targetID, true, maxRecords)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, fmt.Errorf("%w: %s", models.ErrSyncInProgress, targetID)
	}
	return snap, nil
}

// Status returns the live checkpoint for an active sync, or the last
// durable snapshot otherwise.
func (s *Service) Status(targetID string) (*models.CheckpointSnapshot, error) {
	if cp := s.registry.Get(targetID); cp != nil {
		return cp.Snapshot(), nil
	}

	snap, err := s.state.Load(targetID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return snap, nil
}

// List returns all known checkpoints, optionally filtered by status.
func (s *Service) List(status models.Status) ([]*models.CheckpointSnapshot, error) {
	return s.state.List(status)
}

// Cancel transitions a sync's checkpoint to CANCELLED. For an active sync
// the loop observes it at its next iteration boundary, so at most one
// in-flight batch still completes. A dormant checkpoint (interrupted, or
// left in progress by a dead process) is cancelled directly in the state
// store, abandoning it permanently. Returns ErrNotActive when the target
// has neither a loop nor durable state.
func (s *Service) Cancel(targetID string) (*models.CheckpointSnapshot, error) {
	cp := s.registry.Get(targetID)
	if cp == nil {
		return s.cancelDormant(targetID)
	}

	if err := cp.Cancel(); err != nil {
		return nil, err
	}

	if err := s.state.Save(cp.Snapshot()); err != nil {
		return nil, fmt.Errorf("persist checkpoint: %w", err)
	}

	s.logger.WithField("target_id", targetID).Info("Sync cancelled")
	return cp.Snapshot(), nil
}

// cancelDormant cancels a checkpoint that has no running loop, going
// through the state machine so terminal checkpoints still reject the edge.
func (s *Service) cancelDormant(targetID string) (*models.CheckpointSnapshot, error) {
	snap, err := s.state.Load(targetID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotActive, targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := models.Restore(snap)
	if err != nil {
		return nil, err
	}
	if err := cp.Cancel(); err != nil {
		return nil, err
	}

	if err := s.state.Save(cp.Snapshot()); err != nil {
		return nil, fmt.Errorf("persist checkpoint: %w", err)
	}

	s.logger.WithField("target_id", targetID).Info("Dormant sync cancelled")
	return cp.Snapshot(), nil
}

// DrainStaging merges a chat's staged rows into the authoritative store.
func (s *Service) DrainStaging(ctx context.Context, targetID string, limit int) (int, error) {
	return s.reconciler.DrainStaging(ctx, targetID, limit)
}

// Wait blocks until all background sync loops have exited.
func (s *Service) Wait() {
	s.wg.Wait()
}
