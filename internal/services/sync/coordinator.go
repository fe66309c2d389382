package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/TheMichaelB/chatsync/internal/events"
	"github.com/TheMichaelB/chatsync/internal/models"
	"github.com/TheMichaelB/chatsync/internal/state"
	"github.com/TheMichaelB/chatsync/internal/transport"
)

// PersistFunc is the reconciler's batch-write entry point.
type PersistFunc func(ctx context.Context, records []models.Record) (int, error)

// CoordinatorConfig tunes the fetch/persist/checkpoint loop.
type CoordinatorConfig struct {
	BatchSize          int           // records per fetch
	CheckpointInterval int           // durable snapshot every N records
	BatchDelay         time.Duration // pacing between batches
}

// Coordinator runs the per-target history sync loop: fetch a batch, persist
// it, advance the checkpoint, snapshot at intervals. One Run call owns one
// target's checkpoint from start to its terminal or interrupted state.
type Coordinator struct {
	state  state.Store
	cfg    CoordinatorConfig
	logger *events.Logger
}

// NewCoordinator creates a coordinator persisting snapshots to stateStore.
func NewCoordinator(stateStore state.Store, cfg CoordinatorConfig, logger *events.Logger) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 100
	}
	return &Coordinator{
		state:  stateStore,
		cfg:    cfg,
		logger: logger.WithField("component", "sync_coordinator"),
	}
}

// Run drives the loop until the source is exhausted, maxRecords is reached,
// an error interrupts it, or the checkpoint stops being active (external
// cancel). Cancellation is cooperative: at most the in-flight batch
// completes after it. The registry entry is released on every exit path.
func (c *Coordinator) Run(
	ctx context.Context,
	targetID string,
	cp *models.Checkpoint,
	maxRecords int,
	fetch transport.Fetcher,
	persist PersistFunc,
	registry *Registry,
) (err error) {
	defer registry.Release(targetID)
	defer func() {
		if saveErr := c.state.Save(cp.Snapshot()); saveErr != nil {
			c.logger.WithError(saveErr).WithField("target_id", targetID).
				Error("Failed to persist final checkpoint")
			if err == nil {
				err = fmt.Errorf("persist final checkpoint: %w", saveErr)
			}
		}
	}()

	if maxRecords <= 0 {
		return fmt.Errorf("%w: max records must be positive, got %d", models.ErrValidation, maxRecords)
	}

	logger := c.logger.WithField("target_id", targetID)

	if cp.Status() == models.StatusNotStarted {
		if startErr := cp.Start(); startErr != nil {
			return startErr
		}
	}

	limiter := rate.NewLimiter(rate.Every(c.cfg.BatchDelay), 1)
	if c.cfg.BatchDelay <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	logger.WithFields(map[string]interface{}{
		"max_records": maxRecords,
		"cursor":      cp.Cursor(),
	}).Info("Starting history sync loop")

	start := time.Now()
	fetched := 0
	sinceSnapshot := 0

	for fetched < maxRecords && cp.IsActive() {
		batch, fetchErr := fetch.FetchBatch(ctx, targetID, c.cfg.BatchSize, cp.Cursor())
		if fetchErr != nil {
			return c.abort(cp, logger, "fetch", fetchErr)
		}

		// Empty batch means the source is exhausted: a success path.
		if batch.Empty() {
			logger.Debug("Source exhausted")
			break
		}

		if _, persistErr := persist(ctx, batch.Records); persistErr != nil {
			return c.abort(cp, logger, "persist", persistErr)
		}

		// Progress counts the batch length, not store-reported rows:
		// replayed duplicates are overwritten, never double-counted.
		delta := len(batch.Records)
		if upErr := cp.UpdateProgress(batch.NextCursor, batch.LastTimestamp(), delta); upErr != nil {
			// A cancel can land between the loop check and here.
			if errors.Is(upErr, models.ErrNotInProgress) {
				break
			}
			return upErr
		}

		fetched += delta
		sinceSnapshot += delta

		if sinceSnapshot >= c.cfg.CheckpointInterval {
			if saveErr := c.state.Save(cp.Snapshot()); saveErr != nil {
				return c.abort(cp, logger, "persist", &models.TransientError{Op: "persist", Err: saveErr})
			}
			sinceSnapshot = 0
		}

		if waitErr := limiter.Wait(ctx); waitErr != nil {
			return c.abort(cp, logger, "fetch", waitErr)
		}
	}

	if cp.IsActive() {
		if compErr := cp.Complete(); compErr != nil {
			return compErr
		}
	}

	elapsed := time.Since(start)
	logger.WithFields(map[string]interface{}{
		"status":  cp.Status(),
		"records": fetched,
		"elapsed": elapsed.Round(time.Millisecond).String(),
	}).Info("History sync loop finished")

	return nil
}

// abort classifies an in-loop failure: transient errors (network, store
// unavailability, cancellation of the context) interrupt the checkpoint so
// the sync is explicitly worth resuming; anything else fails it.
func (c *Coordinator) abort(cp *models.Checkpoint, logger *events.Logger, phase string, cause error) error {
	detail := cause.Error()

	if models.IsTransient(cause) || errors.Is(cause, context.Canceled) {
		if err := cp.Interrupt(detail); err != nil {
			// Already cancelled out from under us.
			logger.WithError(err).Debug("Interrupt skipped")
		}
		logger.WithError(cause).WithField("phase", phase).Warn("Sync interrupted")
	} else {
		c.failCheckpoint(cp, detail)
		logger.WithError(cause).WithField("phase", phase).Error("Sync failed")
	}

	return &models.SyncError{
		Code:     phaseCode(phase),
		Phase:    phase,
		TargetID: cp.TargetID(),
		Err:      cause,
	}
}

func (c *Coordinator) failCheckpoint(cp *models.Checkpoint, detail string) {
	if err := cp.Fail(detail); err != nil {
		c.logger.WithError(err).Debug("Fail transition skipped")
	}
}

func phaseCode(phase string) string {
	if phase == "persist" {
		return models.ErrCodePersist
	}
	return models.ErrCodeFetch
}
