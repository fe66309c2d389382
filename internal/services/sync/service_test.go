package sync_test

import (
	"context"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/chatsync/internal/events"
	"github.com/TheMichaelB/chatsync/internal/models"
	syncsvc "github.com/TheMichaelB/chatsync/internal/services/sync"
	"github.com/TheMichaelB/chatsync/internal/state"
	"github.com/TheMichaelB/chatsync/internal/store"
	"github.com/TheMichaelB/chatsync/internal/transport"
)

type serviceEnv struct {
	service       *syncsvc.Service
	stateStore    *state.MockStore
	authoritative *store.MockStore
	staging       *store.MockStore
}

func newService(t *testing.T, fetcher transport.Fetcher) *serviceEnv {
	t.Helper()

	logger := events.NewTestLogger()
	stateStore := state.NewMockStore()
	authoritative := store.NewMockStore()
	staging := store.NewMockStore()

	registry := syncsvc.NewRegistry()
	coordinator := syncsvc.NewCoordinator(stateStore, syncsvc.CoordinatorConfig{
		BatchSize:          100,
		CheckpointInterval: 100,
		BatchDelay:         0,
	}, logger)
	reconciler := syncsvc.NewReconciler(authoritative, staging, "history", logger)

	return &serviceEnv{
		service:       syncsvc.NewService(registry, coordinator, reconciler, fetcher, stateStore, logger),
		stateStore:    stateStore,
		authoritative: authoritative,
		staging:       staging,
	}
}

// gatedFetcher blocks every fetch until the gate channel is closed, keeping
// the background loop alive for as long as a test needs it.
func gatedFetcher(gate <-chan struct{}, inner transport.Fetcher) transport.Fetcher {
	return transport.FetchFunc(func(ctx context.Context, targetID string, batchSize int, cursor string) (*models.RecordBatch, error) {
		<-gate
		return inner.FetchBatch(ctx, targetID, batchSize, cursor)
	})
}

func TestStartSyncRunsToCompletion(t *testing.T) {
	env := newService(t, transport.NewMockFetcher(recordBatch(0, 100)))

	snap, accepted, err := env.service.StartSync(context.Background(), testTarget, false, 10000)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, models.StatusInProgress, snap.Status)

	env.service.Wait()

	final, err := env.service.Status(testTarget)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.RecordsSynced)

	count, err := env.authoritative.CountMessages(context.Background(), testTarget)
	require.NoError(t, err)
	assert.Equal(t, 100, count)
}

func TestStartSyncValidatesInput(t *testing.T) {
	env := newService(t, transport.NewMockFetcher())

	_, _, err := env.service.StartSync(context.Background(), "no-domain", false, 100)
	assert.ErrorIs(t, err, models.ErrInvalidTargetID)

	_, _, err = env.service.StartSync(context.Background(), testTarget, false, 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestStartSyncRejectsConcurrentTarget(t *testing.T) {
	gate := make(chan struct{})
	env := newService(t, gatedFetcher(gate, transport.NewMockFetcher()))

	_, accepted, err := env.service.StartSync(context.Background(), testTarget, false, 10000)
	require.NoError(t, err)
	require.True(t, accepted)

	// Same target while the first loop is still running: rejected, and the
	// caller gets the live checkpoint back.
	snap, accepted, err := env.service.StartSync(context.Background(), testTarget, false, 10000)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, models.StatusInProgress, snap.Status)

	// A different target is admitted independently.
	_, accepted, err = env.service.StartSync(context.Background(), "other@s.whatsapp.net", false, 10000)
	require.NoError(t, err)
	assert.True(t, accepted)

	close(gate)
	env.service.Wait()
}

func TestStartSyncSupersedesFinishedRun(t *testing.T) {
	env := newService(t, transport.NewMockFetcher(recordBatch(0, 50)))

	_, accepted, err := env.service.StartSync(context.Background(), testTarget, false, 10000)
	require.NoError(t, err)
	require.True(t, accepted)
	env.service.Wait()

	// Starting again without resume discards the completed checkpoint and
	// begins from scratch.
	snap, accepted, err := env.service.StartSync(context.Background(), testTarget, false, 10000)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, 0, snap.RecordsSynced)
	assert.Empty(t, snap.Cursor)

	env.service.Wait()
}

func TestStatusFallsBackToDurableSnapshot(t *testing.T) {
	env := newService(t, transport.NewMockFetcher())

	require.NoError(t, env.stateStore.Save(&models.CheckpointSnapshot{
		TargetID:      testTarget,
		Status:        models.StatusInterrupted,
		Cursor:        "c7",
		RecordsSynced: 700,
		ErrorDetail:   "network drop",
	}))

	snap, err := env.service.Status(testTarget)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInterrupted, snap.Status)
	assert.Equal(t, 700, snap.RecordsSynced)

	_, err = env.service.Status("unknown@s.whatsapp.net")
	assert.ErrorIs(t, err, syncsvc.ErrNotFound)
}

func TestCancelActiveSync(t *testing.T) {
	gate := make(chan struct{})
	env := newService(t, gatedFetcher(gate, transport.NewMockFetcher(recordBatch(0, 100))))

	_, accepted, err := env.service.StartSync(context.Background(), testTarget, false, 10000)
	require.NoError(t, err)
	require.True(t, accepted)

	snap, err := env.service.Cancel(testTarget)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, snap.Status)

	close(gate)
	env.service.Wait()

	// The loop observed the cancel; the terminal state is durable.
	final, err := env.service.Status(testTarget)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, final.Status)

	// Cancelling again goes through the durable checkpoint, which is
	// already terminal.
	_, err = env.service.Cancel(testTarget)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCancelDormantSync(t *testing.T) {
	env := newService(t, transport.NewMockFetcher())

	// An interrupted sync with no running loop can be abandoned for good.
	require.NoError(t, env.stateStore.Save(&models.CheckpointSnapshot{
		TargetID:      testTarget,
		Status:        models.StatusInterrupted,
		Cursor:        "1",
		RecordsSynced: 100,
		ErrorDetail:   "network drop",
	}))

	snap, err := env.service.Cancel(testTarget)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, snap.Status)

	final, err := env.service.Status(testTarget)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, final.Status)

	// Abandoned means abandoned: no resume afterwards.
	_, err = env.service.Resume(context.Background(), testTarget, 10000)
	assert.ErrorIs(t, err, models.ErrCannotResume)

	// A target with neither a loop nor durable state is not active.
	_, err = env.service.Cancel("unknown@s.whatsapp.net")
	assert.ErrorIs(t, err, syncsvc.ErrNotActive)
}

func TestResumeRecoversCrashedRun(t *testing.T) {
	env := newService(t, transport.NewMockFetcher(recordBatch(0, 100), recordBatch(100, 100)))

	// A process that dies mid-loop leaves its last interval save behind:
	// status still IN_PROGRESS, cursor pointing at the next page.
	require.NoError(t, env.stateStore.Save(&models.CheckpointSnapshot{
		TargetID:      testTarget,
		Status:        models.StatusInProgress,
		Cursor:        "1",
		RecordsSynced: 100,
	}))

	snap, err := env.service.Resume(context.Background(), testTarget, 10000)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, snap.Status)
	assert.Equal(t, "1", snap.Cursor)

	env.service.Wait()

	// The run continued from the orphaned cursor instead of starting over.
	final, err := env.service.Status(testTarget)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, 200, final.RecordsSynced)
}

func TestStartSyncConcurrentWithFinishingLoops(t *testing.T) {
	// Loops over an empty source finish almost immediately, so concurrent
	// starts constantly race admission against release. Every call must
	// return a usable snapshot, accepted or not.
	env := newService(t, transport.NewMockFetcher())

	var wg gosync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				snap, _, err := env.service.StartSync(context.Background(), testTarget, false, 100)
				if err != nil {
					t.Error(err)
					return
				}
				if snap == nil {
					t.Error("nil snapshot from StartSync")
					return
				}
			}
		}()
	}

	wg.Wait()
	env.service.Wait()
}

func TestResumeContinuesInterruptedSync(t *testing.T) {
	env := newService(t, transport.NewMockFetcher(recordBatch(0, 100), recordBatch(100, 100)))

	require.NoError(t, env.stateStore.Save(&models.CheckpointSnapshot{
		TargetID:      testTarget,
		Status:        models.StatusInterrupted,
		Cursor:        "1",
		RecordsSynced: 100,
		ErrorDetail:   "network drop",
	}))

	snap, err := env.service.Resume(context.Background(), testTarget, 10000)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, snap.Status)
	assert.Empty(t, snap.ErrorDetail)

	env.service.Wait()

	final, err := env.service.Status(testTarget)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)
	// The second page plus the progress carried over from before the
	// interruption.
	assert.Equal(t, 200, final.RecordsSynced)
}

func TestResumeErrors(t *testing.T) {
	t.Run("unknown target", func(t *testing.T) {
		env := newService(t, transport.NewMockFetcher())
		_, err := env.service.Resume(context.Background(), testTarget, 10000)
		assert.ErrorIs(t, err, syncsvc.ErrNotFound)
	})

	t.Run("completed sync", func(t *testing.T) {
		env := newService(t, transport.NewMockFetcher())
		require.NoError(t, env.stateStore.Save(&models.CheckpointSnapshot{
			TargetID: testTarget,
			Status:   models.StatusCompleted,
		}))

		_, err := env.service.Resume(context.Background(), testTarget, 10000)
		assert.ErrorIs(t, err, models.ErrCannotResume)
	})

	t.Run("already active", func(t *testing.T) {
		gate := make(chan struct{})
		env := newService(t, gatedFetcher(gate, transport.NewMockFetcher()))

		_, accepted, err := env.service.StartSync(context.Background(), testTarget, false, 10000)
		require.NoError(t, err)
		require.True(t, accepted)

		_, err = env.service.Resume(context.Background(), testTarget, 10000)
		assert.ErrorIs(t, err, models.ErrSyncInProgress)

		close(gate)
		env.service.Wait()
	})
}

func TestServiceDrainStaging(t *testing.T) {
	env := newService(t, transport.NewMockFetcher())

	err := env.staging.WithTx(context.Background(), func(tx store.Tx) error {
		if err := tx.EnsureChat(testTarget, 500); err != nil {
			return err
		}
		return tx.UpsertMessage(messageRecord(testTarget, "m1", 1000).MessageRecord("live"))
	})
	require.NoError(t, err)

	written, err := env.service.DrainStaging(context.Background(), testTarget, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	count, err := env.authoritative.CountMessages(context.Background(), testTarget)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
