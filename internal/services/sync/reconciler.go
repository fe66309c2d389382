package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/TheMichaelB/chatsync/internal/events"
	"github.com/TheMichaelB/chatsync/internal/models"
	"github.com/TheMichaelB/chatsync/internal/store"
)

// Reconciler merges fetched record batches into the authoritative store.
// It is the only component that writes history data there, and the only
// one allowed to move staged rows across.
type Reconciler struct {
	authoritative store.Store
	staging       store.Store
	source        string
	logger        *events.Logger
}

// NewReconciler creates a reconciler. staging may be nil when no staging
// database is configured; source labels the rows it writes.
func NewReconciler(authoritative, staging store.Store, source string, logger *events.Logger) *Reconciler {
	return &Reconciler{
		authoritative: authoritative,
		staging:       staging,
		source:        source,
		logger:        logger.WithField("component", "reconciler"),
	}
}

// MergeBatch writes one batch into the authoritative store as a single
// transaction and returns the number of records written.
//
// Chat records upsert by primary key, last write in the batch wins.
// Message records first ensure their parent chat exists (placeholder row
// if absent) and then upsert by (chat JID, id); replayed duplicates are
// silently overwritten. Because of that, callers must count len(batch) as
// the progress delta rather than trust store row counts.
func (r *Reconciler) MergeBatch(ctx context.Context, records []models.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	err := r.authoritative.WithTx(ctx, func(tx store.Tx) error {
		for _, rec := range records {
			switch rec.Kind {
			case models.RecordChat:
				if err := tx.UpsertChat(rec.ChatRecord()); err != nil {
					return err
				}
			case models.RecordMessage:
				if rec.ChatJID == "" {
					return fmt.Errorf("%w: message %s has no parent chat", models.ErrValidation, rec.ID)
				}
				if err := tx.EnsureChat(rec.ChatJID, rec.Timestamp); err != nil {
					return err
				}
				if err := tx.UpsertMessage(rec.MessageRecord(r.source)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: unknown record kind %q", models.ErrValidation, rec.Kind)
			}
		}
		return nil
	})

	if err != nil {
		// Malformed input is the caller's problem and must fail the sync;
		// everything else from the store is treated as unavailability.
		if errors.Is(err, context.Canceled) || errors.Is(err, models.ErrValidation) || models.IsTransient(err) {
			return 0, err
		}
		return 0, &models.TransientError{Op: "persist", Err: err}
	}

	r.logger.WithField("records", len(records)).Debug("Merged batch")
	return len(records), nil
}

// DrainStaging re-merges a chat's staged rows into the authoritative store
// and clears them afterwards. The staging database is disposable scratch:
// losing it only costs a re-run of history sync.
func (r *Reconciler) DrainStaging(ctx context.Context, targetID string, limit int) (int, error) {
	if r.staging == nil {
		return 0, nil
	}

	staged, err := r.staging.Messages(ctx, targetID, limit)
	if err != nil {
		return 0, fmt.Errorf("read staged messages: %w", err)
	}
	if len(staged) == 0 {
		return 0, nil
	}

	records := make([]models.Record, 0, len(staged))
	for _, msg := range staged {
		records = append(records, models.Record{
			Kind:      models.RecordMessage,
			ID:        msg.ID,
			ChatJID:   msg.ChatJID,
			Timestamp: msg.Timestamp,
			Sender:    msg.Sender,
			FromMe:    msg.FromMe,
			Content:   msg.Content,
		})
	}

	written, err := r.MergeBatch(ctx, records)
	if err != nil {
		return 0, err
	}

	// Clear only after the authoritative write committed.
	if err := r.staging.ClearChat(ctx, targetID); err != nil {
		r.logger.WithError(err).Warn("Failed to clear staged chat")
	}

	r.logger.WithFields(map[string]interface{}{
		"target_id": targetID,
		"records":   written,
	}).Info("Drained staging store")

	return written, nil
}
