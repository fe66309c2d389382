package transport

import (
	"context"

	"github.com/TheMichaelB/chatsync/internal/models"
)

// Fetcher is the batch-fetch contract consumed by the sync coordinator.
//
// Implementations must be idempotent for a given cursor (a retried fetch
// with the same cursor returns the same or a superset-consistent batch) and
// must return an empty batch, not an error, when the source is exhausted.
type Fetcher interface {
	FetchBatch(ctx context.Context, targetID string, batchSize int, cursor string) (*models.RecordBatch, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, targetID string, batchSize int, cursor string) (*models.RecordBatch, error)

// FetchBatch calls f.
func (f FetchFunc) FetchBatch(ctx context.Context, targetID string, batchSize int, cursor string) (*models.RecordBatch, error) {
	return f(ctx, targetID, batchSize, cursor)
}
