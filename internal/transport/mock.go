package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/TheMichaelB/chatsync/internal/models"
)

// MockFetcher serves scripted batches for tests. The cursor is the batch
// index, so refetching a cursor returns the same page, matching the
// idempotency contract.
type MockFetcher struct {
	mu sync.Mutex

	// Batches are served in order; fetching past the end yields an
	// empty batch.
	Batches []*models.RecordBatch

	// Errs injects an error on the call with the given zero-based
	// sequence number.
	Errs map[int]error

	// Cursors records the cursor of every call.
	Cursors []string

	calls int
}

// NewMockFetcher creates a fetcher serving the given batches.
func NewMockFetcher(batches ...*models.RecordBatch) *MockFetcher {
	return &MockFetcher{Batches: batches, Errs: make(map[int]error)}
}

// FetchBatch returns the scripted batch for the cursor's index.
func (m *MockFetcher) FetchBatch(ctx context.Context, targetID string, batchSize int, cursor string) (*models.RecordBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Cursors = append(m.Cursors, cursor)
	call := m.calls
	m.calls++

	if err, ok := m.Errs[call]; ok {
		return nil, err
	}

	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed cursor %q", models.ErrValidation, cursor)
		}
		idx = n
	}

	if idx >= len(m.Batches) {
		return &models.RecordBatch{}, nil
	}

	batch := *m.Batches[idx]
	batch.NextCursor = strconv.Itoa(idx + 1)
	return &batch, nil
}

// Calls returns how many fetches were made.
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
