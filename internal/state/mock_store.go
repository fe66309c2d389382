package state

import (
	"sync"

	"github.com/TheMichaelB/chatsync/internal/models"
)

// MockStore is an in-memory Store for tests.
type MockStore struct {
	mu    sync.Mutex
	snaps map[string]*models.CheckpointSnapshot

	// SaveErr, when set, is returned by Save.
	SaveErr error
	// Saves counts Save calls.
	Saves int
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{snaps: make(map[string]*models.CheckpointSnapshot)}
}

func (m *MockStore) Load(targetID string) (*models.CheckpointSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.snaps[targetID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *snap
	return &copied, nil
}

func (m *MockStore) Save(snap *models.CheckpointSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	copied := *snap
	m.snaps[snap.TargetID] = &copied
	return nil
}

func (m *MockStore) List(status models.Status) ([]*models.CheckpointSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var snaps []*models.CheckpointSnapshot
	for _, snap := range m.snaps {
		if status != "" && snap.Status != status {
			continue
		}
		copied := *snap
		snaps = append(snaps, &copied)
	}
	return snaps, nil
}

func (m *MockStore) Delete(targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.snaps, targetID)
	return nil
}

func (m *MockStore) Close() error { return nil }
