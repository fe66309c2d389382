package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/TheMichaelB/chatsync/internal/models"
)

// MockStore is an in-memory Store for tests. Transactions are emulated by
// buffering writes and applying them only when fn returns nil, matching the
// all-or-nothing contract.
type MockStore struct {
	mu       sync.Mutex
	chats    map[string]*models.Chat
	messages map[string]*models.Message // key chatJID + "\x00" + id

	// TxErr, when set, fails WithTx before fn runs.
	TxErr error
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		chats:    make(map[string]*models.Chat),
		messages: make(map[string]*models.Message),
	}
}

func (m *MockStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if m.TxErr != nil {
		return m.TxErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &mockTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, apply := range tx.writes {
		apply()
	}
	return nil
}

func (m *MockStore) GetChat(ctx context.Context, jid string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.chats[jid]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *chat
	return &copied, nil
}

func (m *MockStore) GetMessage(ctx context.Context, chatJID, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[msgKey(chatJID, id)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (m *MockStore) Messages(ctx context.Context, chatJID string, limit int) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var msgs []*models.Message
	for _, msg := range m.messages {
		if msg.ChatJID != chatJID {
			continue
		}
		copied := *msg
		msgs = append(msgs, &copied)
		if len(msgs) == limit {
			break
		}
	}
	return msgs, nil
}

func (m *MockStore) CountMessages(ctx context.Context, chatJID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, msg := range m.messages {
		if msg.ChatJID == chatJID {
			count++
		}
	}
	return count, nil
}

func (m *MockStore) ClearChat(ctx context.Context, chatJID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.chats, chatJID)
	for key, msg := range m.messages {
		if msg.ChatJID == chatJID {
			delete(m.messages, key)
		}
	}
	return nil
}

func (m *MockStore) Close() error { return nil }

// ChatCount returns the number of stored chats.
func (m *MockStore) ChatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chats)
}

type mockTx struct {
	store  *MockStore
	writes []func()
}

func (t *mockTx) UpsertChat(chat *models.Chat) error {
	copied := *chat
	t.writes = append(t.writes, func() {
		t.store.chats[copied.JID] = &copied
	})
	return nil
}

func (t *mockTx) EnsureChat(jid string, timestamp int64) error {
	t.writes = append(t.writes, func() {
		if _, ok := t.store.chats[jid]; !ok {
			t.store.chats[jid] = &models.Chat{JID: jid}
		}
	})
	return nil
}

func (t *mockTx) UpsertMessage(msg *models.Message) error {
	copied := *msg
	t.writes = append(t.writes, func() {
		t.store.messages[msgKey(copied.ChatJID, copied.ID)] = &copied
	})
	return nil
}

func msgKey(chatJID, id string) string {
	return fmt.Sprintf("%s\x00%s", chatJID, id)
}
