package store

import (
	"context"
	"errors"

	"github.com/TheMichaelB/chatsync/internal/models"
)

// Store is the persistence contract shared by the authoritative and
// staging databases. Both carry the same logical schema (chats, messages);
// the reconciler is the only component that moves data between them.
type Store interface {
	// WithTx runs fn inside a single transaction. Everything written
	// through tx commits or rolls back as one unit.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// GetChat retrieves a chat by JID.
	GetChat(ctx context.Context, jid string) (*models.Chat, error)

	// GetMessage retrieves a message by (chat JID, id).
	GetMessage(ctx context.Context, chatJID, id string) (*models.Message, error)

	// Messages returns messages for a chat, oldest first.
	Messages(ctx context.Context, chatJID string, limit int) ([]*models.Message, error)

	// CountMessages returns the number of stored messages for a chat.
	CountMessages(ctx context.Context, chatJID string) (int, error)

	// ClearChat removes a chat and its messages. Used to dispose of
	// staged data after a drain.
	ClearChat(ctx context.Context, chatJID string) error

	// Close releases resources.
	Close() error
}

// Tx is the write surface available inside a transaction.
type Tx interface {
	// UpsertChat inserts or fully overwrites a chat row.
	UpsertChat(chat *models.Chat) error

	// EnsureChat inserts a placeholder chat row if none exists, so a
	// message never lands without its parent. An existing row is left
	// untouched.
	EnsureChat(jid string, timestamp int64) error

	// UpsertMessage inserts or overwrites a message keyed by
	// (chat JID, id).
	UpsertMessage(msg *models.Message) error
}

// Errors
var (
	ErrNotFound = errors.New("record not found")
)
