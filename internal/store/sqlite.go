package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/chatsync/internal/events"
	"github.com/TheMichaelB/chatsync/internal/models"
)

// SQLiteStore implements Store on SQLite. The same implementation backs
// the authoritative and the staging database; only the path differs.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore opens (and if needed creates) a message store at dbPath.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "message_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS chats (
        jid TEXT PRIMARY KEY,
        name TEXT NOT NULL DEFAULT '',
        is_group INTEGER NOT NULL DEFAULT 0,
        created_at INTEGER NOT NULL,
        updated_at INTEGER NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT NOT NULL,
        chat_jid TEXT NOT NULL,
        timestamp INTEGER NOT NULL,
        sender TEXT NOT NULL DEFAULT '',
        from_me INTEGER NOT NULL DEFAULT 0,
        content TEXT,
        sync_source TEXT NOT NULL DEFAULT '',
        created_at INTEGER NOT NULL,
        PRIMARY KEY (chat_jid, id),
        FOREIGN KEY (chat_jid) REFERENCES chats(jid) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_jid, timestamp);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// WithTx runs fn inside one transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	if err := fn(&sqliteTx{tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetChat retrieves a chat by JID.
func (s *SQLiteStore) GetChat(ctx context.Context, jid string) (*models.Chat, error) {
	var chat models.Chat
	var isGroup int
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, `
        SELECT jid, name, is_group, created_at, updated_at
        FROM chats
        WHERE jid = ?
    `, jid).Scan(&chat.JID, &chat.Name, &isGroup, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query chat: %w", err)
	}

	chat.IsGroup = isGroup != 0
	chat.CreatedAt = time.Unix(createdAt, 0).UTC()
	chat.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &chat, nil
}

// GetMessage retrieves a message by (chat JID, id).
func (s *SQLiteStore) GetMessage(ctx context.Context, chatJID, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, chat_jid, timestamp, sender, from_me, content, sync_source, created_at
        FROM messages
        WHERE chat_jid = ? AND id = ?
    `, chatJID, id)

	msg, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query message: %w", err)
	}

	return msg, nil
}

// Messages returns messages for a chat, oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, chatJID string, limit int) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, chat_jid, timestamp, sender, from_me, content, sync_source, created_at
        FROM messages
        WHERE chat_jid = ?
        ORDER BY timestamp ASC
        LIMIT ?
    `, chatJID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// CountMessages returns the stored message count for a chat.
func (s *SQLiteStore) CountMessages(ctx context.Context, chatJID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE chat_jid = ?", chatJID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// ClearChat removes a chat and, through the cascade, its messages.
func (s *SQLiteStore) ClearChat(ctx context.Context, chatJID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE jid = ?", chatJID); err != nil {
		return fmt.Errorf("clear chat: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteTx implements Tx on a live transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) UpsertChat(chat *models.Chat) error {
	now := time.Now().Unix()
	_, err := t.tx.Exec(`
        INSERT INTO chats (jid, name, is_group, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(jid) DO UPDATE SET
            name = excluded.name,
            is_group = excluded.is_group,
            updated_at = excluded.updated_at
    `, chat.JID, chat.Name, boolToInt(chat.IsGroup), now, now)

	if err != nil {
		return fmt.Errorf("upsert chat %s: %w", chat.JID, err)
	}
	return nil
}

func (t *sqliteTx) EnsureChat(jid string, timestamp int64) error {
	now := time.Now().Unix()
	if timestamp == 0 {
		timestamp = now
	}
	_, err := t.tx.Exec(`
        INSERT INTO chats (jid, name, is_group, created_at, updated_at)
        VALUES (?, '', 0, ?, ?)
        ON CONFLICT(jid) DO NOTHING
    `, jid, timestamp, now)

	if err != nil {
		return fmt.Errorf("ensure chat %s: %w", jid, err)
	}
	return nil
}

func (t *sqliteTx) UpsertMessage(msg *models.Message) error {
	_, err := t.tx.Exec(`
        INSERT INTO messages (id, chat_jid, timestamp, sender, from_me, content,
            sync_source, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(chat_jid, id) DO UPDATE SET
            timestamp = excluded.timestamp,
            sender = excluded.sender,
            from_me = excluded.from_me,
            content = excluded.content,
            sync_source = excluded.sync_source
    `, msg.ID, msg.ChatJID, msg.Timestamp, msg.Sender, boolToInt(msg.FromMe),
		msg.Content, msg.SyncSource, time.Now().Unix())

	if err != nil {
		return fmt.Errorf("upsert message %s: %w", msg.ID, err)
	}
	return nil
}

func scanMessage(scan func(dest ...interface{}) error) (*models.Message, error) {
	var msg models.Message
	var fromMe int
	var content sql.NullString
	var createdAt int64

	err := scan(&msg.ID, &msg.ChatJID, &msg.Timestamp, &msg.Sender, &fromMe,
		&content, &msg.SyncSource, &createdAt)
	if err != nil {
		return nil, err
	}

	msg.FromMe = fromMe != 0
	msg.Content = content.String
	msg.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
