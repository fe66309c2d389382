package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/chatsync/internal/events"
	"github.com/TheMichaelB/chatsync/internal/models"
)

// SQLiteStore implements SQLite-based checkpoint persistence.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore creates a SQLite checkpoint store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "checkpoint_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sync_checkpoints (
        target_id TEXT PRIMARY KEY,
        cursor TEXT,
        last_record_timestamp INTEGER,
        records_synced INTEGER NOT NULL DEFAULT 0,
        status TEXT NOT NULL,
        error_detail TEXT,
        created_at INTEGER NOT NULL,
        updated_at INTEGER NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON sync_checkpoints(status);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Load retrieves a snapshot from the database.
func (s *SQLiteStore) Load(targetID string) (*models.CheckpointSnapshot, error) {
	row := s.db.QueryRow(`
        SELECT target_id, cursor, last_record_timestamp, records_synced,
            status, error_detail, created_at, updated_at
        FROM sync_checkpoints
        WHERE target_id = ?
    `, targetID)

	snap, err := scanSnapshot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}

	return snap, nil
}

// Save upserts a snapshot.
func (s *SQLiteStore) Save(snap *models.CheckpointSnapshot) error {
	s.logger.WithFields(map[string]interface{}{
		"target_id": snap.TargetID,
		"status":    snap.Status,
		"records":   snap.RecordsSynced,
	}).Debug("Saving checkpoint")

	var cursor, detail sql.NullString
	if snap.Cursor != "" {
		cursor = sql.NullString{String: snap.Cursor, Valid: true}
	}
	if snap.ErrorDetail != "" {
		detail = sql.NullString{String: snap.ErrorDetail, Valid: true}
	}

	var lastTS sql.NullInt64
	if snap.LastTimestamp != 0 {
		lastTS = sql.NullInt64{Int64: snap.LastTimestamp, Valid: true}
	}

	_, err := s.db.Exec(`
        INSERT INTO sync_checkpoints (target_id, cursor, last_record_timestamp,
            records_synced, status, error_detail, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(target_id) DO UPDATE SET
            cursor = excluded.cursor,
            last_record_timestamp = excluded.last_record_timestamp,
            records_synced = excluded.records_synced,
            status = excluded.status,
            error_detail = excluded.error_detail,
            updated_at = excluded.updated_at
    `, snap.TargetID, cursor, lastTS, snap.RecordsSynced, string(snap.Status),
		detail, snap.CreatedAt.Unix(), snap.UpdatedAt.Unix())

	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}

	return nil
}

// List returns snapshots, optionally filtered by status.
func (s *SQLiteStore) List(status models.Status) ([]*models.CheckpointSnapshot, error) {
	query := `
        SELECT target_id, cursor, last_record_timestamp, records_synced,
            status, error_detail, created_at, updated_at
        FROM sync_checkpoints
    `
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var snaps []*models.CheckpointSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		snaps = append(snaps, snap)
	}

	return snaps, rows.Err()
}

// Delete removes a snapshot.
func (s *SQLiteStore) Delete(targetID string) error {
	_, err := s.db.Exec("DELETE FROM sync_checkpoints WHERE target_id = ?", targetID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSnapshot(scan func(dest ...interface{}) error) (*models.CheckpointSnapshot, error) {
	var snap models.CheckpointSnapshot
	var cursor, detail sql.NullString
	var lastTS sql.NullInt64
	var status string
	var createdAt, updatedAt int64

	err := scan(&snap.TargetID, &cursor, &lastTS, &snap.RecordsSynced,
		&status, &detail, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	snap.Cursor = cursor.String
	snap.ErrorDetail = detail.String
	snap.LastTimestamp = lastTS.Int64
	snap.Status = models.Status(status)
	snap.CreatedAt = time.Unix(createdAt, 0).UTC()
	snap.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &snap, nil
}
