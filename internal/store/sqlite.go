package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/scanhelper/scanhelper/internal/identity"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS solutions (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		image TEXT NOT NULL,
		image_hash TEXT NOT NULL,
		solution TEXT NOT NULL,
		bookmarked INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL,
		UNIQUE(device_id, image_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_solutions_device_ts ON solutions(device_id, timestamp DESC);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectColumns = `SELECT id, device_id, image, image_hash, solution, bookmarked, timestamp FROM solutions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*SolutionRecord, error) {
	var rec SolutionRecord
	var deviceID string
	var bookmarked int
	var ts int64
	if err := row.Scan(&rec.ID, &deviceID, &rec.ImageBase64, &rec.ImageHash, &rec.Solution, &bookmarked, &ts); err != nil {
		return nil, err
	}
	rec.DeviceID = identity.DeviceID(deviceID)
	rec.Bookmarked = bookmarked != 0
	rec.CreatedAt = time.UnixMilli(ts)
	return &rec, nil
}

// FindByHash retrieves the device's record for imageHash.
func (s *SQLiteStore) FindByHash(ctx context.Context, deviceID identity.DeviceID, imageHash string) (*SolutionRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE device_id = ? AND image_hash = ?`, deviceID.String(), imageHash)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan solution row: %w", err)
	}
	return rec, nil
}

// Upsert creates or updates a record, deduplicated by image hash.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *SolutionRecord) error {
	if !rec.DeviceID.Valid() {
		return fmt.Errorf("upsert solution: %w", identity.ErrInvalidDeviceID)
	}
	if rec.ImageHash == "" {
		return fmt.Errorf("upsert solution: image hash is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO solutions (id, device_id, image, image_hash, solution, bookmarked, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(device_id, image_hash) DO UPDATE SET
		image = excluded.image,
		solution = excluded.solution,
		bookmarked = excluded.bookmarked,
		timestamp = excluded.timestamp
	RETURNING id`

	bookmarked := 0
	if rec.Bookmarked {
		bookmarked = 1
	}
	err := s.db.QueryRowContext(ctx, query,
		rec.ID, rec.DeviceID.String(), rec.ImageBase64, rec.ImageHash,
		rec.Solution, bookmarked, rec.CreatedAt.UnixMilli(),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("upsert solution: %w", err)
	}
	return nil
}

// List returns the device's records ordered by timestamp descending.
func (s *SQLiteStore) List(ctx context.Context, deviceID identity.DeviceID, opts ListOptions) ([]SolutionRecord, error) {
	query := selectColumns + ` WHERE device_id = ?`
	args := []any{deviceID.String()}
	if opts.BookmarkedOnly {
		query += ` AND bookmarked = 1`
	}
	query += ` ORDER BY timestamp DESC, rowid DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query solutions: %w", err)
	}
	defer rows.Close()

	var out []SolutionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan solution row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solutions: %w", err)
	}
	return out, nil
}

// Delete removes a record owned by deviceID.
func (s *SQLiteStore) Delete(ctx context.Context, deviceID identity.DeviceID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM solutions WHERE device_id = ? AND id = ?`, deviceID.String(), id)
	if err != nil {
		return fmt.Errorf("delete solution: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
