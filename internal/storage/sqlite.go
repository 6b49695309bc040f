package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		seq INTEGER NOT NULL,
		content TEXT NOT NULL,
		kind TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (collection, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_collection_seq ON entries(collection, seq);
	`
	_, err := db.Exec(schema)
	return err
}

// InsertEntries appends entries after the collection's last entry. Entries with a zero
// CreatedAt are stamped with the insert time.
func (s *SQLiteStorage) InsertEntries(ctx context.Context, collection string, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM entries WHERE collection = ?`, collection,
	).Scan(&next); err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (id, collection, seq, content, kind, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, e := range entries {
		kind, meta, err := models.EncodeMetadata(e.Metadata)
		if err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, e.ID, collection, next+int64(i), e.Content,
			string(kind), string(meta), created); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// ListEntries returns all entries of a collection ordered by insertion.
func (s *SQLiteStorage) ListEntries(ctx context.Context, collection string) ([]models.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, kind, metadata, created_at
		 FROM entries WHERE collection = ? ORDER BY seq`,
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var e models.Entry
		var kind string
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.Content, &kind, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Collection = collection
		e.Metadata, err = models.DecodeMetadata(models.Kind(kind), []byte(meta.String))
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountEntries returns the number of entries in a collection.
func (s *SQLiteStorage) CountEntries(ctx context.Context, collection string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE collection = ?`, collection,
	).Scan(&count)
	return count, err
}

// Collections returns the names of collections that have at least one entry.
func (s *SQLiteStorage) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT collection FROM entries ORDER BY collection`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
