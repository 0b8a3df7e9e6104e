// Package kvstore is the durable, string-keyed store shared by every
// DeepShield client process: values survive process restarts, every write is
// a full-value replace, and concurrent processes observe changes by polling
// revisions.
package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Well-known keys. All values are serialized structured records; binary
// payloads are never persisted here.
const (
	KeyCredential    = "session-credential"
	KeyIdentity      = "session-identity"
	KeyPendingResult = "pending-analysis-result"
	KeyDraft         = "complaint-draft"
)

// Entry is a single stored value together with its revision.
type Entry struct {
	Key      string
	Value    string
	Revision int64
}

// Store is a SQLite-backed key-value store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at the given path. Use
// ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// A single connection keeps in-memory databases coherent and is plenty
	// for a per-process state store.
	db.SetMaxOpenConns(1)

	// Cross-process writers need busy waiting rather than immediate errors.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		revision INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key. The second return is false when the key is
// absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Put replaces the value for key. Writes are always whole-value; there is no
// partial-field patching, so a concurrent reader never sees a torn record.
func (s *Store) Put(ctx context.Context, key, value string) error {
	return s.PutAll(ctx, map[string]string{key: value})
}

// PutAll replaces several keys in a single transaction, so all of them become
// visible to other processes together.
func (s *Store) PutAll(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for key, value := range values {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, revision, updated_at) VALUES (?, ?, 1, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				revision = kv.revision + 1,
				updated_at = excluded.updated_at`,
			key, value, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.DeleteAll(ctx, key)
}

// DeleteAll removes several keys in a single transaction.
func (s *Store) DeleteAll(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Revisions returns the current revision of every stored key. Absent keys
// have no entry. Watchers diff successive snapshots to detect changes.
func (s *Store) Revisions(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, revision FROM kv`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	revs := make(map[string]int64)
	for rows.Next() {
		var key string
		var rev int64
		if err := rows.Scan(&key, &rev); err != nil {
			return nil, err
		}
		revs[key] = rev
	}
	return revs, rows.Err()
}
