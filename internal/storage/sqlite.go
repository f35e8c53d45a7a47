package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at DATETIME
)`
	sqliteUpsert = `INSERT INTO cache_entries (key, value, updated_at)
VALUES (:key, :value, :updated_at)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
)

// sqliteRow is the named-parameter shape of one cache_entries row
type sqliteRow struct {
	Key       string    `db:"key"`
	Value     []byte    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SQLiteStore keeps cache entries in a single-table SQLite database
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache dir for %s: %w", path, err)
	}

	// WAL lets readers proceed while a worker writes
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	logger.WithField("path", path).Debug("sqlite cache store ready")
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM cache_entries WHERE key = ?`, key)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.NamedExecContext(ctx, sqliteUpsert, sqliteRow{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	})
	return err
}

// sqliteDeleteChunk stays under SQLITE_MAX_VARIABLE_NUMBER on old builds
const sqliteDeleteChunk = 500

// Delete removes keys and reports how many rows went away
func (s *SQLiteStore) Delete(ctx context.Context, keys []string) (int, error) {
	removed := 0
	for start := 0; start < len(keys); start += sqliteDeleteChunk {
		end := min(start+sqliteDeleteChunk, len(keys))
		query, args, err := sqlx.In(`DELETE FROM cache_entries WHERE key IN (?)`, keys[start:end])
		if err != nil {
			return removed, err
		}
		res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
		if err != nil {
			return removed, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys, `SELECT key FROM cache_entries ORDER BY key`)
	return keys, err
}
