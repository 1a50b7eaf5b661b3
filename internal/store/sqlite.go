package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"asistan/internal/common/fsutil"
)

// SQLite stores buckets in a single kv table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if p != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
  bucket TEXT NOT NULL,
  key TEXT NOT NULL,
  value BLOB NOT NULL,
  updated_at DATETIME NOT NULL,
  PRIMARY KEY (bucket, key)
);
`)
	return err
}

func (s *SQLite) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE bucket=? AND key=?;", bucket, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *SQLite) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := validName("bucket", bucket); err != nil {
		return err
	}
	if err := validName("key", key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv(bucket, key, value, updated_at) VALUES(?, ?, ?, ?)
ON CONFLICT(bucket, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at;
`, bucket, key, value, time.Now().UTC())
	return err
}

func (s *SQLite) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE bucket=? AND key=?;", bucket, key)
	return err
}

func (s *SQLite) All(ctx context.Context, bucket string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM kv WHERE bucket=?;", bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]byte{}
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLite) ReplaceAll(ctx context.Context, bucket string, items map[string][]byte) error {
	if err := validName("bucket", bucket); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE bucket=?;", bucket); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO kv(bucket, key, value, updated_at) VALUES(?, ?, ?, ?);")
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().UTC()
	for k, v := range items {
		if _, err := stmt.ExecContext(ctx, bucket, k, v, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
