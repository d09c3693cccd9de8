package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	codecRaw  = 0
	codecZstd = 1
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	codec      INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
)`

// SQLite is a Store persisted in a single sqlite file.
type SQLite struct {
	db            *sql.DB
	compressAbove int
	enc           *zstd.Encoder
	dec           *zstd.Decoder
	logger        *zap.Logger
}

// OpenSQLite opens or creates the database at path. Values longer than
// compressAbove bytes are stored zstd-compressed; 0 disables compression.
func OpenSQLite(ctx context.Context, path string, compressAbove int, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = db.Close()
		return nil, fmt.Errorf("chmod db path: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	logger.Info("Opened key-value store", zap.String("path", path), zap.Int("compress_above", compressAbove))
	return &SQLite{db: db, compressAbove: compressAbove, enc: enc, dec: dec, logger: logger}, nil
}

// Close releases the database and codecs.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}

func (s *SQLite) encode(value []byte) ([]byte, int) {
	if s.compressAbove <= 0 || len(value) <= s.compressAbove {
		return value, codecRaw
	}
	return s.enc.EncodeAll(value, make([]byte, 0, len(value)/2)), codecZstd
}

func (s *SQLite) decode(value []byte, codec int) ([]byte, error) {
	switch codec {
	case codecRaw:
		return value, nil
	case codecZstd:
		out, err := s.dec.DecodeAll(value, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown codec %d", codec)
	}
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		codec int
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, codec FROM kv WHERE key = ?`, key).Scan(&value, &codec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	out, err := s.decode(value, codec)
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return out, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	stored, codec := s.encode(value)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv(key, value, codec, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value=excluded.value,
	codec=excluded.codec,
	updated_at=excluded.updated_at`,
		key, stored, codec, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return fmt.Errorf("remove %q: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) All(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, codec FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("list kv: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
			codec int
		)
		if err := rows.Scan(&key, &value, &codec); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		decoded, err := s.decode(value, codec)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		out[key] = decoded
	}
	return out, rows.Err()
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear kv: %w", err)
	}
	return nil
}
