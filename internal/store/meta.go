package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Keys in the sync_meta table.
const (
	MetaPullCursor          = "pull_cursor"
	MetaLastSyncTimestamp   = "last_sync_timestamp"
	MetaDeviceID            = "device_id"
	MetaInitialSyncComplete = "initial_sync_complete"
	MetaSyncEnabled         = "sync_enabled"
)

func getMeta(ctx context.Context, q dbtx, key string) ([]byte, error) {
	var value []byte
	err := q.QueryRowContext(ctx, "SELECT value FROM sync_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync_meta %q: %w", key, err)
	}
	return value, nil
}

func setMeta(ctx context.Context, q dbtx, key string, value []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write sync_meta %q: %w", key, err)
	}
	return nil
}

func deleteMeta(ctx context.Context, q dbtx, key string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM sync_meta WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete sync_meta %q: %w", key, err)
	}
	return nil
}

// GetMeta returns the raw value for key, nil when unset.
func (s *Store) GetMeta(ctx context.Context, key string) ([]byte, error) {
	return getMeta(ctx, s.conn, key)
}

// SetMeta stores a raw value for key.
func (s *Store) SetMeta(ctx context.Context, key string, value []byte) error {
	return setMeta(ctx, s.conn, key, value)
}

// DeleteMeta removes key from sync_meta.
func (s *Store) DeleteMeta(ctx context.Context, key string) error {
	return deleteMeta(ctx, s.conn, key)
}

// GetMetaInt64 parses the value for key as a decimal integer, 0 when unset.
func (s *Store) GetMetaInt64(ctx context.Context, key string) (int64, error) {
	raw, err := s.GetMeta(ctx, key)
	if err != nil || len(raw) == 0 {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sync_meta %q is not an integer: %w", key, err)
	}
	return n, nil
}

// SetMetaInt64 stores an integer value for key.
func (s *Store) SetMetaInt64(ctx context.Context, key string, n int64) error {
	return s.SetMeta(ctx, key, []byte(strconv.FormatInt(n, 10)))
}

// GetMetaBool reads a boolean flag, false when unset.
func (s *Store) GetMetaBool(ctx context.Context, key string) (bool, error) {
	raw, err := s.GetMeta(ctx, key)
	if err != nil {
		return false, err
	}
	return string(raw) == "1", nil
}

// SetMetaBool stores a boolean flag for key.
func (s *Store) SetMetaBool(ctx context.Context, key string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return s.SetMeta(ctx, key, []byte(val))
}

// GetMeta returns the raw value for key inside the transaction.
func (t *Tx) GetMeta(ctx context.Context, key string) ([]byte, error) {
	return getMeta(ctx, t.tx, key)
}

// SetMeta stores a raw value for key inside the transaction.
func (t *Tx) SetMeta(ctx context.Context, key string, value []byte) error {
	return setMeta(ctx, t.tx, key, value)
}

// DeleteMeta removes key from sync_meta inside the transaction.
func (t *Tx) DeleteMeta(ctx context.Context, key string) error {
	return deleteMeta(ctx, t.tx, key)
}
