package localstore

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *Store) PutSetting(ctx context.Context, key string, value []byte) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toMillis(time.Now()))
	if err != nil {
		return storageErr("put setting", err)
	}
	return nil
}

// GetSetting returns the stored value and whether the key exists.
func (s *Store) GetSetting(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, false, err
	}
	var value []byte
	err = db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("get setting", err)
	}
	return value, true, nil
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return storageErr("delete setting", err)
	}
	return nil
}
