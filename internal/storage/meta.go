package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type metaRepo struct {
	q querier
}

// Int returns the value stored under key, or 0 when it was never set.
func (r metaRepo) Int(ctx context.Context, key string) (int64, error) {
	var v int64
	err := r.q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(fmt.Sprintf("read meta %q", key), err)
	}
	return v, nil
}

// SetInt stores value under key.
func (r metaRepo) SetInt(ctx context.Context, key string, value int64) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return wrap(fmt.Sprintf("write meta %q", key), err)
	}
	return nil
}

const createdKey = "created"

// CreatedAt returns when the collection was created, recording now on the
// first call. Day numbers count from this instant.
func (db *DB) CreatedAt(ctx context.Context, now time.Time) (time.Time, error) {
	v, err := db.Meta().Int(ctx, createdKey)
	if err != nil {
		return time.Time{}, err
	}
	if v != 0 {
		return time.Unix(v, 0), nil
	}
	if err := db.Meta().SetInt(ctx, createdKey, now.Unix()); err != nil {
		return time.Time{}, err
	}
	return time.Unix(now.Unix(), 0), nil
}
