package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheStore keeps request cache blobs in the cache_entries table. Freshness
// is decided by the request cache; expires_at only drives PurgeExpired.
type CacheStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewCacheStore creates a cache store over db
func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db, now: time.Now}
}

// Get returns the blob stored under key
func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM cache_entries WHERE cache_key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return blob, true, nil
}

// Put replaces the blob under key and records when it expires
func (s *CacheStore) Put(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO cache_entries (cache_key, blob, expires_at)
	VALUES (?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET blob = excluded.blob, expires_at = excluded.expires_at`,
		key, blob, s.now().Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// PurgeExpired deletes entries past their expiry and returns how many went
func (s *CacheStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged entries: %w", err)
	}
	return n, nil
}
