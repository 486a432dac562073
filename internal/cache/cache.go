package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"flightsync/internal/models"
)

// DefaultTTL is how long a provider response stays fresh
const DefaultTTL = 24 * time.Hour

// Store is a pluggable blob store. Implementations must be safe for
// concurrent use; the last writer for a key wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, blob []byte, ttl time.Duration) error
}

// CacheError wraps a failed cache read or write. It is never fatal to a
// fetch round.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// entry is the envelope persisted in the store
type entry struct {
	Payload   []byte        `json:"payload"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// RequestCache is a read-through cache of raw provider responses keyed by
// source name and request parameters
type RequestCache struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a RequestCache
type Option func(*RequestCache)

// WithClock overrides the time source used for expiry
func WithClock(now func() time.Time) Option {
	return func(c *RequestCache) { c.now = now }
}

// WithLogger sets the logger for non-fatal cache failures
func WithLogger(l *slog.Logger) Option {
	return func(c *RequestCache) { c.logger = l }
}

// WithDefaultTTL overrides the 24h default
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *RequestCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New creates a request cache on top of store
func New(store Store, opts ...Option) *RequestCache {
	c := &RequestCache{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the stable content address for a source and parameter set
func Key(source string, params models.Params) (string, error) {
	canonical, err := params.Canonical()
	if err != nil {
		return "", fmt.Errorf("failed to derive cache key: %w", err)
	}
	sum := sha256.Sum256([]byte(source + "\x00" + canonical))
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the cached payload for source/params. Misses, expired
// entries and unreadable entries all report hit=false; the error is
// returned for observability only.
func (c *RequestCache) Get(ctx context.Context, source string, params models.Params) ([]byte, bool, error) {
	if c == nil || c.store == nil {
		return nil, false, nil
	}

	key, err := Key(source, params)
	if err != nil {
		return nil, false, &CacheError{Op: "get", Key: source, Err: err}
	}

	e, found, err := c.read(ctx, key)
	if err != nil {
		c.logger.Warn("Cache read failed, treating as miss", "source", source, "key", key, "error", err)
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	if e.expired(c.now()) {
		c.logger.Debug("Cache entry expired", "source", source, "key", key, "created_at", e.CreatedAt)
		return nil, false, nil
	}

	return e.Payload, true, nil
}

// Put stores payload under source/params. A fresh entry already present
// for the key is left untouched. ttl <= 0 uses the default. Failures are
// logged and returned but must not fail the caller.
func (c *RequestCache) Put(ctx context.Context, source string, params models.Params, payload []byte, ttl time.Duration) error {
	if c == nil || c.store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	key, err := Key(source, params)
	if err != nil {
		return &CacheError{Op: "put", Key: source, Err: err}
	}

	now := c.now()
	if existing, found, err := c.read(ctx, key); err == nil && found && !existing.expired(now) {
		return nil
	}

	blob, err := json.Marshal(entry{Payload: payload, CreatedAt: now, TTL: ttl})
	if err != nil {
		cerr := &CacheError{Op: "put", Key: key, Err: err}
		c.logger.Warn("Cache write failed", "source", source, "error", cerr)
		return cerr
	}

	if err := c.store.Put(ctx, key, blob, ttl); err != nil {
		cerr := &CacheError{Op: "put", Key: key, Err: err}
		c.logger.Warn("Cache write failed", "source", source, "error", cerr)
		return cerr
	}

	c.logger.Debug("Cached provider response", "source", source, "key", key, "bytes", len(payload), "ttl", ttl)
	return nil
}

func (c *RequestCache) read(ctx context.Context, key string) (*entry, bool, error) {
	blob, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, &CacheError{Op: "get", Key: key, Err: err}
	}
	if !found {
		return nil, false, nil
	}

	var e entry
	if err := json.Unmarshal(blob, &e); err != nil {
		return nil, false, &CacheError{Op: "get", Key: key, Err: fmt.Errorf("corrupted entry: %w", err)}
	}
	return &e, true, nil
}
