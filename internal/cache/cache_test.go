package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"flightsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// failingStore errors on every call
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (failingStore) Put(context.Context, string, []byte, time.Duration) error {
	return errors.New("disk on fire")
}

func newTestCache(store Store) (*RequestCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 22, 6, 0, 0, 0, time.UTC)}
	return New(store, WithClock(clock.Now)), clock
}

func TestKey_StableAcrossParamOrder(t *testing.T) {
	a, err := Key("aviation_stack", models.Params{"dep_iata": "TTT", "arr_iata": "KYD"})
	require.NoError(t, err)
	b, err := Key("aviation_stack", models.Params{"arr_iata": "KYD", "dep_iata": "TTT"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	other, err := Key("daily_air", models.Params{"dep_iata": "TTT", "arr_iata": "KYD"})
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	_, err = Key("x", models.Params{"bad": []string{"a"}})
	assert.Error(t, err)
}

func TestRequestCache_RoundTrip(t *testing.T) {
	c, clock := newTestCache(NewMemoryStore())
	ctx := context.Background()
	params := models.Params{"flight_date": "2025-03-22"}

	_, hit, err := c.Get(ctx, "daily_air", params)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Put(ctx, "daily_air", params, []byte(`{"rows":[]}`), time.Hour))

	payload, hit, err := c.Get(ctx, "daily_air", params)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte(`{"rows":[]}`), payload)

	clock.Advance(time.Hour)
	_, hit, _ = c.Get(ctx, "daily_air", params)
	assert.True(t, hit, "entry exactly ttl old is still fresh")

	clock.Advance(time.Second)
	_, hit, err = c.Get(ctx, "daily_air", params)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRequestCache_DefaultTTL(t *testing.T) {
	c, clock := newTestCache(NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "s", nil, []byte("x"), 0))

	clock.Advance(23 * time.Hour)
	_, hit, _ := c.Get(ctx, "s", nil)
	assert.True(t, hit)

	clock.Advance(2 * time.Hour)
	_, hit, _ = c.Get(ctx, "s", nil)
	assert.False(t, hit)
}

func TestRequestCache_WriteOnceWhileFresh(t *testing.T) {
	c, clock := newTestCache(NewMemoryStore())
	ctx := context.Background()
	params := models.Params{"q": 1}

	require.NoError(t, c.Put(ctx, "s", params, []byte("first"), time.Hour))
	require.NoError(t, c.Put(ctx, "s", params, []byte("second"), time.Hour))

	payload, hit, _ := c.Get(ctx, "s", params)
	require.True(t, hit)
	assert.Equal(t, []byte("first"), payload)

	// After expiry the entry can be replaced
	clock.Advance(2 * time.Hour)
	require.NoError(t, c.Put(ctx, "s", params, []byte("third"), time.Hour))
	payload, hit, _ = c.Get(ctx, "s", params)
	require.True(t, hit)
	assert.Equal(t, []byte("third"), payload)
}

func TestRequestCache_CorruptedEntryIsMiss(t *testing.T) {
	store := NewMemoryStore()
	c, _ := newTestCache(store)
	ctx := context.Background()

	key, err := Key("s", nil)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, key, []byte("not json"), time.Hour))

	_, hit, err := c.Get(ctx, "s", nil)
	assert.False(t, hit)

	var cerr *CacheError
	assert.ErrorAs(t, err, &cerr)

	// A corrupted entry gets overwritten on the next successful fetch
	require.NoError(t, c.Put(ctx, "s", nil, []byte("fresh"), time.Hour))
	payload, hit, _ := c.Get(ctx, "s", nil)
	assert.True(t, hit)
	assert.Equal(t, []byte("fresh"), payload)
}

func TestRequestCache_StoreFailuresAreNonFatal(t *testing.T) {
	c, _ := newTestCache(failingStore{})
	ctx := context.Background()

	_, hit, err := c.Get(ctx, "s", nil)
	assert.False(t, hit)
	assert.Error(t, err)

	err = c.Put(ctx, "s", nil, []byte("x"), time.Hour)
	var cerr *CacheError
	assert.ErrorAs(t, err, &cerr)
}

func TestRequestCache_NilIsDisabled(t *testing.T) {
	var c *RequestCache
	_, hit, err := c.Get(context.Background(), "s", nil)
	assert.False(t, hit)
	assert.NoError(t, err)
	assert.NoError(t, c.Put(context.Background(), "s", nil, []byte("x"), time.Hour))
}

func TestRequestCache_ConcurrentWriters(t *testing.T) {
	store := NewMemoryStore()
	c, _ := newTestCache(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Put(ctx, "s", models.Params{"route": i % 4}, []byte("payload"), time.Hour)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, store.Len())
	for i := 0; i < 4; i++ {
		payload, hit, err := c.Get(ctx, "s", models.Params{"route": i})
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, []byte("payload"), payload)
	}
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "abc", []byte("one"), time.Hour))
	require.NoError(t, store.Put(ctx, "abc", []byte("two"), time.Hour))

	blob, found, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("two"), blob)

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = NewFileStore("")
	assert.Error(t, err)
}

func TestFileStore_WithRequestCache(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	c, clock := newTestCache(store)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "aviation_stack", models.Params{"flight_date": "2025-03-22"}, []byte(`{"data":[]}`), time.Hour))

	payload, hit, err := c.Get(ctx, "aviation_stack", models.Params{"flight_date": "2025-03-22"})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, `{"data":[]}`, string(payload))

	clock.Advance(61 * time.Minute)
	_, hit, _ = c.Get(ctx, "aviation_stack", models.Params{"flight_date": "2025-03-22"})
	assert.False(t, hit)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("FLIGHTSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FLIGHTSYNC_TEST_REDIS_ADDR not set")
	}

	store, err := NewRedisStore(RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := "test-" + time.Now().Format("150405.000000000")

	_, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, key, []byte("blob"), time.Minute))
	blob, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("blob"), blob)
}
