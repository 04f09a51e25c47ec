package throttle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{
	MaxAttempts:  3,
	Window:       time.Minute,
	LockDuration: 5 * time.Minute,
}

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newMemoryWithClock() (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemory(testPolicy)
	m.now = clock.now
	return m, clock
}

func TestMemoryLocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	m, _ := newMemoryWithClock()

	for want := 2; want >= 0; want-- {
		retry, err := m.Check(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.Zero(t, retry)

		remaining, err := m.RecordFailure(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, want, remaining)
	}

	retry, err := m.Check(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, retry)

	// 他のキーには影響しない
	retry, err = m.Check(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.Zero(t, retry)
}

func TestMemoryLockExpires(t *testing.T) {
	ctx := context.Background()
	m, clock := newMemoryWithClock()

	for i := 0; i < testPolicy.MaxAttempts; i++ {
		_, err := m.RecordFailure(ctx, "ip")
		require.NoError(t, err)
	}
	clock.advance(testPolicy.LockDuration)

	retry, err := m.Check(ctx, "ip")
	require.NoError(t, err)
	assert.Zero(t, retry)

	remaining, err := m.RecordFailure(ctx, "ip")
	require.NoError(t, err)
	assert.Equal(t, testPolicy.MaxAttempts-1, remaining)
}

func TestMemoryWindowResetsCount(t *testing.T) {
	ctx := context.Background()
	m, clock := newMemoryWithClock()

	_, err := m.RecordFailure(ctx, "ip")
	require.NoError(t, err)
	_, err = m.RecordFailure(ctx, "ip")
	require.NoError(t, err)

	clock.advance(testPolicy.Window + time.Second)

	remaining, err := m.RecordFailure(ctx, "ip")
	require.NoError(t, err)
	assert.Equal(t, testPolicy.MaxAttempts-1, remaining)
}

func TestMemoryReset(t *testing.T) {
	ctx := context.Background()
	m, _ := newMemoryWithClock()

	for i := 0; i < testPolicy.MaxAttempts; i++ {
		_, err := m.RecordFailure(ctx, "ip")
		require.NoError(t, err)
	}
	require.NoError(t, m.Reset(ctx, "ip"))

	retry, err := m.Check(ctx, "ip")
	require.NoError(t, err)
	assert.Zero(t, retry)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL is not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	store := NewRedisStore(rdb, testPolicy)
	key := "test-" + uuid.NewString()
	t.Cleanup(func() { _ = store.Reset(ctx, key) })

	for want := 2; want >= 0; want-- {
		remaining, err := store.RecordFailure(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, remaining)
	}

	retry, err := store.Check(ctx, key)
	require.NoError(t, err)
	assert.Positive(t, retry)

	ttl, err := rdb.TTL(ctx, attemptKey(key)).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, testPolicy.ttl())

	require.NoError(t, store.Reset(ctx, key))
	retry, err = store.Check(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, retry)
}
