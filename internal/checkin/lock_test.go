package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	token, ok, err := l.TryLock(ctx, "cycle", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = l.TryLock(ctx, "cycle", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second lock must be rejected while held")

	_, ok, _ = l.TryLock(ctx, "other", time.Minute)
	assert.True(t, ok, "locks are per key")

	require.NoError(t, l.Unlock(ctx, "cycle", token))
	_, ok, _ = l.TryLock(ctx, "cycle", time.Minute)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = l.TryLock(ctx, "other", time.Minute)
	assert.True(t, ok, "expired lock is treated as released")
}

func TestLocalLockerExpiredHolderCannotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	slow, ok, err := l.TryLock(ctx, "cycle", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	fresh, ok, err := l.TryLock(ctx, "cycle", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, slow, fresh)

	// 旧持有者释放时不能删掉新持有者的锁
	require.NoError(t, l.Unlock(ctx, "cycle", slow))
	_, ok, _ = l.TryLock(ctx, "cycle", time.Minute)
	assert.False(t, ok, "lock must still belong to the second holder")

	require.NoError(t, l.Unlock(ctx, "cycle", fresh))
	_, ok, _ = l.TryLock(ctx, "cycle", time.Minute)
	assert.True(t, ok)
}

func TestLocalLockerUnlockUnknownToken(t *testing.T) {
	l := NewLocalLocker()
	assert.NoError(t, l.Unlock(context.Background(), "never", "nope"))
}
