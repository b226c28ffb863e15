package checkin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type localHold struct {
	token   string
	expires time.Time
}

// LocalLocker 进程内互斥锁，未配置 Redis 时使用，仅保证单实例内串行
type LocalLocker struct {
	mu      sync.Mutex
	holders map[string]localHold
	now     func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		holders: make(map[string]localHold),
		now:     time.Now,
	}
}

// TryLock 获取锁，过期的锁视为已释放；返回的 token 用于释放
func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, held := l.holders[key]; held && now.Before(h.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.holders[key] = localHold{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Unlock 只释放 token 对应的那次持有
func (l *LocalLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, held := l.holders[key]; held && h.token == token {
		delete(l.holders, key)
	}
	return nil
}
