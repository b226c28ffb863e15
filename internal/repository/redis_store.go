package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"DeadManSwitch/pkg/errors"
	redisstore "DeadManSwitch/storage/redis"
)

// RedisStore 记录文档存为一个不过期的字符串键
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.RecordNotFound
		}
		return nil, fmt.Errorf("failed to get record from redis: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, doc []byte) error {
	if err := s.client.Set(ctx, s.redisKey(key), doc, 0).Err(); err != nil {
		return fmt.Errorf("failed to set record in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) redisKey(key string) string {
	return redisstore.KeyWithPrefix(s.prefix, "record", key)
}
