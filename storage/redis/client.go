package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"DeadManSwitch/config"
	redisotel "DeadManSwitch/pkg/redis"
)

var (
	client *redis.Client
	prefix = "dms"
	once   sync.Once
	err    error
)

func Init(cfg *config.Config) error {
	once.Do(func() {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			MinIdleConns: 1,
			MaxRetries:   3,
		})
		if cfg.RedisPrefix != "" {
			prefix = cfg.RedisPrefix
		}

		if cfg.OTelEnabled {
			client.AddHook(redisotel.NewTracingHook(cfg.ServiceName, cfg.RedisDB))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err = client.Ping(ctx).Err(); err != nil {
			return
		}
	})

	return err
}

func Client() *redis.Client {
	if client == nil {
		panic("Redis client not init")
	}
	return client
}

func Close(ctx context.Context) error {
	if client == nil {
		return nil
	}

	return client.Close()
}

// Key 拼接带前缀的键名：prefix:part1:part2
func Key(parts ...string) string {
	return KeyWithPrefix(prefix, parts...)
}

func KeyWithPrefix(p string, parts ...string) string {
	if p == "" {
		p = "dms"
	}

	var sb strings.Builder
	sb.WriteString(p)
	for _, part := range parts {
		if part != "" {
			sb.WriteString(":")
			sb.WriteString(part)
		}
	}

	return sb.String()
}
