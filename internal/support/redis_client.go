package support

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const defaultRedisURL = "redis://localhost:6379"

var (
	redisMu sync.Mutex
	shared  *redis.Client
)

// GetRedisClient returns the process-wide redis client, dialing it on first
// use from REDIS_URL. The relay, the writer and the leadership lock all share
// one connection pool.
func GetRedisClient() (*redis.Client, error) {
	redisMu.Lock()
	defer redisMu.Unlock()

	if shared != nil {
		return shared, nil
	}

	url := GetEnv("REDIS_URL", defaultRedisURL)
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url %q: %w", url, err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	shared = client
	return shared, nil
}

// CloseRedisClient tears the shared client down. The next GetRedisClient
// dials again.
func CloseRedisClient() error {
	redisMu.Lock()
	defer redisMu.Unlock()

	if shared == nil {
		return nil
	}
	err := shared.Close()
	shared = nil
	return err
}
