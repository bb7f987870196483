package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeadershipTTL = 45 * time.Second

	leaderRetryDelay  = time.Second
	leaderCallTimeout = 5 * time.Second
)

var errLeaseLost = errors.New("lease lost")

var leaseCounter atomic.Uint64

// Renewal and release both check the stored value first, so a stale holder
// cannot extend or delete a lock someone else has since acquired.
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// RunWithLeader elects this process via a redis SetNX lock and calls run
// while the lock is held. The context passed to run is cancelled when the
// lease cannot be renewed, so a partitioned leader steps down before a new
// one takes over. Lost leadership is retried; only the parent context ends
// the loop.
func RunWithLeader(ctx context.Context, key string, ttl time.Duration, run func(context.Context)) error {
	if run == nil {
		return errors.New("support: leader run function cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}

	client, err := GetRedisClient()
	if err != nil {
		return fmt.Errorf("support: leader lock redis client: %w", err)
	}

	l := &lease{client: client, key: key, ttl: ttl}
	for {
		if err := l.acquire(ctx); err != nil {
			return err
		}

		log.Debug("leader lock: acquired", "key", key)
		leadCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			l.keepRenewed(leadCtx, cancel)
		}()

		run(leadCtx)
		cancel()
		<-done
		l.release()
		log.Debug("leader lock: released", "key", key)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(leaderRetryDelay):
		}
	}
}

type lease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	value  string
}

// acquire spins on SetNX until the lock is taken or ctx is done.
func (l *lease) acquire(ctx context.Context) error {
	l.value = leaseID()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			log.Warn("leader lock: setnx failed", "key", l.key, "error", err)
		}
		if err == nil && ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(leaderRetryDelay):
		}
	}
}

// keepRenewed extends the lease at a third of its TTL and cancels the
// leadership context the moment an extension fails.
func (l *lease) keepRenewed(ctx context.Context, cancel context.CancelFunc) {
	interval := l.ttl / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.renew(); err != nil {
				log.Warn("leader lock: renewal failed", "key", l.key, "error", err)
				cancel()
				return
			}
		}
	}
}

func (l *lease) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), leaderCallTimeout)
	defer cancel()

	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if extended, ok := res.(int64); ok && extended == 0 {
		return errLeaseLost
	}
	return nil
}

func (l *lease) release() {
	ctx, cancel := context.WithTimeout(context.Background(), leaderCallTimeout)
	defer cancel()

	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Warn("leader lock: release failed", "key", l.key, "error", err)
	}
}

func leaseID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d-%d", host, os.Getpid(), time.Now().UnixNano(), leaseCounter.Add(1))
}
