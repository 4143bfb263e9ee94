package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"livesync/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	instanceLockKey    = "livesync:orchestrator:lock"
	instanceLockTTL    = 30 * time.Second
	lockAcquireTimeout = 5 * time.Second
	lockRenewInterval  = 10 * time.Second
	releaseLockScript  = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	renewLockScript    = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`
)

// InstanceLock marks this process as the only orchestrator serving the pool.
// The worker pool is in-memory, so two orchestrators sharing one set of
// workers would hand the same slot out twice.
type InstanceLock struct {
	client    *redis.Client
	key       string
	value     string
	ttl       time.Duration
	renewEach time.Duration

	mu        sync.Mutex
	held      bool
	stopRenew chan struct{}
}

// NewInstanceLock creates the lock. An empty key uses the default.
func NewInstanceLock(client *redis.Client, key string) *InstanceLock {
	if key == "" {
		key = instanceLockKey
	}
	return &InstanceLock{
		client:    client,
		key:       key,
		value:     uuid.NewString(),
		ttl:       instanceLockTTL,
		renewEach: lockRenewInterval,
	}
}

// TryLock acquires the lock and keeps renewing it until Unlock.
// Returns false when another instance holds it.
func (l *InstanceLock) TryLock(ctx context.Context) (bool, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	if !acquired {
		return false, nil
	}

	l.mu.Lock()
	l.held = true
	l.stopRenew = make(chan struct{})
	stop := l.stopRenew
	l.mu.Unlock()

	go l.renew(stop)
	logger.InfoCtx(ctx, "instance lock %s acquired", l.key)
	return true, nil
}

// Unlock stops renewal and deletes the key if this instance still owns it
func (l *InstanceLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return nil
	}
	l.held = false
	close(l.stopRenew)
	l.mu.Unlock()

	result, err := l.client.Eval(ctx, releaseLockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release instance lock: %w", err)
	}
	if result == 0 {
		logger.WarnCtx(ctx, "instance lock %s was already lost", l.key)
	}
	return nil
}

// IsHeld reports whether the lock is currently held
func (l *InstanceLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *InstanceLock) renew(stop chan struct{}) {
	ticker := time.NewTicker(l.renewEach)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			result, err := l.client.Eval(ctx, renewLockScript, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
			if err != nil {
				logger.WarnCtx(ctx, "failed to renew instance lock: %v", err)
				continue
			}
			if result == 0 {
				logger.ErrorCtx(ctx, "instance lock %s lost to another process", l.key)
				l.mu.Lock()
				if l.held {
					l.held = false
					close(l.stopRenew)
				}
				l.mu.Unlock()
				return
			}
		}
	}
}
