package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"livesync/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	poolStatusKey     = "livesync:pool:status"  // Latest pool snapshot
	poolWorkersKey    = "livesync:pool:workers" // Hash slot id -> slot status
	poolEventsChannel = "livesync:pool:events"  // Snapshot fan-out for dashboards
	poolStatusTTL     = 5 * time.Minute
)

// StatusRepository mirrors pool status snapshots to Redis for external
// dashboards. Nothing is read back on startup.
type StatusRepository struct {
	redis *redis.Client
}

// NewStatusRepository creates the status mirror
func NewStatusRepository(redisClient *RedisClient) *StatusRepository {
	return &StatusRepository{
		redis: redisClient.GetClient(),
	}
}

// Save stores the snapshot with a TTL and publishes it
func (r *StatusRepository) Save(ctx context.Context, status model.PoolStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal pool status: %w", err)
	}

	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, poolStatusKey, data, poolStatusTTL)
	pipe.Del(ctx, poolWorkersKey)
	if len(status.Workers) > 0 {
		fields := make([]interface{}, 0, len(status.Workers)*2)
		for _, w := range status.Workers {
			fields = append(fields, w.ID, string(w.Status))
		}
		pipe.HSet(ctx, poolWorkersKey, fields...)
		pipe.Expire(ctx, poolWorkersKey, poolStatusTTL)
	}
	pipe.Publish(ctx, poolEventsChannel, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save pool status: %w", err)
	}
	return nil
}

// Get returns the last mirrored snapshot
func (r *StatusRepository) Get(ctx context.Context) (*model.PoolStatus, error) {
	data, err := r.redis.Get(ctx, poolStatusKey).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("pool status not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool status: %w", err)
	}

	var status model.PoolStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pool status: %w", err)
	}
	return &status, nil
}

// Subscribe listens for published snapshots
func (r *StatusRepository) Subscribe(ctx context.Context) *redis.PubSub {
	return r.redis.Subscribe(ctx, poolEventsChannel)
}
