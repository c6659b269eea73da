// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/scribble/internal/models"
	"github.com/redis/go-redis/v9"
)

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NameCache caches player display names under player:name:<id>.
type NameCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewNameCache(rdb redis.Cmdable, ttl time.Duration) *NameCache {
	return &NameCache{rdb: rdb, ttl: ttl}
}

func nameKey(id uuid.UUID) string {
	return "player:name:" + id.String()
}

// GetNames fetches all ids with one MGET and returns the hits.
func (c *NameCache) GetNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = nameKey(id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to MGET display names: %w", err)
	}
	return decodeNames(ids, vals), nil
}

// decodeNames pairs MGET values with their ids; nil values are misses.
func decodeNames(ids []uuid.UUID, vals []interface{}) map[uuid.UUID]string {
	out := make(map[uuid.UUID]string, len(ids))
	for i, v := range vals {
		if i >= len(ids) {
			break
		}
		if s, ok := v.(string); ok && s != "" {
			out[ids[i]] = s
		}
	}
	return out
}

// SetNames writes names back in a single pipeline.
func (c *NameCache) SetNames(ctx context.Context, names map[uuid.UUID]string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for id, name := range names {
			pipe.Set(ctx, nameKey(id), name, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache display names: %w", err)
	}
	return nil
}

// Evict drops a cached name, e.g. after the player is deleted.
func (c *NameCache) Evict(ctx context.Context, id uuid.UUID) error {
	if err := c.rdb.Del(ctx, nameKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to evict display name: %w", err)
	}
	return nil
}

// EventQueue is a Redis list carrying room events from the server to the archiver.
type EventQueue struct {
	rdb   redis.Cmdable
	queue string
}

func NewEventQueue(rdb redis.Cmdable, queue string) *EventQueue {
	return &EventQueue{rdb: rdb, queue: queue}
}

// Publish serializes ev and pushes it onto the queue.
func (q *EventQueue) Publish(ctx context.Context, ev models.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal RoomEvent: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

// Pop blocks up to timeout for the next event. It returns redis.Nil when the
// queue stayed empty.
func (q *EventQueue) Pop(ctx context.Context, timeout time.Duration) (models.RoomEvent, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.queue).Result()
	if err != nil {
		return models.RoomEvent{}, err
	}
	// res[0] is the queue name and res[1] the payload
	if len(res) < 2 {
		return models.RoomEvent{}, redis.Nil
	}
	var ev models.RoomEvent
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		return models.RoomEvent{}, fmt.Errorf("invalid room event %q: %w", res[1], err)
	}
	return ev, nil
}

// Len reports how many events are waiting in the queue.
func (q *EventQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queue).Result()
}
