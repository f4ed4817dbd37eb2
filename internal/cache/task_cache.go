package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const TaskCacheTTL = 5 * time.Minute

// errStale aborts a conditional write whose version has moved on.
var errStale = errors.New("cache version changed")

// Cache stores serialized task reads. Every key is scoped by owner id.
//
// Each owner has a version counter that every invalidation increments. A
// reader takes the version before it queries the store and writes its result
// back with SetIfVersion, so a read that overlapped a committed write is
// never cached.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Version returns the owner's current version, 0 if none was recorded.
	Version(ctx context.Context, userID int) (int64, error)
	// SetIfVersion stores data under key unless the owner's version is no
	// longer version. A skipped write is not an error.
	SetIfVersion(ctx context.Context, userID int, version int64, key string, data interface{}) error
	// Invalidate bumps the owner's version and drops keys.
	Invalidate(ctx context.Context, userID int, keys ...string) error
	// InvalidateUser drops every entry belonging to userID.
	InvalidateUser(ctx context.Context, userID int) error
}

type TaskCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTaskCache(client *redis.Client) *TaskCache {
	return &TaskCache{client: client, ttl: TaskCacheTTL}
}

func (c *TaskCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *TaskCache) Version(ctx context.Context, userID int) (int64, error) {
	return versionOf(c.client.Get(ctx, versionKey(userID)))
}

// SetIfVersion watches the version key, so an Invalidate that lands between
// the check and the write makes EXEC fail and the write is dropped.
func (c *TaskCache) SetIfVersion(ctx context.Context, userID int, version int64, key string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	vk := versionKey(userID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := versionOf(tx.Get(ctx, vk))
		if err != nil {
			return err
		}
		if current != version {
			return errStale
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, jsonData, c.ttl)
			return nil
		})
		return err
	}, vk)

	if errors.Is(err, errStale) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *TaskCache) Invalidate(ctx context.Context, userID int, keys ...string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(userID))
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	return err
}

func (c *TaskCache) InvalidateUser(ctx context.Context, userID int) error {
	keys := []string{UserTasksKey(userID)}

	iter := c.client.Scan(ctx, 0, userTaskPattern(userID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	return c.Invalidate(ctx, userID, keys...)
}

func versionOf(cmd *redis.StringCmd) (int64, error) {
	v, err := cmd.Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// NoopCache is used when no Redis host is configured. Every read misses.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, error) { return nil, nil }

func (NoopCache) Version(context.Context, int) (int64, error) { return 0, nil }

func (NoopCache) SetIfVersion(context.Context, int, int64, string, interface{}) error { return nil }

func (NoopCache) Invalidate(context.Context, int, ...string) error { return nil }

func (NoopCache) InvalidateUser(context.Context, int) error { return nil }

// Build cache key for a single task of one owner
func TaskKey(userID, taskID int) string {
	return fmt.Sprintf("tasks:user:%d:task:%d", userID, taskID)
}

// Build cache key for the task list of one owner
func UserTasksKey(userID int) string {
	return fmt.Sprintf("tasks:user:%d", userID)
}

func versionKey(userID int) string {
	return fmt.Sprintf("tasks:user:%d:version", userID)
}

func userTaskPattern(userID int) string {
	return fmt.Sprintf("tasks:user:%d:task:*", userID)
}
