package cache

import (
	"context"
	"fmt"
	"strconv"
	"task_tracker/internal/config"
	"time"

	"github.com/go-redis/redis/v8"
)

func SetupRedis(redisCfg *config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%s", redisCfg.Host, redisCfg.Port)

	dbNumber, err := strconv.Atoi(redisCfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis DB number %q: %w", redisCfg.RedisDB, err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: redisCfg.RedisPassword,
		DB:       dbNumber,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to Redis at %s: %w", addr, err)
	}

	return rdb, nil
}
