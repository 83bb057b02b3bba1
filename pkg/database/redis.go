package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alligator-inc/alligator-engine/pkg/config"
)

// NewRedisClient creates a client on the job-signal database. The only key the
// engine uses there is STOP.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Endpoint,
		Password: cfg.Password,
		DB:       cfg.JobDB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
