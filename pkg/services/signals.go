package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// stopKey is the process-wide job signal: set by a worker that found no work,
// cleared by the ingress when new work is enqueued.
const stopKey = "STOP"

// JobSignal is the shared stop flag between ingress and workers.
type JobSignal interface {
	SetStop(ctx context.Context) error
	ClearStop(ctx context.Context) error
	Stopped(ctx context.Context) (bool, error)
}

type redisJobSignal struct {
	client *redis.Client
}

// NewJobSignal creates the Redis-backed job signal.
func NewJobSignal(client *redis.Client) JobSignal {
	return &redisJobSignal{client: client}
}

var _ JobSignal = (*redisJobSignal)(nil)

func (s *redisJobSignal) SetStop(ctx context.Context) error {
	if err := s.client.Set(ctx, stopKey, "", 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", stopKey, err)
	}
	return nil
}

func (s *redisJobSignal) ClearStop(ctx context.Context) error {
	if err := s.client.Del(ctx, stopKey).Err(); err != nil {
		return fmt.Errorf("failed to clear %s: %w", stopKey, err)
	}
	return nil
}

func (s *redisJobSignal) Stopped(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, stopKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", stopKey, err)
	}
	return n > 0, nil
}
