package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisAttemptStore shares failed-login counters across instances. Keys expire
// one window after the most recent failure, which keeps the store self-pruning.
type RedisAttemptStore struct {
	client *redis.Client
	window time.Duration
}

func NewRedisAttemptStore(client *redis.Client, window time.Duration) *RedisAttemptStore {
	if window <= 0 {
		window = 15 * time.Minute
	}

	return &RedisAttemptStore{client: client, window: window}
}

func attemptKey(username string) string {
	return "login_attempts:" + username
}

func (s *RedisAttemptStore) Get(ctx context.Context, username string) (LoginAttempt, bool, error) {
	values, err := s.client.HGetAll(ctx, attemptKey(username)).Result()
	if err != nil {
		return LoginAttempt{}, false, fmt.Errorf("read login attempts: %w", err)
	}
	if len(values) == 0 {
		return LoginAttempt{}, false, nil
	}

	count, err := strconv.Atoi(values["count"])
	if err != nil {
		return LoginAttempt{}, false, fmt.Errorf("parse attempt count: %w", err)
	}
	lastUnix, err := strconv.ParseInt(values["last_failure"], 10, 64)
	if err != nil {
		return LoginAttempt{}, false, fmt.Errorf("parse last failure: %w", err)
	}

	return LoginAttempt{
		Count:       count,
		LastFailure: time.UnixMilli(lastUnix).UTC(),
	}, true, nil
}

func (s *RedisAttemptStore) Record(ctx context.Context, username string, at time.Time) error {
	key := attemptKey(username)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "count", 1)
		pipe.HSet(ctx, key, "last_failure", at.UnixMilli())
		pipe.Expire(ctx, key, s.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}

	return nil
}

func (s *RedisAttemptStore) Clear(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, attemptKey(username)).Err(); err != nil {
		return fmt.Errorf("clear login attempts: %w", err)
	}
	return nil
}
