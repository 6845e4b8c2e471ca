package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// RedisStore persists records as JSON values under run:<id> and
// automation:<id>.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", addr).Int("db", db).Msg("Connected to Redis")
	return &RedisStore{client: client}, nil
}

// Close releases the client's connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetRun(ctx context.Context, userID, runID string) (*types.Run, error) {
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	if run.UserID != userID {
		return nil, types.ErrForbidden
	}
	return &run, nil
}

func (s *RedisStore) UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus) error {
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}

	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return fmt.Errorf("decode run %s: %w", runID, err)
	}
	if run.Status.IsTerminal() {
		return types.ErrRunTerminal
	}

	run.Status = status
	return s.writeRun(ctx, &run)
}

func (s *RedisStore) SaveRunResult(ctx context.Context, run *types.Run) error {
	return s.writeRun(ctx, run)
}

func (s *RedisStore) writeRun(ctx context.Context, run *types.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	if err := s.client.Set(ctx, runKey(run.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("set run %s: %w", run.ID, err)
	}
	return nil
}

func (s *RedisStore) SaveAutomation(ctx context.Context, automation *types.Automation) error {
	data, err := json.Marshal(automation)
	if err != nil {
		return fmt.Errorf("encode automation %s: %w", automation.ID, err)
	}
	if err := s.client.Set(ctx, automationKey(automation.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("set automation %s: %w", automation.ID, err)
	}
	return nil
}

func (s *RedisStore) GetAutomation(ctx context.Context, userID, automationID string) (*types.Automation, error) {
	data, err := s.client.Get(ctx, automationKey(automationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrAutomationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get automation %s: %w", automationID, err)
	}

	var automation types.Automation
	if err := json.Unmarshal(data, &automation); err != nil {
		return nil, fmt.Errorf("decode automation %s: %w", automationID, err)
	}
	if automation.UserID != userID {
		return nil, types.ErrForbidden
	}
	return &automation, nil
}
