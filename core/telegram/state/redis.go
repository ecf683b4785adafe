package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "eventbot:session:"

type redisManager struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisManager stores sessions as JSON values whose TTL is refreshed on
// every Save, so abandoned conversations expire without a sweeper.
func NewRedisManager(client *redis.Client, ttl time.Duration) Manager {
	return &redisManager{client: client, ttl: ttl, now: time.Now}
}

// NewRedisClient parses url, configures the pool, and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func sessionKey(userID int64) string {
	return redisKeyPrefix + strconv.FormatInt(userID, 10)
}

func (m *redisManager) Get(ctx context.Context, userID int64) (*Session, error) {
	raw, err := m.client.Get(ctx, sessionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return NewSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return sess.Clone(), nil
}

func (m *redisManager) Save(ctx context.Context, userID int64, s *Session) error {
	stored := s.Clone()
	stored.UpdatedAt = m.now().UTC()
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	if err := m.client.Set(ctx, sessionKey(userID), string(payload), m.ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

func (m *redisManager) Clear(ctx context.Context, userID int64) error {
	if err := m.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

func (m *redisManager) GetState(ctx context.Context, userID int64) (State, error) {
	sess, err := m.Get(ctx, userID)
	if err != nil {
		return StateIdle, err
	}
	return sess.State, nil
}

// Sweep is a no-op: Redis expires idle keys through their TTL.
func (m *redisManager) Sweep(context.Context, time.Duration) (int, error) {
	return 0, nil
}
