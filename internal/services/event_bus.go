package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lingopath/lingopath-backend/internal/logger"
)

// EventMessage is one realtime event fanned out to connected clients.
// Channel is the recipient user id.
type EventMessage struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data,omitempty"`
}

const (
	EventSessionGradingQueued = "session.grading_queued"
	EventSessionCompleted     = "session.completed"
	EventSessionGradingFailed = "session.grading_failed"
	EventEnrollmentSynced     = "enrollment.synced"
)

// EventBus publishes events for delivery elsewhere; the realtime gateway
// that subscribes to the channel lives outside this service.
type EventBus interface {
	Publish(ctx context.Context, msg EventMessage) error
	Close() error
}

type redisEventBus struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
}

func NewRedisEventBus(log *logger.Logger) (EventBus, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "events"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisEventBus{
		log:     log.With("service", "RedisEventBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *redisEventBus) Publish(ctx context.Context, msg EventMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisEventBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
