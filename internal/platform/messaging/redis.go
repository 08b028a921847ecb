package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rudefriend/contexts/community-board/board-service/ports"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher fans board events out over Redis Pub/Sub, one channel per
// event type.
type RedisPublisher struct {
	client *redis.Client
	pub    channelPublisher
	prefix string
	logger *slog.Logger
}

func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("redis publisher connected",
		"event", "redis_publisher_connected",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"addr", cfg.Addr,
		"db", cfg.DB,
	)
	return &RedisPublisher{
		client: client,
		pub:    client,
		prefix: cfg.ChannelPrefix,
		logger: logger,
	}, nil
}

// Channel maps an event type to its Pub/Sub channel name.
func (p *RedisPublisher) Channel(topic string) string {
	prefix := strings.TrimSuffix(strings.TrimSpace(p.prefix), ".")
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}

// Publish returns the Redis error so the outbox row stays pending and is
// retried on the next relay cycle.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.EventID, err)
	}
	channel := p.Channel(topic)
	receivers, err := p.pub.Publish(ctx, channel, payload).Result()
	if err != nil {
		p.logger.Warn("redis publish failed",
			"event", "redis_publish_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"channel", channel,
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	p.logger.Debug("event published",
		"event", "redis_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"channel", channel,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"receivers", receivers,
	)
	return nil
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
