package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrohitth/data-observability-platform/internal/config"
	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/types"
)

// AlertBus fans fired alerts out to downstream consumers. Implementations
// must tolerate concurrent publishers.
type AlertBus interface {
	Publish(ctx context.Context, a *types.Alert) error
	Close() error
}

// RedisBus publishes alerts as JSON on a Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

func NewRedisBus(cfg config.NotifierConfig, baseLog *logger.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return &RedisBus{
		client:  client,
		channel: cfg.Channel,
		log:     baseLog.With("service", "RedisBus"),
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, a *types.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	b.log.Debug("Alert published", "channel", b.channel, "alert_type", a.AlertType)
	return nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
