package push

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSource reads envelopes from a Redis pub/sub channel.
type RedisSource struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisSource creates a source over rdb.
func NewRedisSource(rdb *redis.Client, channel string, logger *zap.Logger) *RedisSource {
	return &RedisSource{rdb: rdb, channel: channel, logger: logger}
}

func (s *RedisSource) Run(ctx context.Context, h Handler) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reading messages.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("push source subscribed", zap.String("driver", "redis"), zap.String("channel", s.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			p, err := DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				s.logger.Warn("dropping push message", zap.String("driver", "redis"), zap.Error(err))
				continue
			}
			h(p)
		}
	}
}

func (s *RedisSource) Close() error {
	return s.rdb.Close()
}
