package push

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Drivers.
const (
	DriverNone      = ""
	DriverRedis     = "redis"
	DriverKafka     = "kafka"
	DriverWebSocket = "websocket"
)

// Options selects and configures a driver.
type Options struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	Channel       string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	WebSocketURL  string
}

// Open builds the source for opts.Driver. It returns nil for DriverNone.
func Open(opts Options, logger *zap.Logger) (Source, error) {
	switch opts.Driver {
	case DriverNone:
		return nil, nil
	case DriverRedis:
		if opts.RedisAddr == "" || opts.Channel == "" {
			return nil, fmt.Errorf("redis push source needs an address and a channel")
		}
		rdb := redis.NewClient(&redis.Options{Addr: opts.RedisAddr, Password: opts.RedisPassword})
		return NewRedisSource(rdb, opts.Channel, logger), nil
	case DriverKafka:
		if len(opts.KafkaBrokers) == 0 || opts.KafkaTopic == "" {
			return nil, fmt.Errorf("kafka push source needs brokers and a topic")
		}
		return NewKafkaSource(opts.KafkaBrokers, opts.KafkaTopic, opts.KafkaGroup, logger), nil
	case DriverWebSocket:
		if opts.WebSocketURL == "" {
			return nil, fmt.Errorf("websocket push source needs a url")
		}
		return NewWebSocketSource(opts.WebSocketURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown push driver %q", opts.Driver)
	}
}
