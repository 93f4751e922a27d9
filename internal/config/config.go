package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matheus3301/comet/internal/transport"
)

// Config represents the global ~/.comet/config.toml.
type Config struct {
	DefaultProfile string    `toml:"default_profile"`
	Transport      Transport `toml:"transport"`
	SMS            SMS       `toml:"sms"`
	Bluetooth      Bluetooth `toml:"bluetooth"`
	Push           Push      `toml:"push"`
	History        History   `toml:"history"`
	Actions        Actions   `toml:"actions"`
	Webhook        Webhook   `toml:"webhook"`
	Token          Token     `toml:"token"`
}

type Transport struct {
	Mode     string `toml:"mode"`
	Fallback string `toml:"fallback"`
}

type SMS struct {
	GatewayURL      string   `toml:"gateway_url"`
	Token           string   `toml:"token"`
	Sender          string   `toml:"sender"`
	RatePerMinute   int      `toml:"rate_per_minute"`
	Timeout         Duration `toml:"timeout"`
	BreakerFailures uint32   `toml:"breaker_failures"`
}

type Bluetooth struct {
	Adapter        string   `toml:"adapter"`
	ServiceUUID    string   `toml:"service_uuid"`
	Channel        uint8    `toml:"channel"`
	ConnectTimeout Duration `toml:"connect_timeout"`
	StateDir       string   `toml:"state_dir"`
}

type Push struct {
	Driver        string   `toml:"driver"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	Channel       string   `toml:"channel"`
	KafkaBrokers  []string `toml:"kafka_brokers"`
	KafkaTopic    string   `toml:"kafka_topic"`
	KafkaGroup    string   `toml:"kafka_group"`
	WebSocketURL  string   `toml:"websocket_url"`
}

type History struct {
	Max int `toml:"max"`
}

type Actions struct {
	Enabled     bool   `toml:"enabled"`
	MapsCommand string `toml:"maps_command"`
}

type Webhook struct {
	Listen string `toml:"listen"`
	Secret string `toml:"secret"`
}

type Token struct {
	ProjectID      string `toml:"project_id"`
	PublicKeysFile string `toml:"public_keys_file"`
}

// Duration is a time.Duration written as a string like "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Transport:      Transport{Mode: string(transport.ModeAuto)},
		SMS: SMS{
			RatePerMinute:   30,
			Timeout:         Duration{10 * time.Second},
			BreakerFailures: 3,
		},
		Bluetooth: Bluetooth{
			Adapter:        "hci0",
			ServiceUUID:    "00001101-0000-1000-8000-00805F9B34FB",
			Channel:        1,
			ConnectTimeout: Duration{5 * time.Second},
			StateDir:       "/var/lib/bluetooth",
		},
		History: History{Max: 10},
		Actions: Actions{Enabled: true},
	}
}

// Load reads config from path over the defaults. Returns an error if the
// file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Environment variables that override secrets from the file.
const (
	EnvSMSToken      = "COMET_SMS_TOKEN"
	EnvRedisPassword = "COMET_REDIS_PASSWORD"
	EnvWebhookSecret = "COMET_WEBHOOK_SECRET"
)

// ApplyEnv overrides secrets with non-empty environment values.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvSMSToken); v != "" {
		c.SMS.Token = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Push.RedisPassword = v
	}
	if v := os.Getenv(EnvWebhookSecret); v != "" {
		c.Webhook.Secret = v
	}
}

var pushDrivers = map[string]bool{"": true, "redis": true, "kafka": true, "websocket": true}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := c.TransportConfig(); err != nil {
		return err
	}
	if !pushDrivers[c.Push.Driver] {
		return fmt.Errorf("unknown push driver %q", c.Push.Driver)
	}
	if c.History.Max < 1 {
		return fmt.Errorf("history.max must be positive, got %d", c.History.Max)
	}
	if c.SMS.RatePerMinute < 0 {
		return fmt.Errorf("sms.rate_per_minute must not be negative")
	}
	if c.Bluetooth.Channel < 1 || c.Bluetooth.Channel > 30 {
		return fmt.Errorf("bluetooth.channel must be between 1 and 30, got %d", c.Bluetooth.Channel)
	}
	return nil
}

// TransportConfig parses the [transport] section.
func (c *Config) TransportConfig() (transport.Config, error) {
	mode, err := transport.ParseMode(c.Transport.Mode)
	if err != nil {
		return transport.Config{}, err
	}
	fallback, err := transport.ParseKind(c.Transport.Fallback)
	if err != nil {
		return transport.Config{}, err
	}
	return transport.Config{Mode: mode, Fallback: fallback}, nil
}
