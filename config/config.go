package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when no path is given.
const DefaultPath = "config/config.yml"

// Feed sources understood by the reader package.
const (
	SourceWebsocket = "websocket"
	SourceNATS      = "nats"
	SourceKafka     = "kafka"
	SourceRedis     = "redis"
	SourceBinance   = "binance"
	SourceSynthetic = "synthetic"
)

type Config struct {
	Heatflow  HeatflowConfig  `yaml:"heatflow"`
	Feed      FeedConfig      `yaml:"feed"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Heatmap   HeatmapConfig   `yaml:"heatmap"`
	Orders    OrdersConfig    `yaml:"orders"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Environment comes from APP_ENV, never from the file.
	Environment Environment `yaml:"-"`
}

type HeatflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	Source         string          `yaml:"source"`
	URL            string          `yaml:"url"`
	ReconnectDelay time.Duration   `yaml:"reconnect_delay"`
	NATS           NATSConfig      `yaml:"nats"`
	Kafka          KafkaConfig     `yaml:"kafka"`
	Redis          RedisConfig     `yaml:"redis"`
	Binance        BinanceConfig   `yaml:"binance"`
	Synthetic      SyntheticConfig `yaml:"synthetic"`
}

type NATSConfig struct {
	URL             string `yaml:"url"`
	SnapshotSubject string `yaml:"snapshot_subject"`
	OrdersSubject   string `yaml:"orders_subject"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type BinanceConfig struct {
	Symbol   string `yaml:"symbol"`
	Levels   int    `yaml:"levels"`
	UpdateMs int    `yaml:"update_ms"`
}

type SyntheticConfig struct {
	Rate      float64 `yaml:"rate"`
	Seed      int64   `yaml:"seed"`
	BasePrice float64 `yaml:"base_price"`
	Depth     int     `yaml:"depth"`
}

type ChannelsConfig struct {
	FeedBuffer    int `yaml:"feed_buffer"`
	GestureBuffer int `yaml:"gesture_buffer"`
}

type HeatmapConfig struct {
	Capacity        int           `yaml:"capacity"`
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type OrdersConfig struct {
	Capacity int `yaml:"capacity"`
}

type DashboardConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Address          string        `yaml:"address"`
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	ResourceInterval time.Duration `yaml:"resource_interval"`
	GesturesPerSec   float64       `yaml:"gestures_per_second"`
	GestureBurst     int           `yaml:"gesture_burst"`
	MetricsRetention int           `yaml:"metrics_retention"`
	LogsRetention    int           `yaml:"logs_retention"`
}

type MetricsConfig struct {
	Address     string           `yaml:"address"`
	ChannelSize bool             `yaml:"channel_size"`
	Render      bool             `yaml:"render"`
	CloudWatch  CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// ResolvePath maps the default configuration path to its APP_ENV specific
// variant (config/config.production.yml, config/config.staging.yml) when
// one exists on disk.
func ResolvePath(path string) string {
	return resolveEnvSpecificPath(path, DefaultPath, CurrentEnvironment(), fileExists)
}

func defaults() Config {
	return Config{
		Feed: FeedConfig{
			Source:         SourceWebsocket,
			URL:            "ws://localhost:8080/ws",
			ReconnectDelay: time.Second,
			NATS: NATSConfig{
				URL:             "nats://127.0.0.1:4222",
				SnapshotSubject: "orderbook.snapshots",
				OrdersSubject:   "orderbook.tbt",
			},
			Kafka:     KafkaConfig{Topic: "orderbook", GroupID: "heatflow"},
			Redis:     RedisConfig{Addr: "localhost:6379", Channel: "orderbook"},
			Binance:   BinanceConfig{Symbol: "BTCUSDT", Levels: 20, UpdateMs: 100},
			Synthetic: SyntheticConfig{Rate: 10, Seed: 42, BasePrice: 100, Depth: 20},
		},
		Channels: ChannelsConfig{FeedBuffer: 1024, GestureBuffer: 64},
		Heatmap: HeatmapConfig{
			Capacity:        500,
			Width:           1200,
			Height:          600,
			RefreshInterval: 16 * time.Millisecond,
		},
		Orders: OrdersConfig{Capacity: 200},
		Dashboard: DashboardConfig{
			Enabled:          true,
			Address:          ":8081",
			RefreshInterval:  100 * time.Millisecond,
			ResourceInterval: 5 * time.Second,
			GesturesPerSec:   120,
			GestureBurst:     240,
			MetricsRetention: 200,
			LogsRetention:    200,
		},
		Metrics: MetricsConfig{
			ChannelSize: true,
			Render:      true,
			CloudWatch:  CloudWatchConfig{Namespace: "Heatflow"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// Default returns the built-in configuration that LoadConfig starts from.
func Default() *Config {
	cfg := defaults()
	return &cfg
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)
	config.Environment = CurrentEnvironment()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("FEED_SOURCE")); v != "" {
		cfg.Feed.Source = v
	}
	if v := strings.TrimSpace(os.Getenv("FEED_URL")); v != "" {
		cfg.Feed.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("NATS_URL")); v != "" {
		cfg.Feed.NATS.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Feed.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Feed.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Feed.Redis.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("DASHBOARD_ADDRESS")); v != "" {
		cfg.Dashboard.Address = v
	}
	if cfg.Metrics.CloudWatch.Enabled {
		if v := strings.TrimSpace(os.Getenv("AWS_REGION")); v != "" && cfg.Metrics.CloudWatch.Region == "" {
			cfg.Metrics.CloudWatch.Region = v
		}
	}
	cfg.Feed.Source = strings.ToLower(strings.TrimSpace(cfg.Feed.Source))
}

func validateConfig(cfg *Config) error {
	if cfg.Heatflow.Name == "" {
		return fmt.Errorf("heatflow.name is required")
	}

	if cfg.Heatflow.Version == "" {
		return fmt.Errorf("heatflow.version is required")
	}

	switch cfg.Feed.Source {
	case SourceWebsocket:
		if cfg.Feed.URL == "" {
			return fmt.Errorf("feed.url is required for the websocket source")
		}
	case SourceNATS:
		if cfg.Feed.NATS.URL == "" {
			return fmt.Errorf("feed.nats.url is required for the nats source")
		}
		if cfg.Feed.NATS.SnapshotSubject == "" && cfg.Feed.NATS.OrdersSubject == "" {
			return fmt.Errorf("feed.nats needs at least one subject")
		}
	case SourceKafka:
		if len(cfg.Feed.Kafka.Brokers) == 0 {
			return fmt.Errorf("feed.kafka.brokers is required for the kafka source")
		}
		if cfg.Feed.Kafka.Topic == "" {
			return fmt.Errorf("feed.kafka.topic is required for the kafka source")
		}
	case SourceRedis:
		if cfg.Feed.Redis.Addr == "" {
			return fmt.Errorf("feed.redis.addr is required for the redis source")
		}
		if cfg.Feed.Redis.Channel == "" {
			return fmt.Errorf("feed.redis.channel is required for the redis source")
		}
	case SourceBinance:
		if cfg.Feed.Binance.Symbol == "" {
			return fmt.Errorf("feed.binance.symbol is required for the binance source")
		}
		switch cfg.Feed.Binance.Levels {
		case 5, 10, 20:
		default:
			return fmt.Errorf("feed.binance.levels must be 5, 10 or 20")
		}
	case SourceSynthetic:
		if cfg.Feed.Synthetic.Rate <= 0 {
			return fmt.Errorf("feed.synthetic.rate must be greater than 0")
		}
	default:
		return fmt.Errorf("feed.source '%s' is not supported", cfg.Feed.Source)
	}

	if cfg.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed.reconnect_delay must be greater than 0")
	}

	if cfg.Channels.FeedBuffer <= 0 {
		return fmt.Errorf("channels.feed_buffer must be greater than 0")
	}
	if cfg.Channels.GestureBuffer <= 0 {
		return fmt.Errorf("channels.gesture_buffer must be greater than 0")
	}

	if cfg.Heatmap.Capacity <= 0 {
		return fmt.Errorf("heatmap.capacity must be greater than 0")
	}
	if cfg.Heatmap.Width <= 0 || cfg.Heatmap.Height <= 0 {
		return fmt.Errorf("heatmap.width and heatmap.height must be greater than 0")
	}
	if cfg.Heatmap.RefreshInterval <= 0 {
		return fmt.Errorf("heatmap.refresh_interval must be greater than 0")
	}

	if cfg.Orders.Capacity <= 0 {
		return fmt.Errorf("orders.capacity must be greater than 0")
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.Address == "" {
		return fmt.Errorf("dashboard.address is required when the dashboard is enabled")
	}

	if cfg.Environment.ProductionLike() {
		if cfg.Feed.Source == SourceSynthetic {
			return fmt.Errorf("feed.source synthetic is not allowed in %s", cfg.Environment)
		}
		if cfg.Dashboard.Enabled && cfg.Dashboard.GesturesPerSec <= 0 {
			return fmt.Errorf("dashboard.gestures_per_second must be greater than 0 in %s", cfg.Environment)
		}
	}

	return nil
}
