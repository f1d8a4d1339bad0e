// Package config loads engine configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Instruments is the set of symbols the engine builds books for. A
	// feed line for any other symbol is rejected at parse time, so the
	// routing table and the accepted feed can never disagree.
	Instruments []string `mapstructure:"instruments"`

	Engine  EngineConfig  `mapstructure:"engine"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Outbox  OutboxConfig  `mapstructure:"outbox"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type EngineConfig struct {
	MDRingSize           uint64        `mapstructure:"md_ring_size"`
	RequestRingSize      uint64        `mapstructure:"request_ring_size"`
	ResponseRingSize     uint64        `mapstructure:"response_ring_size"`
	MaxPendingMarketData int           `mapstructure:"max_pending_market_data"`
	MaxPendingRequests   int           `mapstructure:"max_pending_requests"`
	MaxWait              time.Duration `mapstructure:"max_wait"`
	PushAttempts         int           `mapstructure:"push_attempts"`
	PushPause            time.Duration `mapstructure:"push_pause"`
}

type IngestConfig struct {
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryPause    time.Duration `mapstructure:"retry_pause"`
}

type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	LinesTopic  string   `mapstructure:"lines_topic"`
	EventsTopic string   `mapstructure:"events_topic"`
	Group       string   `mapstructure:"group"`
}

type OutboxConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Dir             string        `mapstructure:"dir"`
	PublishInterval time.Duration `mapstructure:"publish_interval"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Instruments: []string{"BTCUSD", "ETHUSD", "SOLUSD"},
		Engine: EngineConfig{
			MDRingSize:           1 << 14,
			RequestRingSize:      1 << 12,
			ResponseRingSize:     1 << 12,
			MaxPendingMarketData: 100,
			MaxPendingRequests:   100,
			MaxWait:              20 * time.Microsecond,
			PushAttempts:         3,
			PushPause:            100 * time.Microsecond,
		},
		Ingest: IngestConfig{
			RetryAttempts: 3,
			RetryPause:    100 * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			LinesTopic:  "bookline.lines",
			EventsTopic: "bookline.responses",
			Group:       "bookline",
		},
		Outbox: OutboxConfig{
			Dir:             "./outbox_data",
			PublishInterval: 250 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
		},
	}
}

// Load reads a config file (YAML) over the defaults; environment variables
// prefixed BOOKLINE_ override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("config: no instruments configured")
	}
	return cfg, nil
}
