// Package config loads the sniffer configuration from an optional YAML
// file with struct-tag defaults and environment overrides for the
// deployment-specific values (reporting broker, antenna location).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Environment overrides. These match the deployment contract: the
// broker address and antenna coordinates come from the environment,
// everything else from flags or the config file.
const (
	EnvBroker    = "REPORT_BROKER_ADDRESS"
	EnvLocationX = "LOCATION_X"
	EnvLocationY = "LOCATION_Y"
)

// Config is the root configuration.
type Config struct {
	Sniffer  SnifferConfig  `yaml:"sniffer"`
	Report   ReportConfig   `yaml:"report"`
	Location LocationConfig `yaml:"location"`
}

// SnifferConfig holds the gate and queue parameters.
type SnifferConfig struct {
	// ThresholdRSSI is the admission floor in dBm; samples must exceed
	// it strictly to be reported.
	ThresholdRSSI int `yaml:"threshold_rssi" default:"-80"`

	// MinimumInterval is the per-device rate limit between reported
	// observations, in seconds.
	MinimumInterval int `yaml:"minimum_interval" default:"5"`

	// QueueCapacity bounds the observation queue between the
	// dispatcher and the reporting worker.
	QueueCapacity int `yaml:"queue_capacity" default:"256"`
}

// Interval returns the rate limit as a duration.
func (c SnifferConfig) Interval() time.Duration {
	return time.Duration(c.MinimumInterval) * time.Second
}

// ReportConfig holds the MQTT reporting channel settings.
type ReportConfig struct {
	Broker      string `yaml:"broker" default:"tcp://127.0.0.1:1883"`
	ClientID    string `yaml:"client_id" default:"btlesniffer"`
	TopicPrefix string `yaml:"topic_prefix" default:"btle"`
	QoS         int    `yaml:"qos" default:"1"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// LocationConfig is the antenna position reported on registration.
type LocationConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Load builds the configuration: defaults first, then the YAML file if
// path is non-empty, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if broker := os.Getenv(EnvBroker); broker != "" {
		cfg.Report.Broker = broker
	}
	if x := os.Getenv(EnvLocationX); x != "" {
		v, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvLocationX, err)
		}
		cfg.Location.X = v
	}
	if y := os.Getenv(EnvLocationY); y != "" {
		v, err := strconv.ParseFloat(y, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvLocationY, err)
		}
		cfg.Location.Y = v
	}
	return nil
}

// Validate rejects configurations the sniffer cannot run with.
func (c *Config) Validate() error {
	if c.Sniffer.MinimumInterval < 0 {
		return fmt.Errorf("minimum_interval must not be negative, got %d", c.Sniffer.MinimumInterval)
	}
	if c.Sniffer.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.Sniffer.QueueCapacity)
	}
	if c.Report.QoS < 0 || c.Report.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.Report.QoS)
	}
	if c.Report.ClientID == "" {
		return fmt.Errorf("client_id must not be empty")
	}
	return nil
}
