// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the smart-home hub.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SP4567/smart-home-whisper/pkg/errors"
	"github.com/SP4567/smart-home-whisper/pkg/util"
)

// Discovery modes.
const (
	DiscoverySimulated = "simulated"
	DiscoveryMDNS      = "mdns"
)

// Config represents the application configuration
type Config struct {
	Simulation    SimulationConfig    `yaml:"simulation"`
	Discovery     DiscoveryConfig     `yaml:"discovery"`
	Dispatcher    DispatcherConfig    `yaml:"dispatcher"`
	API           APIConfig           `yaml:"api"`
	Notifications NotificationsConfig `yaml:"notifications"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	Logging       LoggingConfig       `yaml:"logging"`
	SeedDevices   bool                `yaml:"seed_devices"`
}

// SimulationConfig holds latencies and odds of the simulated hardware
type SimulationConfig struct {
	ScanDelay              time.Duration `yaml:"scan_delay"`
	ConnectDelay           time.Duration `yaml:"connect_delay"`
	DisconnectDelay        time.Duration `yaml:"disconnect_delay"`
	CommandDelay           time.Duration `yaml:"command_delay"`
	InclusionProbability   float64       `yaml:"inclusion_probability"`
	ScanFailureProbability float64       `yaml:"scan_failure_probability"`
	ConnectProbability     float64       `yaml:"connect_probability"`
	DisconnectProbability  float64       `yaml:"disconnect_probability"`
	CommandProbability     float64       `yaml:"command_probability"`
	RandomSeed             uint64        `yaml:"random_seed"` // 0 picks a random sequence
}

// DiscoveryConfig selects and configures the discovery backend
type DiscoveryConfig struct {
	Mode        string        `yaml:"mode"`
	ServiceType string        `yaml:"service_type"`
	Domain      string        `yaml:"domain"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DispatcherConfig holds circuit breaker settings for device round trips
type DispatcherConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second on /health and /metrics
	RateBurst      int           `yaml:"rate_burst"`
	AllowedOrigins []string      `yaml:"allowed_origins"` // WebSocket origins; empty allows same-origin only
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	FeedSize        int    `yaml:"feed_size"`
}

// MQTTConfig holds settings for the MQTT state bridge. An empty broker
// disables the bridge.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when a file leaves a value out.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			ScanDelay:             1500 * time.Millisecond,
			ConnectDelay:          1500 * time.Millisecond,
			DisconnectDelay:       time.Second,
			CommandDelay:          800 * time.Millisecond,
			InclusionProbability:  0.7,
			ConnectProbability:    0.8,
			DisconnectProbability: 1.0,
			CommandProbability:    0.9,
		},
		Discovery: DiscoveryConfig{
			Mode:        DiscoverySimulated,
			ServiceType: "_smarthome._tcp",
			Domain:      "local.",
			Timeout:     5 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		API: APIConfig{
			ListenAddr:   ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			RateLimit:    10,
			RateBurst:    20,
		},
		Notifications: NotificationsConfig{
			FeedSize: 50,
		},
		MQTT: MQTTConfig{
			ClientID:    "smart-home-hub",
			TopicPrefix: "smarthome",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		SeedDevices: true,
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides.
// Keys missing from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := util.ReadFileSafely(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides and defaults
	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	// Validate configuration
	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvironmentOverrides() {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("API_LISTEN_ADDR"); addr != "" {
		c.API.ListenAddr = addr
	}
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		c.Notifications.SlackWebhookURL = webhook
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
	}
	if mode := os.Getenv("DISCOVERY_MODE"); mode != "" {
		c.Discovery.Mode = mode
	}
	overrideProbability("SIM_COMMAND_PROBABILITY", &c.Simulation.CommandProbability)
	overrideProbability("SIM_CONNECT_PROBABILITY", &c.Simulation.ConnectProbability)
}

func overrideProbability(name string, target *float64) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to parse %s '%s': %v\n", name, raw, err)
		return
	}
	*target = p
}

// setDefaults restores defaults for fields a file explicitly blanked
func (c *Config) setDefaults() {
	def := Default()
	if c.Discovery.Mode == "" {
		c.Discovery.Mode = def.Discovery.Mode
	}
	if c.Discovery.ServiceType == "" {
		c.Discovery.ServiceType = def.Discovery.ServiceType
	}
	if c.Discovery.Domain == "" {
		c.Discovery.Domain = def.Discovery.Domain
	}
	if c.Discovery.Timeout == 0 {
		c.Discovery.Timeout = def.Discovery.Timeout
	}
	if c.Dispatcher.FailureThreshold == 0 {
		c.Dispatcher.FailureThreshold = def.Dispatcher.FailureThreshold
	}
	if c.Dispatcher.ResetTimeout == 0 {
		c.Dispatcher.ResetTimeout = def.Dispatcher.ResetTimeout
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = def.API.ListenAddr
	}
	if c.Notifications.FeedSize == 0 {
		c.Notifications.FeedSize = def.Notifications.FeedSize
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if validateErr := c.validateSimulation(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateDiscovery(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateAPI(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateNotifications(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateMQTT(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateLogging(); validateErr != nil {
		return validateErr
	}

	return nil
}

// validateSimulation validates delays and probabilities
func (c *Config) validateSimulation() error {
	s := c.Simulation
	delays := []struct {
		field string
		value time.Duration
	}{
		{"simulation.scan_delay", s.ScanDelay},
		{"simulation.connect_delay", s.ConnectDelay},
		{"simulation.disconnect_delay", s.DisconnectDelay},
		{"simulation.command_delay", s.CommandDelay},
	}
	for _, d := range delays {
		if d.value < 0 || d.value > time.Minute {
			return errors.NewConfigError(d.field, d.value.String(), fmt.Errorf("must be between 0 and 1m: %w", errors.ErrInvalidConfig))
		}
	}

	probabilities := []struct {
		field string
		value float64
	}{
		{"simulation.inclusion_probability", s.InclusionProbability},
		{"simulation.scan_failure_probability", s.ScanFailureProbability},
		{"simulation.connect_probability", s.ConnectProbability},
		{"simulation.disconnect_probability", s.DisconnectProbability},
		{"simulation.command_probability", s.CommandProbability},
	}
	for _, p := range probabilities {
		if p.value < 0 || p.value > 1 {
			return errors.NewConfigError(p.field, strconv.FormatFloat(p.value, 'g', -1, 64), fmt.Errorf("must be between 0 and 1: %w", errors.ErrInvalidConfig))
		}
	}
	return nil
}

// validateDiscovery validates the discovery configuration
func (c *Config) validateDiscovery() error {
	switch c.Discovery.Mode {
	case DiscoverySimulated, DiscoveryMDNS:
	default:
		return errors.NewConfigError("discovery.mode", c.Discovery.Mode, fmt.Errorf("must be %q or %q: %w", DiscoverySimulated, DiscoveryMDNS, errors.ErrInvalidConfig))
	}
	if !strings.HasPrefix(c.Discovery.ServiceType, "_") {
		return errors.NewConfigError("discovery.service_type", c.Discovery.ServiceType, fmt.Errorf("must start with an underscore: %w", errors.ErrInvalidConfig))
	}
	if c.Discovery.Timeout < 100*time.Millisecond || c.Discovery.Timeout > time.Minute {
		return errors.NewConfigError("discovery.timeout", c.Discovery.Timeout.String(), fmt.Errorf("must be between 100ms and 1m: %w", errors.ErrInvalidConfig))
	}
	return nil
}

// validateAPI validates the HTTP server configuration
func (c *Config) validateAPI() error {
	if !strings.Contains(c.API.ListenAddr, ":") {
		return errors.NewConfigError("api.listen_addr", c.API.ListenAddr, fmt.Errorf("must be host:port: %w", errors.ErrInvalidConfig))
	}
	if c.API.RateLimit < 0 || c.API.RateBurst < 0 {
		return errors.NewConfigError("api.rate_limit", strconv.FormatFloat(c.API.RateLimit, 'g', -1, 64), fmt.Errorf("must not be negative: %w", errors.ErrInvalidConfig))
	}
	return nil
}

// validateNotifications validates the notification configuration
func (c *Config) validateNotifications() error {
	if c.Notifications.SlackWebhookURL != "" {
		parsed, err := url.Parse(c.Notifications.SlackWebhookURL)
		if err != nil || parsed.Host == "" {
			return errors.NewConfigError("notifications.slack_webhook_url", c.Notifications.SlackWebhookURL, fmt.Errorf("is not a valid URL: %w", errors.ErrInvalidConfig))
		}
		if parsed.Scheme != "https" {
			return errors.NewConfigError("notifications.slack_webhook_url", parsed.Scheme, fmt.Errorf("must use HTTPS: %w", errors.ErrInvalidConfig))
		}
	}
	if c.Notifications.FeedSize < 1 || c.Notifications.FeedSize > 1000 {
		return errors.NewConfigError("notifications.feed_size", strconv.Itoa(c.Notifications.FeedSize), fmt.Errorf("must be between 1 and 1000: %w", errors.ErrInvalidConfig))
	}
	return nil
}

// validateMQTT validates the MQTT bridge configuration
func (c *Config) validateMQTT() error {
	if c.MQTT.Broker == "" {
		return nil
	}
	parsed, err := url.Parse(c.MQTT.Broker)
	if err != nil || parsed.Host == "" {
		return errors.NewConfigError("mqtt.broker", c.MQTT.Broker, fmt.Errorf("is not a valid URL: %w", errors.ErrInvalidConfig))
	}
	switch parsed.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return errors.NewConfigError("mqtt.broker", parsed.Scheme, fmt.Errorf("unsupported scheme: %w", errors.ErrInvalidConfig))
	}
	if c.MQTT.QoS > 2 {
		return errors.NewConfigError("mqtt.qos", strconv.Itoa(int(c.MQTT.QoS)), fmt.Errorf("must be 0, 1 or 2: %w", errors.ErrInvalidConfig))
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "#+") {
		return errors.NewConfigError("mqtt.topic_prefix", c.MQTT.TopicPrefix, fmt.Errorf("must not contain wildcards: %w", errors.ErrInvalidConfig))
	}
	return nil
}

// validateLogging validates the logging configuration
func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"warning": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return errors.NewConfigError("logging.level", c.Logging.Level, fmt.Errorf("must be one of: debug, info, warn, error, fatal, panic: %w", errors.ErrInvalidConfig))
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return errors.NewConfigError("logging.format", c.Logging.Format, fmt.Errorf("must be console or json: %w", errors.ErrInvalidConfig))
	}

	return nil
}
