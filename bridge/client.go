// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package bridge

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SP4567/smart-home-whisper/config"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
	maxReconnectDelay = 2 * time.Minute
	maxQoS            = 2
)

var (
	// ErrNotConnected is returned when publishing while the broker is unreachable.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when the broker does not accept a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)

// Client is a paho connection that publishes retained hub state.
type Client struct {
	client    pahomqtt.Client
	cfg       config.MQTTConfig
	connected atomic.Bool
}

// Connect dials the broker in cfg. The broker retains an "offline" status
// for the hub if the connection drops without Close.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg}
	log := logger.Component("mqtt")

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(pc pahomqtt.Client) {
		c.connected.Store(true)
		pc.Publish(statusTopic(cfg.TopicPrefix), cfg.QoS, true, statusPayload("online"))
		log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.connected.Store(false)
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("Lost connection to MQTT broker")
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	c.connected.Store(true)
	return c, nil
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectDelay)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetWill(statusTopic(cfg.TopicPrefix), string(statusPayload("offline")), cfg.QoS, true)
	return opts
}

// Publish sends payload to topic and waits for the broker to accept it.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client.IsConnected()
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() {
	if c.client == nil {
		return
	}
	if c.IsConnected() {
		token := c.client.Publish(statusTopic(c.cfg.TopicPrefix), c.cfg.QoS, true, statusPayload("offline"))
		token.WaitTimeout(publishTimeout)
	}
	c.client.Disconnect(disconnectQuiesce)
	c.connected.Store(false)
}
