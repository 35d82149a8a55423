// Package mqtt wraps paho.mqtt.golang for the lights that are reached over
// an MQTT broker (zigbee2mqtt-style command topics) and for entertainment
// batch publishing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout   = 10 * time.Second
	publishTimeout   = 5 * time.Second
	disconnectQuiesc = 1000 // milliseconds
	keepAlive        = 60 * time.Second
)

// Config is the broker connection configuration.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Client is a thin connection wrapper: bounded-wait publishes, JSON payload
// helpers, graceful close. Reconnection is left to paho's auto-reconnect.
type Client struct {
	client pahomqtt.Client

	mu        sync.RWMutex
	connected bool
}

// Connect dials the broker and waits for the initial connection.
func Connect(cfg Config) (*Client, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(keepAlive)
	opts.SetAutoReconnect(true)

	c := &Client{}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		log.Info().Str("broker", cfg.Host).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		log.Warn().Err(err).Msg("MQTT connection lost, reconnecting")
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect: timeout after %v", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return c, nil
}

// IsConnected reports the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Publish sends a raw payload and waits for the broker ack.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	return token.Error()
}

// PublishJSON marshals v and publishes it.
func (c *Client) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt marshal for %s: %w", topic, err)
	}
	return c.Publish(topic, payload)
}

// PublishBatch fires a set of messages without waiting for acks, for the
// streaming hot path where dropped messages are preferable to stalls.
func (c *Client) PublishBatch(messages map[string]any) {
	for topic, v := range messages {
		payload, err := json.Marshal(v)
		if err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("MQTT batch marshal failed")
			continue
		}
		c.client.Publish(topic, 0, false, payload)
	}
}

// Close disconnects, letting in-flight operations quiesce.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesc)
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	log.Debug().Msg("MQTT disconnected")
}
