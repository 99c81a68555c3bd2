package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jpalmerr/feedrelay/internal/feed"
)

var errPublishTimeout = errors.New("publish not acknowledged in time")

// publisher is the subset of mqtt.Client used by [MQTTSink].
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig describes the broker connection of an [MQTTSink].
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	Timeout  time.Duration
}

// MQTTSink publishes each reading as a JSON [Row] with QoS 1.
type MQTTSink struct {
	client  publisher
	conn    mqtt.Client
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// DialMQTT connects to the broker and returns a sink publishing to cfg.Topic.
func DialMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTTSink, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect to %s: timed out after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	s := newMQTTSink(c, cfg.Topic, cfg.Timeout, logger)
	s.conn = c
	return s, nil
}

func newMQTTSink(client publisher, topic string, timeout time.Duration, logger *slog.Logger) *MQTTSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTSink{client: client, topic: topic, timeout: timeout, logger: logger}
}

// Name implements the loop's sink contract.
func (s *MQTTSink) Name() string { return "mqtt" }

// Persist publishes r and waits for the broker acknowledgement.
func (s *MQTTSink) Persist(_ context.Context, r feed.Reading) error {
	err := s.publish(r)
	if err != nil {
		err = wrap(s.Name(), r.EntryID, err)
		s.logger.Error("failed to publish reading", "entry_id", r.EntryID, "topic", s.topic, "error", err.Error())
		return err
	}
	s.logger.Info("reading published", "entry_id", r.EntryID, "topic", s.topic)
	return nil
}

func (s *MQTTSink) publish(r feed.Reading) error {
	row, err := NewRow(r)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}

	token := s.client.Publish(s.topic, 1, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return errPublishTimeout
	}
	return token.Error()
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	if s.conn != nil {
		s.conn.Disconnect(250)
	}
}
