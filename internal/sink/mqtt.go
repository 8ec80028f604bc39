package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/config"
	"github.com/ironsheep/shape-classifier/internal/pipeline"
)

// MQTT publishes results as JSON to a broker topic.
type MQTT struct {
	client  mqtt.Client
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration
	logger  *zap.Logger
}

// defaultTimeout bounds connects and publishes when the config leaves the
// timeout unset.
const defaultTimeout = 10 * time.Second

func timeoutOf(cfg config.MQTTConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return defaultTimeout
	}
	return cfg.Timeout
}

// NewMQTT connects to cfg.Broker. The client reconnects on its own after
// the first connection succeeds.
func NewMQTT(cfg config.MQTTConfig, logger *zap.Logger) (*MQTT, error) {
	logger = logger.With(zap.String("broker", cfg.Broker))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeoutOf(cfg))
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("connection to MQTT broker lost", zap.Error(err))
	})

	return connect(mqtt.NewClient(opts), cfg, logger)
}

// connect waits for the first connection of client. On failure the client
// is disconnected so no connect attempt keeps running.
func connect(client mqtt.Client, cfg config.MQTTConfig, logger *zap.Logger) (*MQTT, error) {
	timeout := timeoutOf(cfg)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s after %v", cfg.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return newMQTT(client, cfg, logger), nil
}

func newMQTT(client mqtt.Client, cfg config.MQTTConfig, logger *zap.Logger) *MQTT {
	return &MQTT{
		client:  client,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		retain:  cfg.Retain,
		timeout: timeoutOf(cfg),
		logger:  logger,
	}
}

// Deliver publishes res and waits for the broker to acknowledge it
// according to the configured QoS.
func (s *MQTT) Deliver(ctx context.Context, res pipeline.Result) error {
	if !s.client.IsConnectionOpen() {
		return fmt.Errorf("not connected to MQTT broker")
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	token := s.client.Publish(s.topic, s.qos, s.retain, payload)

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish to %s timed out after %v", s.topic, s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", s.topic, err)
	}

	s.logger.Debug("result published", zap.String("topic", s.topic), zap.Uint64("seq", res.Seq))
	return nil
}

// Close disconnects from the broker.
func (s *MQTT) Close() error {
	s.client.Disconnect(250)
	return nil
}
