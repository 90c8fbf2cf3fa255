package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
)

const (
	TopicVehicleOnline   = "vehicle_online"
	TopicSentryEnabled   = "sentry_enabled"
	TopicSentryTriggered = "sentry_triggered"
	TopicSentryActive    = "sentry_active"
	TopicLastUpdate      = "last_update"

	defaultPublishTimeout = 10 * time.Second
	disconnectQuiesceMs   = 250
)

var ErrNotConnected = errors.New("mqtt client not connected")

type Config struct {
	Protocol    string
	Server      string
	Port        int
	User        string
	Password    string
	TopicPrefix string
	Location    *time.Location
}

type MqttClient struct {
	client      mqtt.Client
	topicPrefix string
	location    *time.Location
	logger      *zap.SugaredLogger
}

type message struct {
	topic   string
	payload string
}

func NewMQTTClient(cfg Config, logger *zap.SugaredLogger) MqttClient {
	protocol := "tcp"
	if cfg.Protocol != "" {
		protocol = cfg.Protocol
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", protocol, cfg.Server, cfg.Port))
	if cfg.User != "" && cfg.Password != "" {
		logger.Debug("MQTT setting user & pass")
		opts.SetUsername(cfg.User)
		opts.SetPassword(cfg.Password)
	}
	u, _ := uuid.NewV4()
	opts.SetClientID(fmt.Sprintf("sentry-notifier-%s", u.String()))
	opts.TLSConfig = &tls.Config{}
	opts.SetKeepAlive(60 * time.Second)
	opts.AutoReconnect = true
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("Connected to mqtt server")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warnf("Connection to mqtt server lost: %v", err)
	}
	opts.OnReconnecting = func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Info("MQTT client is reconnecting")
	}

	return newWithClient(mqtt.NewClient(opts), cfg, logger)
}

func newWithClient(client mqtt.Client, cfg Config, logger *zap.SugaredLogger) MqttClient {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return MqttClient{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		location:    loc,
		logger:      logger,
	}
}

func (c MqttClient) Connect() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c MqttClient) Cleanup() {
	if c.client.IsConnected() {
		c.logger.Info("MQTT disconnecting")
		c.client.Disconnect(disconnectQuiesceMs)
	}
}

// PublishStatus publishes one message per status field under
// <prefix>/<vin>/.
func (c MqttClient) PublishStatus(ctx context.Context, v sentry.Vehicle, status sentry.Status) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	c.logger.Debugf("MQTT: Updating topic %s", c.vehicleTopic(v.VIN, ""))
	for _, m := range c.statusMessages(v.VIN, status) {
		if err := c.publish(ctx, m.topic, m.payload); err != nil {
			return fmt.Errorf("publishing %s: %w", m.topic, err)
		}
	}
	return nil
}

func (c MqttClient) statusMessages(vin string, status sentry.Status) []message {
	return []message{
		{c.vehicleTopic(vin, TopicVehicleOnline), strconv.FormatBool(status.Online)},
		{c.vehicleTopic(vin, TopicSentryEnabled), strconv.FormatBool(status.SentryEnabled)},
		{c.vehicleTopic(vin, TopicSentryTriggered), strconv.FormatBool(status.Triggered)},
		{c.vehicleTopic(vin, TopicSentryActive), strconv.FormatBool(status.Triggered)},
		{c.vehicleTopic(vin, TopicLastUpdate), status.Timestamp.In(c.location).Format(time.RFC3339)},
	}
}

func (c MqttClient) vehicleTopic(vin, leaf string) string {
	return fmt.Sprintf("%s/%s/%s", c.topicPrefix, vin, leaf)
}

func (c MqttClient) publish(ctx context.Context, topic, payload string) error {
	timeout := defaultPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %s", timeout)
	}
	return token.Error()
}
