package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
)

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	payload string
}

// fakeClient implements the parts of mqtt.Client used by MqttClient.
type fakeClient struct {
	mqtt.Client
	connected bool
	err       error
	messages  []published
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.messages = append(f.messages, published{topic, payload.(string)})
	return fakeToken{err: f.err}
}

func Test_PublishStatus(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	fc := &fakeClient{connected: true}
	c := newWithClient(fc, Config{TopicPrefix: "tesla-sentry", Location: berlin}, zap.NewNop().Sugar())

	status := sentry.Status{
		Online:        true,
		SentryEnabled: true,
		Triggered:     true,
		Timestamp:     time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	err = c.PublishStatus(context.Background(), sentry.Vehicle{VIN: "VIN1"}, status)
	require.NoError(t, err)

	assert.Equal(t, []published{
		{"tesla-sentry/VIN1/vehicle_online", "true"},
		{"tesla-sentry/VIN1/sentry_enabled", "true"},
		{"tesla-sentry/VIN1/sentry_triggered", "true"},
		{"tesla-sentry/VIN1/sentry_active", "true"},
		{"tesla-sentry/VIN1/last_update", "2024-06-01T12:00:00+02:00"},
	}, fc.messages)
}

func Test_PublishStatusNotConnected(t *testing.T) {
	fc := &fakeClient{}
	c := newWithClient(fc, Config{TopicPrefix: "tesla-sentry"}, zap.NewNop().Sugar())

	err := c.PublishStatus(context.Background(), sentry.Vehicle{VIN: "VIN1"}, sentry.Status{})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, fc.messages)
}

func Test_PublishStatusError(t *testing.T) {
	fc := &fakeClient{connected: true, err: errors.New("broker gone")}
	c := newWithClient(fc, Config{TopicPrefix: "tesla-sentry"}, zap.NewNop().Sugar())

	err := c.PublishStatus(context.Background(), sentry.Vehicle{VIN: "VIN1"}, sentry.Status{})
	assert.ErrorContains(t, err, "publishing tesla-sentry/VIN1/vehicle_online: broker gone")
	assert.Len(t, fc.messages, 1)
}
