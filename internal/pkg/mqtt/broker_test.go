package mqtt

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
)

const (
	brokerPort     = 18830
	brokerUser     = "sentry"
	brokerPassword = "hunter2"
)

func startBroker(t *testing.T) {
	server := mochi.New(nil)
	err := server.AddHook(new(auth.Hook), &auth.Options{
		Ledger: &auth.Ledger{
			Auth: auth.AuthRules{
				{
					Username: auth.RString(brokerUser),
					Password: auth.RString(brokerPassword),
					Allow:    true,
				},
			},
		},
	})
	require.NoError(t, err)

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: fmt.Sprintf("localhost:%d", brokerPort),
	})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())

	t.Cleanup(func() { server.Close() })
}

func subscribe(t *testing.T, filter string) func() map[string]string {
	var mu sync.Mutex
	got := make(map[string]string)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://localhost:%d", brokerPort))
	opts.SetClientID("sentry-notifier-test-subscriber")
	opts.SetUsername(brokerUser)
	opts.SetPassword(brokerPassword)
	sub := mqtt.NewClient(opts)

	token := sub.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { sub.Disconnect(0) })

	token = sub.Subscribe(filter, 0, func(_ mqtt.Client, m mqtt.Message) {
		mu.Lock()
		defer mu.Unlock()
		got[m.Topic()] = string(m.Payload())
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	return func() map[string]string {
		mu.Lock()
		defer mu.Unlock()
		out := make(map[string]string, len(got))
		for k, v := range got {
			out[k] = v
		}
		return out
	}
}

func Test_PublishStatusThroughBroker(t *testing.T) {
	startBroker(t)
	received := subscribe(t, "tesla-sentry/VIN1/#")

	c := NewMQTTClient(Config{
		Protocol:    "tcp",
		Server:      "localhost",
		Port:        brokerPort,
		User:        brokerUser,
		Password:    brokerPassword,
		TopicPrefix: "tesla-sentry",
	}, zap.NewNop().Sugar())
	require.NoError(t, c.Connect())
	defer c.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.PublishStatus(ctx, sentry.Vehicle{VIN: "VIN1"}, sentry.Status{
		Online:        true,
		SentryEnabled: true,
		Triggered:     true,
		Timestamp:     time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(received()) == 5
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, map[string]string{
		"tesla-sentry/VIN1/vehicle_online":   "true",
		"tesla-sentry/VIN1/sentry_enabled":   "true",
		"tesla-sentry/VIN1/sentry_triggered": "true",
		"tesla-sentry/VIN1/sentry_active":    "true",
		"tesla-sentry/VIN1/last_update":      "2024-06-01T10:00:00Z",
	}, received())
}

func Test_ConnectRejectedCredentials(t *testing.T) {
	startBroker(t)

	c := NewMQTTClient(Config{
		Server:   "localhost",
		Port:     brokerPort,
		User:     brokerUser,
		Password: "wrong",
	}, zap.NewNop().Sugar())
	assert.Error(t, c.Connect())
}
