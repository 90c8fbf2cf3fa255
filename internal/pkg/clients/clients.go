package clients

import (
	"go.uber.org/zap"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/datadog"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/fleet"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/mqtt"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/ntfy"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/redis"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/socket"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/tesla"
)

// MonitorClients holds the long-lived collaborators. Optional clients are nil
// when disabled.
type MonitorClients struct {
	Tesla     *tesla.Client
	Mosquitto *mqtt.MqttClient
	Ntfy      *ntfy.Client
	Redis     *redis.Client
	DDClient  *datadog.Client
	Socket    *socket.Hub
}

// SchedulerOptions wires the enabled sinks into the fleet scheduler.
func (c MonitorClients) SchedulerOptions() []fleet.Option {
	var opts []fleet.Option
	if c.Mosquitto != nil {
		opts = append(opts, fleet.WithStatusSink(c.Mosquitto))
	}
	if c.Redis != nil {
		opts = append(opts, fleet.WithStatusSink(c.Redis))
	}
	if c.DDClient != nil {
		opts = append(opts, fleet.WithStatusSink(c.DDClient))
	}
	if c.Socket != nil {
		opts = append(opts, fleet.WithStatusSink(c.Socket))
	}
	if c.Ntfy != nil {
		opts = append(opts, fleet.WithNotifier(c.Ntfy))
	}
	return opts
}

// Close releases every client. It is safe to call with partially created
// clients.
func (c MonitorClients) Close(logger *zap.SugaredLogger) {
	if c.Socket != nil {
		c.Socket.Close()
	}

	if c.Mosquitto != nil {
		c.Mosquitto.Cleanup()
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Errorf("closing redis client: %s", err)
		}
	}

	if c.Tesla != nil {
		logger.Info("Closing Tesla API")
		if err := c.Tesla.Close(); err != nil {
			logger.Errorf("closing tesla client: %s", err)
		}
	}
}
