package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/clients"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/config"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/crypto"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/datadog"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/fleet"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/mqtt"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/ntfy"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/redis"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/socket"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/tesla"
)

var (
	logger  *zap.SugaredLogger
	version = "unknown"
)

const redisPingTimeout = 5 * time.Second

func runMonitor(ctx context.Context, v *viper.Viper) error {
	monitorConfig, err := loadConfig(v)
	if err != nil {
		return err
	}
	if err := monitorConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := newLogger(monitorConfig.LogLevel)
	if err != nil {
		return err
	}
	logger = l.Sugar().Named("sentry_notifier")
	defer logger.Sync()
	logger.Infof("Running %s version: %s", monitorConfig.AppName, version)
	if monitorConfig.TeslaUser != "" {
		logger.Infof("Tesla account: %s", monitorConfig.TeslaUser)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitorClients, err := createClients(ctx, monitorConfig)
	if err != nil {
		return fmt.Errorf("creating clients: %w", err)
	}
	defer monitorClients.Close(logger)

	scheduler := fleet.New(fleet.Config{
		Policy: sentry.Policy{
			PollInterval:    monitorConfig.PollInterval,
			BackoffInterval: monitorConfig.BackoffInterval,
			FlashLights:     monitorConfig.DeterrentConfig.FlashLights,
			HonkHorn:        monitorConfig.DeterrentConfig.HonkHorn,
		},
		VINFilter:       monitorConfig.VINFilter,
		Concurrency:     monitorConfig.Concurrency,
		FetchTimeout:    monitorConfig.FetchTimeout,
		RefreshInterval: monitorConfig.RefreshInterval,
	}, monitorClients.Tesla, logger.Named("fleet"), monitorClients.SchedulerOptions()...)

	if monitorConfig.Port != "" {
		webServer := newWebServer(monitorConfig, scheduler, monitorClients.Socket)
		go webServer.start()
		defer webServer.shutdown()
	}

	if err := scheduler.Run(ctx); err != nil {
		return err
	}
	logger.Info("Shutting down")
	return nil
}

func loadConfig(v *viper.Viper) (config.MonitorConfig, error) {
	location, err := time.LoadLocation(v.GetString("TZ"))
	if err != nil {
		return config.MonitorConfig{}, fmt.Errorf("loading time zone: %w", err)
	}

	return config.MonitorConfig{
		AppName:         v.GetString("APP_NAME"),
		TeslaUser:       v.GetString("TESLA_USER"),
		PollInterval:    seconds(v, "TIMER"),
		BackoffInterval: seconds(v, "TIMER_SKIP"),
		FetchTimeout:    seconds(v, "FETCH_TIMEOUT"),
		RefreshInterval: seconds(v, "FLEET_REFRESH_INTERVAL"),
		Concurrency:     v.GetInt("POLL_CONCURRENCY"),
		VINFilter:       config.ParseVINFilter(v.GetString("CARS_VIN")),
		Location:        location,
		EncryptionKey:   v.GetString("ENCRYPTION_KEY"),
		RedisURL:        v.GetString("REDIS_URL"),
		RedisTTL:        seconds(v, "REDIS_TTL"),
		Port:            v.GetString("PORT"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		TeslaConfig: config.TeslaConfig{
			APIURL:         v.GetString("TESLA_API_URL"),
			AuthURL:        v.GetString("TESLA_AUTH_URL"),
			RefreshToken:   v.GetString("TESLA_REFRESH_TOKEN"),
			TokenCacheFile: v.GetString("TOKEN_CACHE_FILE"),
		},
		MQTTConfig: config.MQTTConfig{
			Enabled:     v.GetBool("MQTT_ENABLED"),
			Protocol:    v.GetString("MQTT_PROTOCOL"),
			Server:      v.GetString("MQTT_SERVER"),
			Port:        v.GetInt("MQTT_PORT"),
			User:        v.GetString("MQTT_USER"),
			Password:    v.GetString("MQTT_PASS"),
			TopicPrefix: v.GetString("MQTT_TOPIC"),
		},
		NTFYConfig: config.NTFYConfig{
			Enabled: v.GetBool("NTFY_ENABLED"),
			Server:  v.GetString("NTFY_SERVER"),
			Topic:   v.GetString("NTFY_TOPIC"),
			Token:   v.GetString("NTFY_TOKEN"),
		},
		DeterrentConfig: config.DeterrentConfig{
			FlashLights: v.GetBool("FLASH_ENABLED"),
			HonkHorn:    v.GetBool("HONK_ENABLED"),
		},
		DatadogConfig: config.DatadogConfig{
			APIKey: v.GetString("DD_API_KEY"),
			APPKey: v.GetString("DD_APP_KEY"),
		},
	}, nil
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// createClients builds every collaborator. On failure the clients created so
// far are closed before returning.
func createClients(ctx context.Context, monitorConfig config.MonitorConfig) (clients.MonitorClients, error) {
	mc := clients.MonitorClients{}
	fail := func(err error) (clients.MonitorClients, error) {
		mc.Close(logger)
		return clients.MonitorClients{}, err
	}

	var cryptoUtil *crypto.Util
	if monitorConfig.EncryptionKey != "" {
		var err error
		cryptoUtil, err = crypto.NewUtil(monitorConfig.EncryptionKey)
		if err != nil {
			return fail(fmt.Errorf("creating crypto util: %w", err))
		}
	}

	teslaClient, err := tesla.NewClient(tesla.Config{
		APIURL:         monitorConfig.TeslaConfig.APIURL,
		AuthURL:        monitorConfig.TeslaConfig.AuthURL,
		RefreshToken:   monitorConfig.TeslaConfig.RefreshToken,
		TokenCacheFile: monitorConfig.TeslaConfig.TokenCacheFile,
		Timeout:        monitorConfig.FetchTimeout,
		Crypto:         cryptoUtil,
	}, logger.Named("tesla"))
	if err != nil {
		return fail(fmt.Errorf("creating tesla client: %w", err))
	}
	mc.Tesla = teslaClient

	if monitorConfig.MQTTConfig.Enabled {
		mosquittoClient := mqtt.NewMQTTClient(mqtt.Config{
			Protocol:    monitorConfig.MQTTConfig.Protocol,
			Server:      monitorConfig.MQTTConfig.Server,
			Port:        monitorConfig.MQTTConfig.Port,
			User:        monitorConfig.MQTTConfig.User,
			Password:    monitorConfig.MQTTConfig.Password,
			TopicPrefix: monitorConfig.MQTTConfig.TopicPrefix,
			Location:    monitorConfig.Location,
		}, logger.Named("mqtt"))
		if err := mosquittoClient.Connect(); err != nil {
			return fail(fmt.Errorf("connecting to mqtt server: %w", err))
		}
		mc.Mosquitto = &mosquittoClient
	} else {
		logger.Info("MQTT publishing disabled")
	}

	if monitorConfig.NTFYConfig.Enabled {
		ntfyClient, err := ntfy.NewClient(ntfy.Config{
			Server:  monitorConfig.NTFYConfig.Server,
			Topic:   monitorConfig.NTFYConfig.Topic,
			Token:   monitorConfig.NTFYConfig.Token,
			Tags:    []string{"warning"},
			Timeout: monitorConfig.FetchTimeout,
		}, logger.Named("ntfy"))
		if err != nil {
			return fail(fmt.Errorf("creating ntfy client: %w", err))
		}
		mc.Ntfy = ntfyClient
	} else {
		logger.Info("ntfy notifications disabled")
	}

	if monitorConfig.RedisURL != "" {
		redisClient, err := redis.NewRedisClient(monitorConfig.RedisURL, monitorConfig.RedisTTL, monitorConfig.Location)
		if err != nil {
			return fail(fmt.Errorf("creating redis client: %w", err))
		}
		mc.Redis = redisClient

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		if err := redisClient.Ping(pingCtx); err != nil {
			logger.Warnf("redis not reachable yet: %s", err)
		}
		cancel()
	}

	if monitorConfig.DatadogConfig.Enabled() {
		mc.DDClient = datadog.NewDatadogClient(monitorConfig.DatadogConfig.APIKey, monitorConfig.DatadogConfig.APPKey)
	}

	if monitorConfig.Port != "" {
		mc.Socket = socket.NewHub(logger.Named("websocket"))
	}

	return mc, nil
}
