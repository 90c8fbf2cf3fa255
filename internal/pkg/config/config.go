package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type MonitorConfig struct {
	AppName         string
	TeslaUser       string
	PollInterval    time.Duration
	BackoffInterval time.Duration
	FetchTimeout    time.Duration
	RefreshInterval time.Duration
	Concurrency     int
	VINFilter       []string
	Location        *time.Location
	EncryptionKey   string
	RedisURL        string
	RedisTTL        time.Duration
	Port            string
	LogLevel        string
	TeslaConfig     TeslaConfig
	MQTTConfig      MQTTConfig
	NTFYConfig      NTFYConfig
	DeterrentConfig DeterrentConfig
	DatadogConfig   DatadogConfig
}

type TeslaConfig struct {
	APIURL         string
	AuthURL        string
	RefreshToken   string
	TokenCacheFile string
}

type MQTTConfig struct {
	Enabled     bool
	Protocol    string
	Server      string
	Port        int
	User        string
	Password    string
	TopicPrefix string
}

type NTFYConfig struct {
	Enabled bool
	Server  string
	Topic   string
	Token   string
}

type DeterrentConfig struct {
	FlashLights bool
	HonkHorn    bool
}

type DatadogConfig struct {
	APIKey string
	APPKey string
}

func (d DatadogConfig) Enabled() bool {
	return d.APIKey != "" && d.APPKey != ""
}

// ParseVINFilter splits a comma separated VIN list. VINs are upper-cased.
func ParseVINFilter(s string) []string {
	var vins []string
	for _, vin := range strings.Split(s, ",") {
		vin = strings.ToUpper(strings.TrimSpace(vin))
		if vin != "" {
			vins = append(vins, vin)
		}
	}
	return vins
}

func (c MonitorConfig) Validate() error {
	var errs []error

	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.BackoffInterval < 0 {
		errs = append(errs, fmt.Errorf("backoff interval must not be negative, got %s", c.BackoffInterval))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("poll concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.RedisTTL < 0 {
		errs = append(errs, fmt.Errorf("redis ttl must not be negative, got %s", c.RedisTTL))
	}
	if c.TeslaConfig.TokenCacheFile == "" {
		errs = append(errs, errors.New("token cache file is required"))
	}
	if c.MQTTConfig.Enabled && c.MQTTConfig.Server == "" {
		errs = append(errs, errors.New("MQTT_SERVER is required when MQTT is enabled"))
	}
	if c.NTFYConfig.Enabled && c.NTFYConfig.Topic == "" {
		errs = append(errs, errors.New("NTFY_TOPIC is required when ntfy is enabled"))
	}
	if n := len(c.EncryptionKey); n != 0 && n != 16 && n != 24 && n != 32 {
		errs = append(errs, fmt.Errorf("ENCRYPTION_KEY must be 16, 24 or 32 bytes, got %d", n))
	}

	return errors.Join(errs...)
}
