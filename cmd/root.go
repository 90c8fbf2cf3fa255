package cmd

import (
	"github.com/spf13/cobra"

	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "sentry-notifier",
	Short: "Notify when a vehicle's Sentry Mode is triggered",
	Long: `Polls the vehicles on a Tesla account, publishes their Sentry Mode status
over MQTT and sends one push notification per alarm episode.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(cmd.Context(), viper.GetViper())
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	cobra.OnInitialize(initConfig)
	setDefaults(viper.GetViper())
}

func initConfig() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "sentry-notifier")
	v.SetDefault("TIMER", 10)
	v.SetDefault("TIMER_SKIP", 120)
	v.SetDefault("CARS_VIN", "")
	v.SetDefault("POLL_CONCURRENCY", 4)
	v.SetDefault("FETCH_TIMEOUT", 30)
	v.SetDefault("FLEET_REFRESH_INTERVAL", 0)
	v.SetDefault("TZ", "UTC")
	v.SetDefault("TESLA_USER", "")
	v.SetDefault("TESLA_REFRESH_TOKEN", "")
	v.SetDefault("TESLA_API_URL", "https://owner-api.teslamotors.com")
	v.SetDefault("TESLA_AUTH_URL", "https://auth.tesla.com/oauth2/v3")
	v.SetDefault("TOKEN_CACHE_FILE", "/etc/tesla-sentry-notifier/cache.json")
	v.SetDefault("ENCRYPTION_KEY", "")
	v.SetDefault("MQTT_ENABLED", false)
	v.SetDefault("MQTT_PROTOCOL", "tcp")
	v.SetDefault("MQTT_SERVER", "")
	v.SetDefault("MQTT_PORT", 1883)
	v.SetDefault("MQTT_USER", "")
	v.SetDefault("MQTT_PASS", "")
	v.SetDefault("MQTT_TOPIC", "tesla-sentry")
	v.SetDefault("NTFY_ENABLED", false)
	v.SetDefault("NTFY_SERVER", "https://ntfy.sh")
	v.SetDefault("NTFY_TOPIC", "")
	v.SetDefault("NTFY_TOKEN", "")
	v.SetDefault("FLASH_ENABLED", false)
	v.SetDefault("HONK_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_TTL", 600)
	v.SetDefault("DD_API_KEY", "")
	v.SetDefault("DD_APP_KEY", "")
	v.SetDefault("PORT", "")
	v.SetDefault("LOG_LEVEL", "info")
}
