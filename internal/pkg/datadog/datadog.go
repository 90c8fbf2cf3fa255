package datadog

import (
	"context"
	"fmt"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
)

const (
	metricTriggered = "sentry.triggered"
	metricEnabled   = "sentry.enabled"
	metricOnline    = "vehicle.online"
)

type Client struct {
	api    *datadogV2.MetricsApi
	apiKey string
	appKey string
}

func NewDatadogClient(apiKey, appKey string) *Client {
	configuration := datadog.NewConfiguration()
	apiClient := datadog.NewAPIClient(configuration)
	api := datadogV2.NewMetricsApi(apiClient)

	return &Client{
		api:    api,
		apiKey: apiKey,
		appKey: appKey,
	}
}

// PublishStatus submits one gauge per status flag, tagged with the VIN.
func (c *Client) PublishStatus(ctx context.Context, v sentry.Vehicle, status sentry.Status) error {
	valueCtx := context.WithValue(
		ctx,
		datadog.ContextAPIKeys,
		map[string]datadog.APIKey{
			"apiKeyAuth": {
				Key: c.apiKey,
			},
			"appKeyAuth": {
				Key: c.appKey,
			},
		},
	)

	_, _, err := c.api.SubmitMetrics(valueCtx, statusPayload(v, status), *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("submitting metrics: %w", err)
	}

	return nil
}

func statusPayload(v sentry.Vehicle, status sentry.Status) datadogV2.MetricPayload {
	series := func(metric string, value bool) datadogV2.MetricSeries {
		return datadogV2.MetricSeries{
			Metric: metric,
			Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
			Points: []datadogV2.MetricPoint{
				{
					Timestamp: datadog.PtrInt64(status.Timestamp.Unix()),
					Value:     datadog.PtrFloat64(gauge(value)),
				},
			},
			Resources: []datadogV2.MetricResource{
				{
					Type: datadog.PtrString("vin"),
					Name: datadog.PtrString(v.VIN),
				},
			},
			Tags: []string{fmt.Sprintf("vehicle:%s", v.Name())},
		}
	}

	return datadogV2.MetricPayload{
		Series: []datadogV2.MetricSeries{
			series(metricTriggered, status.Triggered),
			series(metricEnabled, status.SentryEnabled),
			series(metricOnline, status.Online),
		},
	}
}

func gauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
