package tesla

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/crypto"
	"github.com/andrewmarklloyd/sentry-notifier/internal/pkg/sentry"
)

const (
	DefaultAPIURL  = "https://owner-api.teslamotors.com"
	DefaultAuthURL = "https://auth.tesla.com/oauth2/v3"

	maxErrorBody = 512
)

type Config struct {
	APIURL         string
	AuthURL        string
	RefreshToken   string
	TokenCacheFile string
	Timeout        time.Duration
	Crypto         *crypto.Util
}

// APIError is returned for any non-2xx response from the owner API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, e.Body)
}

type Client struct {
	apiURL     string
	httpClient *http.Client
	tokens     *cachingTokenSource
	logger     *zap.SugaredLogger
}

type vehicleListResponse struct {
	Response []struct {
		ID          int64  `json:"id"`
		VIN         string `json:"vin"`
		DisplayName string `json:"display_name"`
		State       string `json:"state"`
	} `json:"response"`
}

type vehicleDataResponse struct {
	Response struct {
		State        string `json:"state"`
		VehicleState struct {
			SentryMode         bool `json:"sentry_mode"`
			CenterDisplayState int  `json:"center_display_state"`
		} `json:"vehicle_state"`
	} `json:"response"`
}

type commandResponse struct {
	Response struct {
		Result bool   `json:"result"`
		Reason string `json:"reason"`
	} `json:"response"`
}

// NewClient sets up an authenticated owner API session from the token cache
// or the configured refresh token.
func NewClient(cfg Config, logger *zap.SugaredLogger) (*Client, error) {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}

	cache := NewTokenCache(cfg.TokenCacheFile, cfg.Crypto)
	tok, err := initialToken(cache, cfg.RefreshToken, logger)
	if err != nil {
		return nil, err
	}

	// token refreshes outlive any single request, so they get their own context
	oauthCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
	tokens := &cachingTokenSource{
		base:   oauthConfig(strings.TrimRight(cfg.AuthURL, "/")).TokenSource(oauthCtx, tok),
		cache:  cache,
		logger: logger,
	}

	httpClient := oauth2.NewClient(oauthCtx, tokens)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

func (c *Client) ListVehicles(ctx context.Context) ([]sentry.Vehicle, error) {
	var r vehicleListResponse
	if err := c.do(ctx, http.MethodGet, "/api/1/vehicles", &r); err != nil {
		return nil, fmt.Errorf("listing vehicles: %w", err)
	}

	vehicles := make([]sentry.Vehicle, 0, len(r.Response))
	for _, v := range r.Response {
		c.logger.Debugf("%s - %s (%s)", v.VIN, v.DisplayName, v.State)
		vehicles = append(vehicles, sentry.Vehicle{
			VIN:         strings.ToUpper(v.VIN),
			ID:          v.ID,
			DisplayName: v.DisplayName,
		})
	}
	return vehicles, nil
}

// FetchStatus reads the vehicle state. A sleeping or offline vehicle answers
// with 408, which is reported as sentry.ErrVehicleUnreachable.
func (c *Client) FetchStatus(ctx context.Context, v sentry.Vehicle) (sentry.Snapshot, error) {
	var r vehicleDataResponse
	path := fmt.Sprintf("/api/1/vehicles/%d/vehicle_data", v.ID)
	if err := c.do(ctx, http.MethodGet, path, &r); err != nil {
		return sentry.Snapshot{}, fmt.Errorf("getting vehicle data: %w", err)
	}

	return sentry.Snapshot{
		Online:            r.Response.State == "" || r.Response.State == "online",
		SentryModeEnabled: r.Response.VehicleState.SentryMode,
		DisplayState:      r.Response.VehicleState.CenterDisplayState,
	}, nil
}

func (c *Client) SendCommand(ctx context.Context, v sentry.Vehicle, cmd sentry.Command) error {
	var r commandResponse
	path := fmt.Sprintf("/api/1/vehicles/%d/command/%s", v.ID, cmd)
	if err := c.do(ctx, http.MethodPost, path, &r); err != nil {
		return fmt.Errorf("sending command: %w", err)
	}

	if !r.Response.Result {
		return fmt.Errorf("command %s rejected: %s", cmd, r.Response.Reason)
	}
	return nil
}

// Close flushes the current token to the cache and releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	if err := c.tokens.flush(); err != nil {
		return fmt.Errorf("saving token cache: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestTimeout {
		_, _ = io.Copy(io.Discard, resp.Body)
		return sentry.ErrVehicleUnreachable
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
