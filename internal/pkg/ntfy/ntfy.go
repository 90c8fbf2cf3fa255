package ntfy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultServer = "https://ntfy.sh"

type Config struct {
	Server  string
	Topic   string
	Token   string
	Tags    []string
	Timeout time.Duration
}

type response struct {
	ID    string `json:"id"`
	Event string `json:"event"`
}

type Client struct {
	url        string
	token      string
	tags       []string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewClient(cfg Config, logger *zap.SugaredLogger) (*Client, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("ntfy topic is required")
	}
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}

	return &Client{
		url:        fmt.Sprintf("%s/%s", strings.TrimRight(cfg.Server, "/"), cfg.Topic),
		token:      cfg.Token,
		tags:       cfg.Tags,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

func (c *Client) Notify(ctx context.Context, title, body, priority string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating ntfy request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	if len(c.tags) > 0 {
		req.Header.Set("Tags", strings.Join(c.tags, ","))
	}
	if c.token != "" {
		c.logger.Debug("Sending message with auth token")
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy response code %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decoding ntfy response: %w", err)
	}

	c.logger.Infof("response from ntfy: (id: %s) (event: %s)", r.ID, r.Event)
	return nil
}
