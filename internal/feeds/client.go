// Package feeds reads the upstream studio-management data the detectors
// snapshot. Every payload is validated against a JSON Schema before decoding.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "studio-notifier/internal/common/errors"
	commonhttp "studio-notifier/internal/common/http"
	"studio-notifier/internal/common/logger"
)

const maxPayloadBytes = 10 << 20

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Paths      map[string]string
}

// Client fetches feeds over HTTP.
type Client struct {
	config *Config
	http   *commonhttp.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		http: commonhttp.NewClient(commonhttp.Config{
			Timeout:    config.Timeout,
			MaxRetries: config.MaxRetries,
		}),
		logger: log.WithFields(map[string]interface{}{"component": "feeds"}),
	}
}

func (c *Client) Waitlist(ctx context.Context) ([]WaitlistEntry, error) {
	var out []WaitlistEntry
	if err := c.fetch(ctx, FeedWaitlist, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Schedule(ctx context.Context) ([]SessionCapacity, error) {
	var out []SessionCapacity
	if err := c.fetch(ctx, FeedSchedule, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Leads(ctx context.Context) ([]Lead, error) {
	var out []Lead
	if err := c.fetch(ctx, FeedLeads, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.fetch(ctx, FeedUsers, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Memberships(ctx context.Context) ([]Membership, error) {
	var out []Membership
	if err := c.fetch(ctx, FeedMemberships, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Trials(ctx context.Context) ([]Trial, error) {
	var out []Trial
	if err := c.fetch(ctx, FeedTrials, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) url(feed string) string {
	path := c.config.Paths[feed]
	if path == "" {
		path = "/" + feed
	}
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) fetch(ctx context.Context, feed string, out interface{}) error {
	start := time.Now()
	url := c.url(feed)

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}
		return req, nil
	})
	if err != nil {
		return apperrors.NewUpstreamFetchFailedError(feed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return apperrors.NewUpstreamFetchFailedError(feed, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return apperrors.NewUpstreamFetchFailedError(feed,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 256)))
	}

	payload, err := unwrap(body)
	if err != nil {
		return apperrors.NewInvalidFeedPayloadError(feed, err.Error())
	}

	if schema, ok := schemas[feed]; ok {
		res, err := schema.ValidateJSON(payload)
		if err != nil {
			return apperrors.NewInvalidFeedPayloadError(feed, err.Error())
		}
		if !res.Valid {
			return apperrors.NewInvalidFeedPayloadError(feed, res.Summary(3))
		}
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return apperrors.NewInvalidFeedPayloadError(feed, err.Error())
	}

	c.logger.Debug("feed fetched", map[string]interface{}{
		"feed":       feed,
		"bytes":      len(payload),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return nil
}

// unwrap accepts either a bare JSON array or an object carrying it under
// "data".
func unwrap(body []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		return []byte(trimmed), nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, fmt.Errorf("payload is not JSON: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("payload has no data array")
	}
	if string(envelope.Data) == "null" {
		return []byte("[]"), nil
	}
	return envelope.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
