package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultBaseURL matches the bridge's default listen address and base path.
const DefaultBaseURL = "http://127.0.0.1:8765/api"

// Client talks to a running sttray bridge.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError is a non-2xx bridge response. Message is the daemon's own text,
// e.g. "STT daemon is already running".
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// IsConflict reports whether err is a state conflict (already running / not running).
func IsConflict(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusConflict
}

// New creates a new sttray bridge client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the bridge answers at all.
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Status(ctx)
	if err != nil {
		c.logger.Debug("Bridge unreachable", "error", err)
	}
	return err == nil
}

// Start asks the supervisor to spawn the daemon and returns its message.
func (c *Client) Start(ctx context.Context) (string, error) {
	var ok okResponse
	if err := c.do(ctx, http.MethodPost, "/invoke/start_stt_daemon", &ok); err != nil {
		return "", err
	}
	return ok.Message, nil
}

// Stop asks the supervisor to force-kill the daemon and returns its message.
func (c *Client) Stop(ctx context.Context) (string, error) {
	var ok okResponse
	if err := c.do(ctx, http.MethodPost, "/invoke/stop_stt_daemon", &ok); err != nil {
		return "", err
	}
	return ok.Message, nil
}

// Status reports whether the supervisor holds a daemon handle.
func (c *Client) Status(ctx context.Context) (bool, error) {
	var running bool
	err := c.do(ctx, http.MethodGet, "/invoke/get_stt_status", &running)
	return running, err
}

// Info returns the diagnostic snapshot.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	err := c.do(ctx, http.MethodGet, "/info", &info)
	return info, err
}

// Events subscribes to the broadcast stream. The channel closes when ctx is
// cancelled or the connection drops.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	u := c.baseURL + "/events"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial events: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		for {
			var e Event
			if err := conn.ReadJSON(&e); err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("event stream ended", "error", err)
				}
				return
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// do performs one request and decodes a 200 body into out.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error}
}
