package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/lamallamadel/outbound-gateway/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	ErrNoEndpoint  = errors.New("no provider endpoint for channel")
	ErrCircuitOpen = errors.New("provider circuit is open")
)

// SendRequest is the provider wire contract for a single outbound message.
type SendRequest struct {
	MessageID    string        `json:"message_id"`
	Channel      model.Channel `json:"channel"`
	To           string        `json:"to"`
	TemplateCode string        `json:"template_code,omitempty"`
	Subject      string        `json:"subject,omitempty"`
	Payload      model.Payload `json:"payload"`
}

// SendResponse is what the provider reports back synchronously. A response
// with Success=false carries the provider error code; transport failures
// surface as Go errors instead.
type SendResponse struct {
	Success           bool       `json:"success"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	Delivered         bool       `json:"delivered,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	ProviderErrorCode string     `json:"provider_error_code,omitempty"`
	ProviderMessage   string     `json:"provider_message,omitempty"`
}

type Config struct {
	// Endpoints maps a channel to its provider base URL.
	Endpoints map[model.Channel]string

	Timeout                 time.Duration
	MaxConns                int
	CircuitBreakerThreshold int32
	CircuitBreakerTimeout   time.Duration
}

type endpoint struct {
	url              string
	consecutiveFails atomic.Int32
	circuitOpenUntil atomic.Int64
}

func (e *endpoint) available() bool {
	return time.Now().Unix() > e.circuitOpenUntil.Load()
}

// Client sends outbound messages to the per-channel provider HTTP endpoints.
// Each endpoint carries its own circuit breaker so a dead email relay does
// not block WhatsApp traffic.
type Client struct {
	config    *Config
	endpoints map[model.Channel]*endpoint
	http      *fasthttp.Client
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if len(config.Endpoints) == 0 {
		return nil, errors.New("at least one provider endpoint is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = 5
	}
	if config.CircuitBreakerTimeout <= 0 {
		config.CircuitBreakerTimeout = 30 * time.Second
	}

	c := &Client{
		config:    config,
		endpoints: make(map[model.Channel]*endpoint, len(config.Endpoints)),
		http: &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
	}
	for ch, url := range config.Endpoints {
		c.endpoints[ch] = &endpoint{url: strings.TrimRight(url, "/")}
		logger.Info("Provider endpoint initialized", "channel", string(ch), "url", url)
	}
	return c, nil
}

// Send delivers one message to the channel's provider. The returned response
// may report failure; the error is only non-nil for transport-level problems
// where no provider verdict exists.
func (c *Client) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	ep, ok := c.endpoints[req.Channel]
	if !ok {
		return nil, ErrNoEndpoint
	}
	if !ep.available() {
		return nil, ErrCircuitOpen
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	raw, err := c.doRequest(ctx, ep, "POST", "/api/v1/messages/send", body)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		c.recordFailure(ep, req.Channel)
		return nil, err
	}
	ep.consecutiveFails.Store(0)

	var resp SendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	logger.Info("Message forwarded to provider",
		"message_id", req.MessageID,
		"channel", string(req.Channel),
		"success", resp.Success,
		"latency_ms", latency)

	return &resp, nil
}

// Healthy probes the channel's provider health endpoint.
func (c *Client) Healthy(ctx context.Context, channel model.Channel) bool {
	ep, ok := c.endpoints[channel]
	if !ok {
		return false
	}
	raw, err := c.doRequest(ctx, ep, "GET", "/health", nil)
	if err != nil {
		return false
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &health); err != nil {
		return false
	}
	return health.Status == "healthy"
}

func (c *Client) doRequest(ctx context.Context, ep *endpoint, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(ep.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusAccepted {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())
	return result, nil
}

func (c *Client) recordFailure(ep *endpoint, channel model.Channel) {
	fails := ep.consecutiveFails.Add(1)
	if fails >= c.config.CircuitBreakerThreshold {
		openUntil := time.Now().Add(c.config.CircuitBreakerTimeout).Unix()
		ep.circuitOpenUntil.Store(openUntil)
		ep.consecutiveFails.Store(0)
		logger.Warn("Circuit breaker opened",
			"channel", string(channel),
			"consecutive_fails", fails,
			"timeout", c.config.CircuitBreakerTimeout)
	}
}
