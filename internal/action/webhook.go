package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nerrad567/flowline-core/internal/automation"
)

// Webhook defaults.
const (
	DefaultWebhookTimeout  = 30 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 60 * time.Second
	defaultBreakerInterval = 2 * time.Minute
	maxResponseBytes       = 1 << 20
)

// BreakerConfig configures the per-host circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

// WebhookConfig configures the webhook handler.
type WebhookConfig struct {
	Timeout time.Duration
	Breaker BreakerConfig
}

type webhookResponse struct {
	status int
	body   []byte
}

// WebhookHandler performs outbound HTTP calls for webhook actions.
type WebhookHandler struct {
	client *http.Client
	cfg    WebhookConfig
	logger Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*webhookResponse]
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(cfg WebhookConfig, logger Logger) *WebhookHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebhookTimeout
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = defaultBreakerFailures
	}
	if cfg.Breaker.Timeout <= 0 {
		cfg.Breaker.Timeout = defaultBreakerTimeout
	}
	if cfg.Breaker.Interval <= 0 {
		cfg.Breaker.Interval = defaultBreakerInterval
	}

	return &WebhookHandler{
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		logger:   loggerOrNoop(logger),
		breakers: make(map[string]*gobreaker.CircuitBreaker[*webhookResponse]),
	}
}

// Execute implements automation.ActionHandler.
//
// Config keys: url, method (default POST), headers (map), body (map or
// string; defaults to the rendered data template). Success means a
// response status below 400.
func (h *WebhookHandler) Execute(ctx context.Context, action automation.Action, execCtx map[string]any) (automation.Result, error) {
	rawURL, err := requireString(action, "url", execCtx)
	if err != nil {
		return nil, err
	}
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("%w: url %q is not an absolute http(s) URL", ErrMissingConfig, rawURL)
	}

	method := strings.ToUpper(configString(action, "method", execCtx))
	if method == "" {
		method = http.MethodPost
	}

	body, err := h.requestBody(action, execCtx)
	if err != nil {
		return nil, err
	}

	resp, err := h.breaker(target.Host).Execute(func() (*webhookResponse, error) {
		return h.do(ctx, method, target.String(), configMap(action, "headers", execCtx), body)
	})
	var srvErr serverError
	if err != nil && (resp == nil || !errors.As(err, &srvErr)) {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("webhook host %q circuit open: %w", target.Host, err)
		}
		return nil, err
	}

	data := map[string]any{
		"status_code": resp.status,
		"response":    decodeResponse(resp.body),
	}
	if resp.status >= http.StatusBadRequest {
		r := automation.Success(data)
		r[automation.KeySuccess] = false
		r[automation.KeyError] = fmt.Sprintf("webhook returned status %d", resp.status)
		return r, nil
	}
	return automation.Success(data), nil
}

func (h *WebhookHandler) requestBody(action automation.Action, execCtx map[string]any) ([]byte, error) {
	var payload any
	switch v := action.Config["body"].(type) {
	case nil:
		if action.DataTemplate == nil {
			return nil, nil
		}
		payload = automation.Render(action.DataTemplate, execCtx)
	case string:
		return []byte(automation.RenderString(v, execCtx)), nil
	default:
		payload = automation.RenderValue(v, execCtx)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling webhook body: %w", err)
	}
	return b, nil
}

// do performs the request. Transport errors and 5xx responses count as
// breaker failures; 4xx responses do not.
func (h *WebhookHandler) do(ctx context.Context, method, target string, headers map[string]any, body []byte) (*webhookResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building webhook request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "flowline-automation/1")
	for k, v := range headers {
		req.Header.Set(k, fmt.Sprint(v))
	}

	res, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling webhook: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading webhook response: %w", err)
	}

	resp := &webhookResponse{status: res.StatusCode, body: data}
	if res.StatusCode >= http.StatusInternalServerError {
		return resp, serverError(res.StatusCode)
	}
	return resp, nil
}

type serverError int

func (e serverError) Error() string { return fmt.Sprintf("webhook returned status %d", int(e)) }

func (h *WebhookHandler) breaker(host string) *gobreaker.CircuitBreaker[*webhookResponse] {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cb, ok := h.breakers[host]; ok {
		return cb
	}

	maxFailures := h.cfg.Breaker.MaxFailures
	cb := gobreaker.NewCircuitBreaker[*webhookResponse](gobreaker.Settings{
		Name:        "webhook:" + host,
		MaxRequests: 1,
		Interval:    h.cfg.Breaker.Interval,
		Timeout:     h.cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	h.breakers[host] = cb
	return cb
}

// BreakerState reports the breaker state for host, or closed when no call
// has been made to it yet.
func (h *WebhookHandler) BreakerState(host string) gobreaker.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cb, ok := h.breakers[host]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

func decodeResponse(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}
