// Package webhook provides the executor that calls an HTTP endpoint for an action.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/ruleflow/pkg/actions"
	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/protocol"
	"github.com/dukex/ruleflow/pkg/template"
)

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 5

	// IdempotencyHeader carries the action's idempotency key on every request.
	IdempotencyHeader = "Idempotency-Key"
)

var (
	// ErrHTTPServerError is returned when the endpoint keeps answering 5xx.
	ErrHTTPServerError = errors.New("server error during webhook request")
	// ErrHTTPClientError is returned for 4xx answers, which are not retried.
	ErrHTTPClientError = errors.New("client error during webhook request")
)

// Executor performs webhook actions.
type Executor struct {
	client  *http.Client
	backoff func() backoff.BackOff
}

type Option func(*Executor)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		e.client = client
	}
}

// WithBackOff sets the policy used between retries of a 5xx answer.
func WithBackOff(policy func() backoff.BackOff) Option {
	return func(e *Executor) {
		e.backoff = policy
	}
}

func NewExecutor(opts ...Option) *Executor {
	executor := &Executor{
		client: &http.Client{Timeout: defaultTimeout},
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(backoff.WithInitialInterval(200 * time.Millisecond))
		},
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Schema returns the JSON schema for configuring this action.
func (*Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"description": "Endpoint to call. Supports templating with entity data.",
				"examples": []string{
					"https://hooks.example.com/orders",
					"https://api.example.com/orders/{{.entity_id}}/approve",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     http.MethodPost,
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "Headers to send. Values support templating.",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body. Supports templating.",
				"examples": []string{
					`{"order": "{{.entity_id}}", "total": {{.entity.total}}}`,
					`{{json .entity}}`,
				},
			},
			"retries": map[string]any{
				"type":        "integer",
				"description": "Retries on a 5xx answer or a transport failure",
				"default":     0,
				"minimum":     0,
				"maximum":     maxRetries,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}

func (e *Executor) ValidateConfig(config map[string]any) error {
	if err := actions.ValidateSchema(e.Schema(), config); err != nil {
		return err
	}

	cfg, err := decode(config)
	if err != nil {
		return err
	}

	for _, tmpl := range append([]string{cfg.URL, cfg.Body}, headerValues(cfg.Headers)...) {
		if _, err := template.Parse(tmpl); err != nil {
			return fmt.Errorf("%w: %w", actions.ErrInvalidConfig, err)
		}
	}

	return nil
}

func decode(config map[string]any) (models.WebhookConfig, error) {
	cfg, err := models.DecodeConfig[models.WebhookConfig](config)
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", actions.ErrInvalidConfig, err)
	}

	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}

	cfg.Method = strings.ToUpper(cfg.Method)

	return cfg, nil
}

func headerValues(headers map[string]string) []string {
	values := make([]string, 0, len(headers))
	for _, value := range headers {
		values = append(values, value)
	}

	return values
}

// Execute sends the request, retrying 5xx answers and transport failures up
// to the configured number of retries. The result carries the last answer.
func (e *Executor) Execute(ctx context.Context, config map[string]any, actionCtx protocol.ActionContext) (any, error) {
	cfg, err := decode(config)
	if err != nil {
		return nil, err
	}

	logger := actions.Logger(actionCtx, "webhook_action")
	data := template.ContextData(actionCtx, nil)
	attempts := 0

	var result map[string]any

	operation := func() error {
		attempts++

		req, err := buildRequest(ctx, cfg, data, actionCtx.IdempotencyKey)
		if err != nil {
			return backoff.Permanent(err)
		}

		logger.DebugContext(ctx, "Sending webhook", "method", req.Method, "url", req.URL.String(), "attempt", attempts)

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			return fmt.Errorf("webhook request failed: %w", err)
		}

		result, err = processResponse(resp)
		if err != nil {
			return backoff.Permanent(err)
		}

		switch status := resp.StatusCode; {
		case status >= http.StatusInternalServerError:
			return fmt.Errorf("%w: status %d", ErrHTTPServerError, status)
		case status >= http.StatusBadRequest:
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrHTTPClientError, status))
		}

		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(e.backoff(), min(cfg.Retries, maxRetries)), ctx)

	err = backoff.Retry(operation, policy)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		logger.WarnContext(ctx, "Webhook failed", "attempts", attempts, "error", err)

		return result, fmt.Errorf("%w: %w", models.ErrActionExecution, err)
	}

	logger.InfoContext(ctx, "Webhook delivered", "status_code", result["status_code"], "attempts", attempts)
	result["attempts"] = attempts

	return result, nil
}

func buildRequest(ctx context.Context, cfg models.WebhookConfig, data map[string]any, idempotencyKey string) (*http.Request, error) {
	url, err := template.RenderString(cfg.URL, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	body, err := template.RenderString(cfg.Body, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	for key, value := range cfg.Headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	return req, nil
}

func processResponse(resp *http.Response) (map[string]any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	if err := json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     resp.Header,
	}, nil
}
