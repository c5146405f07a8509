package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/compass/pkg/config"
)

// Executor types.
const (
	ExecutorLog     = "log"
	ExecutorWebhook = "webhook"
)

// NewExecutor creates the executor selected by cfg.
func NewExecutor(cfg *config.ExecutorConfig, logger *slog.Logger) (ActionExecutor, error) {
	switch cfg.Type {
	case ExecutorLog, "":
		return NewLogExecutor(logger), nil
	case ExecutorWebhook:
		e, err := NewWebhookExecutor(&cfg.Webhook, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown executor type %q", cfg.Type)
	}
}

// LogExecutor logs actions and reports success without side effects. It is
// used for dry runs and local development.
type LogExecutor struct {
	logger *slog.Logger
}

// NewLogExecutor creates a LogExecutor.
func NewLogExecutor(logger *slog.Logger) *LogExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExecutor{logger: logger.With("component", "executor.log")}
}

// Execute implements ActionExecutor.
func (e *LogExecutor) Execute(ctx context.Context, action *Action) (*ActionResult, error) {
	e.logger.InfoContext(ctx, "Executing action",
		"recommendation_id", action.RecommendationID,
		"rule_id", action.RuleID,
		"action_type", action.ActionType,
		"target_object_ref", action.TargetObjectRef,
		"context_id", action.ContextID,
	)
	return &ActionResult{
		Success: true,
		Details: map[string]any{"executor": ExecutorLog},
	}, nil
}

// Webhook retry settings.
const (
	webhookMaxAttempts    = 3
	webhookInitialBackoff = 100 * time.Millisecond
	webhookMaxBodyBytes   = 1 << 20
)

// WebhookExecutor posts actions as JSON to an HTTP endpoint chosen by action
// type. A 2xx response is a success, 202 Accepted means the outcome will be
// reported later. The recommendation id is sent as the Idempotency-Key
// header so receivers can drop retried deliveries.
type WebhookExecutor struct {
	defaultURL string
	endpoints  map[string]string
	headers    map[string]string
	client     *http.Client
	backoff    time.Duration
}

// NewWebhookExecutor creates a webhook executor.
func NewWebhookExecutor(cfg *config.WebhookConfig, timeout time.Duration) (*WebhookExecutor, error) {
	if cfg.URL == "" && len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("webhook executor requires a url or endpoints")
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &WebhookExecutor{
		defaultURL: cfg.URL,
		endpoints:  cfg.Endpoints,
		headers:    cfg.Headers,
		client:     &http.Client{Transport: transport, Timeout: timeout},
		backoff:    webhookInitialBackoff,
	}, nil
}

func (e *WebhookExecutor) url(actionType string) string {
	if u, ok := e.endpoints[actionType]; ok {
		return u
	}
	return e.defaultURL
}

// Execute implements ActionExecutor. Network errors and 5xx responses are
// retried with exponential backoff; other failures are returned at once.
func (e *WebhookExecutor) Execute(ctx context.Context, action *Action) (*ActionResult, error) {
	url := e.url(action.ActionType)
	if url == "" {
		return nil, &ExecutorError{Executor: ExecutorWebhook, ActionType: action.ActionType, Message: "no endpoint configured"}
	}
	body, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action: %w", err)
	}

	var lastErr error
	backoff := e.backoff
	for attempt := 0; attempt < webhookMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		result, retry, err := e.post(ctx, url, body, action)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (e *WebhookExecutor) post(ctx context.Context, url string, body []byte, action *Action) (*ActionResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", action.RecommendationID)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, true, &ExecutorError{Executor: ExecutorWebhook, ActionType: action.ActionType, Message: err.Error()}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, webhookMaxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode >= 500, &ExecutorError{
			Executor:   ExecutorWebhook,
			ActionType: action.ActionType,
			StatusCode: resp.StatusCode,
			Message:    string(data),
		}
	}

	details := map[string]any{"status_code": resp.StatusCode}
	var decoded map[string]any
	if len(data) > 0 && json.Unmarshal(data, &decoded) == nil {
		for k, v := range decoded {
			details[k] = v
		}
	}
	return &ActionResult{
		Success: resp.StatusCode != http.StatusAccepted,
		Pending: resp.StatusCode == http.StatusAccepted,
		Details: details,
	}, false, nil
}
