// Package webhook delivers run notifications to an external HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/policy"
)

const defaultTimeout = 10 * time.Second

// Outcomes reported to the Recorder.
const (
	OutcomeDelivered = "delivered"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Policy decides whether a notification is sent.
type Policy interface {
	Evaluate(ctx context.Context, input policy.Input) (policy.Decision, error)
}

// Recorder counts delivery outcomes.
type Recorder interface {
	RecordWebhook(outcome string)
}

// Envelope is the JSON body posted to the webhook URL.
type Envelope struct {
	Event     domain.WebhookEvent `json:"event"`
	UserID    string              `json:"user_id"`
	Timestamp time.Time           `json:"timestamp"`
	Data      any                 `json:"data"`
}

// Options configures a Notifier.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Policy     Policy
	Recorder   Recorder
	Logger     *slog.Logger
}

// Notifier posts webhook notifications.
type Notifier struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
	policy     Policy
	recorder   Recorder
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier for url.
func NewNotifier(url string, opts Options) *Notifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url:        url,
		timeout:    timeout,
		httpClient: client,
		policy:     opts.Policy,
		recorder:   opts.Recorder,
		logger:     logger.With("component", "webhook"),
	}
}

// Trigger evaluates the policy and delivers one notification synchronously.
// It returns false when the policy skipped the notification.
func (n *Notifier) Trigger(ctx context.Context, userID string, event domain.WebhookEvent, payload any) (bool, error) {
	deliver, err := n.allowed(ctx, userID, event, payload)
	if err != nil {
		n.record(OutcomeFailed)
		return false, err
	}
	if !deliver {
		n.record(OutcomeSkipped)
		return false, nil
	}

	if err := n.post(ctx, Envelope{
		Event:     event,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}); err != nil {
		n.record(OutcomeFailed)
		return false, err
	}
	n.record(OutcomeDelivered)
	return true, nil
}

// Fire delivers a notification in the background. Failures are logged.
func (n *Notifier) Fire(ctx context.Context, userID string, event domain.WebhookEvent, payload any) {
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if _, err := n.Trigger(ctx, userID, event, payload); err != nil {
			n.logger.Warn("failed to deliver webhook", "event", event, "user_id", userID, "error", err)
		}
	}()
}

// Wait blocks until every fired notification has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) allowed(ctx context.Context, userID string, event domain.WebhookEvent, payload any) (bool, error) {
	if n.policy == nil {
		return true, nil
	}
	// The policy sees the payload the way the receiver will.
	var doc any
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode webhook payload: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	decision, err := n.policy.Evaluate(ctx, policy.Input{
		Event:   string(event),
		UserID:  userID,
		Payload: doc,
	})
	if err != nil {
		return false, err
	}
	return decision == policy.DecisionDeliver, nil
}

func (n *Notifier) post(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode webhook: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", string(env.Event))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) record(outcome string) {
	if n.recorder != nil {
		n.recorder.RecordWebhook(outcome)
	}
}
