// Package observability exposes Prometheus metrics for the simulator.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xiaot623/gogo/simulator/internal/adapter/llm"
	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// Metrics collects the simulator's Prometheus metrics.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	registry.SetObserver(metrics)
type Metrics struct {
	// LLMRequestCounter counts simulated-user and summary LLM calls.
	// Labels: provider (openai|anthropic|mock), model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ConversationCounter counts finished conversations by terminal status.
	ConversationCounter *prometheus.CounterVec

	// ConversationTurns records the turn count of finished conversations.
	ConversationTurns prometheus.Histogram

	// RunCounter counts finished runs by terminal status.
	RunCounter *prometheus.CounterVec

	// ActiveRuns is the number of runs currently executing.
	ActiveRuns prometheus.Gauge

	// WebhookCounter counts webhook notifications by outcome (delivered|skipped|failed).
	WebhookCounter *prometheus.CounterVec

	// HTTPRequestCounter counts control API requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures control API latency in seconds.
	// Labels: method, path
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// registers with the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simulator_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simulator_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simulator_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ConversationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simulator_conversations_total",
				Help: "Total number of finished conversations by status",
			},
			[]string{"status"},
		),

		ConversationTurns: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "simulator_conversation_turns",
				Help:    "Number of turns in finished conversations",
				Buckets: []float64{0, 2, 4, 6, 10, 16, 20, 40},
			},
		),

		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simulator_runs_total",
				Help: "Total number of finished runs by status",
			},
			[]string{"status"},
		),

		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "simulator_active_runs",
				Help: "Number of runs currently executing",
			},
		),

		WebhookCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simulator_webhooks_total",
				Help: "Total number of webhook notifications by outcome",
			},
			[]string{"outcome"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simulator_http_requests_total",
				Help: "Total number of control API requests",
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simulator_http_request_duration_seconds",
				Help:    "Duration of control API requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveLLMCall records one upstream completion.
func (m *Metrics) ObserveLLMCall(provider llm.ProviderName, model string, elapsed time.Duration, usage llm.Usage, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p := string(provider)
	m.LLMRequestCounter.WithLabelValues(p, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(p, model).Observe(elapsed.Seconds())
	if usage.PromptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(p, model, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(p, model, "completion").Add(float64(usage.CompletionTokens))
	}
}

// ObserveConversation records a finished conversation.
func (m *Metrics) ObserveConversation(status domain.ConversationStatus, turns int) {
	m.ConversationCounter.WithLabelValues(string(status)).Inc()
	m.ConversationTurns.Observe(float64(turns))
}

// RunStarted increments the active runs gauge.
func (m *Metrics) RunStarted() {
	m.ActiveRuns.Inc()
}

// RunFinished decrements the active runs gauge and counts the outcome.
func (m *Metrics) RunFinished(status domain.RunStatus) {
	m.ActiveRuns.Dec()
	m.RunCounter.WithLabelValues(string(status)).Inc()
}

// RecordWebhook counts a webhook notification outcome.
func (m *Metrics) RecordWebhook(outcome string) {
	m.WebhookCounter.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records metrics for a control API request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, elapsed time.Duration) {
	m.HTTPRequestCounter.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
