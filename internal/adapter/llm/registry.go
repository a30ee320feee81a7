package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Completer is the calling surface the simulated user and summary generator depend on.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

type route struct {
	match    func(model string) bool
	provider Provider
}

// Registry routes a request to a provider by model name. The first matching
// route wins; unmatched models go to the fallback.
type Registry struct {
	routes   []route
	byName   map[ProviderName]Provider
	fallback Provider
	observer Observer
}

var _ Completer = (*Registry)(nil)

// NewRegistry creates a registry whose unmatched models use fallback.
func NewRegistry(fallback Provider) *Registry {
	r := &Registry{byName: make(map[ProviderName]Provider)}
	if fallback != nil {
		r.fallback = fallback
		r.byName[fallback.Name()] = fallback
	}
	return r
}

// Register adds a provider selected when match reports true for the model.
func (r *Registry) Register(match func(model string) bool, p Provider) {
	r.routes = append(r.routes, route{match: match, provider: p})
	r.byName[p.Name()] = p
}

// SetObserver installs a hook called after every completion.
func (r *Registry) SetObserver(o Observer) {
	r.observer = o
}

// Resolve returns the provider that handles req.
func (r *Registry) Resolve(req *Request) (Provider, error) {
	if req.Provider != "" {
		if p, ok := r.byName[req.Provider]; ok {
			return p, nil
		}
		return nil, fmt.Errorf("unknown provider %q", req.Provider)
	}
	for _, rt := range r.routes {
		if rt.match(req.Model) {
			return rt.provider, nil
		}
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("no provider for model %q", req.Model)
	}
	return r.fallback, nil
}

// Complete resolves the provider for req and forwards the call.
func (r *Registry) Complete(ctx context.Context, req *Request) (*Response, error) {
	p, err := r.Resolve(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.Complete(ctx, req)
	if r.observer != nil {
		var usage Usage
		if resp != nil {
			usage = resp.Usage
		}
		r.observer.ObserveLLMCall(p.Name(), req.Model, time.Since(start), usage, err)
	}
	return resp, err
}

// Options configures NewDefaultRegistry.
type Options struct {
	OpenAIBaseURL    string
	AnthropicBaseURL string
	Mock             bool
}

// NewDefaultRegistry wires the Anthropic adapter for claude* models and the
// OpenAI adapter for everything else. With Mock set every model is answered
// by the scripted MockProvider.
func NewDefaultRegistry(opts Options) *Registry {
	if opts.Mock {
		slog.Info("mock mode enabled, using scripted LLM provider")
		mock := NewMockProvider()
		r := NewRegistry(mock)
		// Tests pinned to a provider still run offline.
		r.byName[ProviderOpenAI] = mock
		r.byName[ProviderAnthropic] = mock
		return r
	}

	r := NewRegistry(NewOpenAIProvider(OpenAIConfig{BaseURL: opts.OpenAIBaseURL}))
	r.Register(isAnthropicModel, NewAnthropicProvider(AnthropicConfig{BaseURL: opts.AnthropicBaseURL}))
	return r
}
