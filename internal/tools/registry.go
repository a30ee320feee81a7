// Package tools holds the function definitions offered to the simulated user
// model and decodes the calls it makes.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xiaot623/gogo/simulator/internal/adapter/llm"
)

// DecoderFunc turns raw call arguments into a typed value.
type DecoderFunc func(args json.RawMessage) (any, error)

// Definition pairs a tool schema with its argument decoder.
type Definition struct {
	Spec   llm.ToolSpec
	Decode DecoderFunc
}

// Registry stores tool definitions keyed by tool name, preserving registration order.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
}

// DefaultRegistry holds the simulated user's send_message and end_conversation tools.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]Definition),
	}
}

// Register adds a definition.
func (r *Registry) Register(def Definition) error {
	name := def.Spec.Name
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Decode == nil {
		return fmt.Errorf("decoder is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.defs[name] = def
	r.order = append(r.order, name)
	return nil
}

// Specs returns the tool schemas in registration order.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.defs[name].Spec)
	}
	return specs
}

// Decode parses the arguments of a call to the named tool.
func (r *Registry) Decode(toolName string, args json.RawMessage) (any, error) {
	if toolName == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	r.mu.RLock()
	def, ok := r.defs[toolName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %s", toolName)
	}
	return def.Decode(args)
}

// MustRegister adds a definition to the default registry or panics.
func MustRegister(def Definition) {
	if err := DefaultRegistry.Register(def); err != nil {
		panic(err)
	}
}
