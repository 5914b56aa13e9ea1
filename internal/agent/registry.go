package agent

import (
	"context"
	"fmt"
	"sync"
)

// ToolFunc runs a tool. The returned value must be JSON-serializable;
// anything else is rendered with fmt when results are formatted.
type ToolFunc func(ctx context.Context, args Arguments) (any, error)

type ToolSpec struct {
	Name        string
	Description string
	Parameters  Schema
	Func        ToolFunc
}

// ToolDescription is the model-facing part of a ToolSpec.
type ToolDescription struct {
	Name        string
	Description string
	Parameters  Schema
}

// Resolver looks tools up by name.
type Resolver interface {
	Resolve(name string) (ToolSpec, error)
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolSpec
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolSpec)}
}

func (r *Registry) Register(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: tool name is empty", ErrInvalidSchema)
	}
	if spec.Func == nil {
		return fmt.Errorf("%w: tool %s has no function", ErrInvalidSchema, spec.Name)
	}
	if err := spec.Parameters.Validate(); err != nil {
		return fmt.Errorf("tool %s: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, spec.Name)
	}
	r.tools[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// MustRegister panics on error. Meant for static tool tables.
func (r *Registry) MustRegister(specs ...ToolSpec) {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Resolve(name string) (ToolSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.tools[name]
	if !ok {
		return ToolSpec{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return spec, nil
}

// DescribeAll lists registered tools in registration order.
func (r *Registry) DescribeAll() []ToolDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDescription, 0, len(r.order))
	for _, name := range r.order {
		spec := r.tools[name]
		out = append(out, ToolDescription{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
		})
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
