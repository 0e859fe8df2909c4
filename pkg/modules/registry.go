package modules

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ExecutionContext carries everything an executor may consume: the subject
// of the analysis and the verbatim results of its dependencies. The
// scheduler never inspects result payloads.
type ExecutionContext struct {
	WorkflowID        int64
	UnitID            int64
	ModuleType        string
	Subject           map[string]string
	DependencyResults map[string]json.RawMessage
}

// Executor produces the result payload for one module type. Content is
// delegated to external collaborators; duration and cost are opaque here.
type Executor interface {
	Execute(ctx context.Context, ec ExecutionContext) (json.RawMessage, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, ec ExecutionContext) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, ec ExecutionContext) (json.RawMessage, error) {
	return f(ctx, ec)
}

// Registry maps module types to executor implementations. It is populated
// once at startup; the scheduler dispatches through Lookup rather than
// branching on type tags.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register binds an executor to a catalog module type. Re-registering
// replaces the previous binding.
func (r *Registry) Register(moduleType string, ex Executor) error {
	if !Known(moduleType) {
		return errors.Errorf("unknown module type '%s'", moduleType)
	}
	if ex == nil {
		return errors.Errorf("nil executor for module type '%s'", moduleType)
	}
	r.mu.Lock()
	r.executors[moduleType] = ex
	r.mu.Unlock()
	return nil
}

// Lookup returns the executor bound to the module type.
func (r *Registry) Lookup(moduleType string) (Executor, error) {
	r.mu.RLock()
	ex, ok := r.executors[moduleType]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("no executor registered for module type '%s'", moduleType)
	}
	return ex, nil
}
