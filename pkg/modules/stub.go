package modules

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

type stubResult struct {
	ModuleType   string    `json:"module_type"`
	Subject      string    `json:"subject"`
	Summary      string    `json:"summary"`
	Dependencies []string  `json:"dependencies"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// NewStubRegistry binds a canned executor to every catalog module type.
// Meant for local development, demos and the CLI; production deployments
// register real executors instead.
func NewStubRegistry() *Registry {
	r := NewRegistry()
	for _, mt := range Catalog {
		mt := mt
		// Register only fails for unknown types, which cannot happen here.
		_ = r.Register(mt, ExecutorFunc(func(ctx context.Context, ec ExecutionContext) (json.RawMessage, error) {
			deps := make([]string, 0, len(ec.DependencyResults))
			for dep := range ec.DependencyResults {
				deps = append(deps, dep)
			}
			return json.Marshal(stubResult{
				ModuleType:   mt,
				Subject:      ec.Subject["name"],
				Summary:      "stub analysis for " + ec.Subject["name"],
				Dependencies: deps,
				GeneratedAt:  time.Now(),
			})
		}))
	}
	return r
}
