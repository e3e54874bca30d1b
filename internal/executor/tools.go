package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/agentcore/nexuscore/pkg/models"
)

// Tool is one invocable capability an agent may be given access to.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// ToolFactory builds a Tool for registration. ok is false when the
// tool's dependencies (e.g. a storage handle) are unavailable; the
// caller should skip registration and log a warning rather than fail.
type ToolFactory func() (tool Tool, ok bool)

// ToolRegistry is a name-addressed set of tools available to one run.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the tool specifications to advertise to the model.
func (r *ToolRegistry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return specs
}

// BuildToolRegistry starts from an empty set for safety and merges in
// precisely the tools named in agent.Tools, per spec.md §4.6. A tool
// name with no matching factory, or whose factory reports its
// dependencies unavailable, is silently skipped with a logged warning
// rather than failing the build.
func BuildToolRegistry(agent models.Agent, factories map[string]ToolFactory, log *slog.Logger) *ToolRegistry {
	reg := NewToolRegistry()
	for _, name := range agent.Tools {
		factory, known := factories[name]
		if !known {
			log.Warn("unknown tool in allowlist, skipping", "tool", name, "agent", agent.ID)
			continue
		}
		tool, ok := factory()
		if !ok {
			log.Warn("tool dependencies unavailable, skipping", "tool", name, "agent", agent.ID)
			continue
		}
		reg.Register(tool)
	}
	return reg
}
