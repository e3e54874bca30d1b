// Package registry implements the agent registry and prompt store (C3):
// CRUD over agent definitions with cross-reference validation, and
// prompt text kept as side-file content addressed by agent id.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/pkg/models"
)

const (
	tableAgents  = "registry_agents"
	tablePrompts = "registry_prompts"
)

// ErrNotFound is returned when an agent id has no registered definition.
var ErrNotFound = errors.New("registry: agent not found")

// ErrInUse is returned by Delete when an agent still has live background
// agent references.
var ErrInUse = errors.New("registry: agent has live background agents")

// Dependencies are the collaborators the registry consults to validate
// cross-references it cannot resolve itself.
type Dependencies struct {
	// ToolExists reports whether name is a known tool.
	ToolExists func(name string) bool
	// SkillExists reports whether id is a known skill.
	SkillExists func(id string) bool
	// SecretExists reports whether name is a resolvable secret.
	SecretExists func(name string) bool
	// LiveBackgroundAgents returns the names of any background agents
	// still running against agentID. A non-empty result blocks deletion.
	LiveBackgroundAgents func(ctx context.Context, agentID string) ([]string, error)
}

// Registry stores agent metadata and prompt text over a durable Store.
type Registry struct {
	st   *store.Store
	deps Dependencies
	log  *slog.Logger
}

// New builds a Registry backed by st, consulting deps for cross-reference
// checks. Any nil dependency is treated as "nothing exists" / "nothing
// live", matching the conservative default of rejecting rather than
// silently accepting unverifiable references.
func New(st *store.Store, deps Dependencies) *Registry {
	return &Registry{st: st, deps: deps, log: slog.Default().With("component", "registry")}
}

func (r *Registry) agents() *store.Table[models.Agent] {
	return store.NewTable[models.Agent](r.st, tableAgents)
}

func (r *Registry) prompts() *store.Table[string] {
	return store.NewTable[string](r.st, tablePrompts)
}

// Validate runs the agent's own field-level checks plus the registry's
// cross-reference checks (tool/skill/secret existence), returning every
// violation found rather than stopping at the first.
func (r *Registry) Validate(agent models.Agent) models.ValidationErrors {
	var errs models.ValidationErrors
	if verr := agent.Validate(); verr != nil {
		var ve models.ValidationErrors
		if errors.As(verr, &ve) {
			errs = append(errs, ve...)
		} else {
			errs = append(errs, models.ValidationError{Field: "agent", Message: verr.Error()})
		}
	}

	toolExists := r.deps.ToolExists
	for _, name := range agent.Tools {
		if toolExists == nil || !toolExists(name) {
			errs = append(errs, models.ValidationError{
				Field:   "tools",
				Message: fmt.Sprintf("unknown tool %q", name),
			})
		}
	}

	skillExists := r.deps.SkillExists
	for _, id := range agent.SkillIDs {
		if skillExists == nil || !skillExists(id) {
			errs = append(errs, models.ValidationError{
				Field:   "skill_ids",
				Message: fmt.Sprintf("unknown skill %q", id),
			})
		}
	}

	if agent.APIKey.SecretName != "" {
		secretExists := r.deps.SecretExists
		if secretExists == nil || !secretExists(agent.APIKey.SecretName) {
			errs = append(errs, models.ValidationError{
				Field:   "api_key.secret_name",
				Message: fmt.Sprintf("unknown secret %q", agent.APIKey.SecretName),
			})
		}
	}

	if len(agent.ConfigSchema) > 0 {
		if err := validateConfigAgainstSchema(agent.ConfigSchema, agent.Config); err != nil {
			errs = append(errs, models.ValidationError{Field: "config", Message: err.Error()})
		}
	}

	return errs
}

// Create validates and stores a new agent definition plus its prompt
// text (if any). Returns the validation errors, if any, without writing
// anything.
func (r *Registry) Create(ctx context.Context, agent models.Agent, promptText string) error {
	if errs := r.Validate(agent); len(errs) > 0 {
		return errs
	}
	if err := r.agents().Put(ctx, agent.ID, agent); err != nil {
		return fmt.Errorf("registry: create %s: %w", agent.ID, err)
	}
	if promptText != "" {
		if err := r.prompts().Put(ctx, agent.ID, promptText); err != nil {
			return fmt.Errorf("registry: store prompt %s: %w", agent.ID, err)
		}
	}
	return nil
}

// Get returns the agent definition for id.
func (r *Registry) Get(ctx context.Context, id string) (models.Agent, error) {
	agent, err := r.agents().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Agent{}, ErrNotFound
		}
		return models.Agent{}, fmt.Errorf("registry: get %s: %w", id, err)
	}
	return agent, nil
}

// GetPrompt returns the prompt text stored for id, or "" if none.
func (r *Registry) GetPrompt(ctx context.Context, id string) (string, error) {
	text, err := r.prompts().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("registry: get prompt %s: %w", id, err)
	}
	return text, nil
}

// Update validates and overwrites an existing agent definition. The
// agent must already exist.
func (r *Registry) Update(ctx context.Context, agent models.Agent, promptText string) error {
	if _, err := r.Get(ctx, agent.ID); err != nil {
		return err
	}
	if errs := r.Validate(agent); len(errs) > 0 {
		return errs
	}
	if err := r.agents().Put(ctx, agent.ID, agent); err != nil {
		return fmt.Errorf("registry: update %s: %w", agent.ID, err)
	}
	if promptText != "" {
		if err := r.prompts().Put(ctx, agent.ID, promptText); err != nil {
			return fmt.Errorf("registry: store prompt %s: %w", agent.ID, err)
		}
	}
	return nil
}

// Delete removes an agent definition and its prompt text. Refuses when
// the agent has live background agents, returning ErrInUse wrapping the
// offending names.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	if r.deps.LiveBackgroundAgents != nil {
		live, err := r.deps.LiveBackgroundAgents(ctx, id)
		if err != nil {
			return fmt.Errorf("registry: delete %s: checking live background agents: %w", id, err)
		}
		if len(live) > 0 {
			return fmt.Errorf("%w: %v", ErrInUse, live)
		}
	}
	if err := r.agents().Delete(ctx, id); err != nil {
		return fmt.Errorf("registry: delete %s: %w", id, err)
	}
	if err := r.prompts().Delete(ctx, id); err != nil {
		return fmt.Errorf("registry: delete prompt %s: %w", id, err)
	}
	return nil
}

// List returns every registered agent, in no particular order beyond
// key order.
func (r *Registry) List(ctx context.Context) ([]models.Agent, error) {
	entries, err := r.agents().ScanPrefix(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	out := make([]models.Agent, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out, nil
}
