// Package dispatch wires the registry (C3), executor (C6), CLI runner
// (C7), security policy (C10/C14), and failover orchestrator (C5) into
// the one operation the rest of the core actually needs: "run this
// agent against this input and return its final text." It is the
// worker-side counterpart to internal/queue's storage-side task model
// and internal/background's scheduling model — both hand it an agent
// and an input string and wait for a result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/agentcore/nexuscore/internal/cliexec"
	"github.com/agentcore/nexuscore/internal/events"
	"github.com/agentcore/nexuscore/internal/executor"
	"github.com/agentcore/nexuscore/internal/failover"
	"github.com/agentcore/nexuscore/internal/registry"
	"github.com/agentcore/nexuscore/internal/security"
	"github.com/agentcore/nexuscore/pkg/models"
)

// ErrAgentNotFound is returned when the registry has no definition for
// a task's agent id.
var ErrAgentNotFound = errors.New("dispatch: agent not found")

// ErrCommandBlocked is returned when the security policy blocks a
// CLI-mode agent's command outright.
var ErrCommandBlocked = errors.New("dispatch: command blocked by security policy")

// ErrApprovalDenied is returned when a pending approval is rejected or
// times out before the CLI command runs.
var ErrApprovalDenied = errors.New("dispatch: approval denied or timed out")

// Dependencies bundles the collaborators Dispatcher needs beyond the
// components it directly wraps.
type Dependencies struct {
	Registry   *registry.Registry
	Executor   *executor.Executor
	Failover   *failover.Orchestrator
	Retry      failover.RetryConfig
	Approvals  *security.ApprovalManager
	Policy     models.SecurityPolicy
	Factories  map[string]executor.ProviderFactory
	Tools      map[string]executor.ToolFactory
	Secrets    executor.SecretResolver
	Profiles   executor.ProfileLookup
	Now        func() time.Time
}

// Dispatcher executes one agent definition against one input string,
// choosing the LLM or CLI path per the agent's mode.
type Dispatcher struct {
	deps Dependencies
	log  *slog.Logger
}

// New builds a Dispatcher. Nil Secrets/Profiles/Factories/Tools/Now are
// replaced with safe defaults (no secrets resolvable, no auth profiles,
// no providers registered, no tools registered, time.Now).
func New(deps Dependencies) *Dispatcher {
	if deps.Secrets == nil {
		deps.Secrets = func(ctx context.Context, name string) (string, bool, error) { return "", false, nil }
	}
	if deps.Profiles == nil {
		deps.Profiles = func(provider string) []models.AuthProfile { return nil }
	}
	if deps.Factories == nil {
		deps.Factories = map[string]executor.ProviderFactory{}
	}
	if deps.Tools == nil {
		deps.Tools = map[string]executor.ToolFactory{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Dispatcher{deps: deps, log: slog.Default().With("component", "dispatch")}
}

func envLookup(name string) (string, bool) { return os.LookupEnv(name) }

// Run executes agent against input, emitting lifecycle events to sink
// if non-nil, and returns the final text result.
func (d *Dispatcher) Run(ctx context.Context, agent models.Agent, input string, emit *events.Emitter) (string, error) {
	if emit != nil {
		emit.Started(ctx, agent.Name, agent.ID, string(agent.Mode))
	}

	start := d.deps.Now()
	var result string
	var err error
	switch agent.Mode {
	case models.ExecutionModeCLI:
		result, err = d.runCLI(ctx, agent, input)
	default:
		result, err = d.runLLM(ctx, agent, input)
	}
	duration := d.deps.Now().Sub(start)

	if emit != nil {
		if err != nil {
			emit.Failed(ctx, err.Error(), "", duration, isTransientDispatchError(err))
		} else {
			emit.Completed(ctx, result, duration, nil)
		}
	}
	return result, err
}

// RunByID resolves agent by id through the registry, then runs it.
func (d *Dispatcher) RunByID(ctx context.Context, agentID, input string, emit *events.Emitter) (string, error) {
	agent, err := d.deps.Registry.Get(ctx, agentID)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrAgentNotFound, agentID, err)
	}
	return d.Run(ctx, agent, input, emit)
}

func (d *Dispatcher) runLLM(ctx context.Context, agent models.Agent, input string) (string, error) {
	apiKey, err := executor.ResolveCredential(ctx, agent, d.deps.Secrets, d.deps.Profiles, envLookup)
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}

	toolFactories := d.deps.Tools
	var sw *executor.ModelSwitch
	if allowlists(agent.Tools, "switch_model") {
		sw = executor.NewModelSwitch()
		toolFactories = withSwitchModelTool(d.deps.Tools, sw, d.deps.Factories, d.deps.Secrets, envLookup)
	}
	tools := executor.BuildToolRegistry(agent, toolFactories, d.log)

	fn := func(ctx context.Context, model string) (string, error) {
		factory := d.deps.Factories[agent.Provider]
		if factory == nil {
			return "", fmt.Errorf("dispatch: no provider factory registered for %q", agent.Provider)
		}
		provider, err := factory(executor.ModelSpec{Provider: agent.Provider, Model: model}, apiKey)
		if err != nil {
			return "", err
		}
		run, err := d.deps.Executor.Run(ctx, provider, model, agent.SystemPrompt, agent.Temperature, input, tools, nil, sw)
		if err != nil {
			return "", err
		}
		return run.FinalMessage, nil
	}

	if d.deps.Failover == nil {
		return fn(ctx, agent.Model)
	}
	result, _, err := d.deps.Failover.ExecuteWithRetry(ctx, d.deps.Retry, d.deps.Now(), fn)
	return result, err
}

func (d *Dispatcher) runCLI(ctx context.Context, agent models.Agent, input string) (string, error) {
	if agent.CLI == nil {
		return "", fmt.Errorf("dispatch: CLI-mode agent %q has no CLI config", agent.ID)
	}

	command := agent.CLI.Binary
	decision := security.Evaluate(d.deps.Policy, command)
	switch decision.Action {
	case models.PolicyActionBlock:
		return "", fmt.Errorf("%w: %s", ErrCommandBlocked, decision.Reason)
	case models.PolicyActionRequireApproval:
		if err := d.awaitApproval(ctx, agent, command); err != nil {
			return "", err
		}
	}

	result, err := cliexec.Run(ctx, *agent.CLI, input, nil)
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

func (d *Dispatcher) awaitApproval(ctx context.Context, agent models.Agent, command string) error {
	if d.deps.Approvals == nil {
		return fmt.Errorf("%w: no approval manager configured", ErrApprovalDenied)
	}
	now := d.deps.Now()
	id, err := d.deps.Approvals.CreateApproval(ctx, "", agent.ID, command, agent.CLI.Cwd, now, d.deps.Policy.ApprovalTimeout)
	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			approval, err := d.deps.Approvals.CheckStatus(ctx, id, d.deps.Now())
			if err != nil {
				return err
			}
			switch approval.Status {
			case models.ApprovalStatusApproved:
				return nil
			case models.ApprovalStatusRejected, models.ApprovalStatusExpired:
				return fmt.Errorf("%w: %s", ErrApprovalDenied, approval.Status)
			}
		}
	}
}

func isTransientDispatchError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, failover.ErrNoAvailableModel)
}
