package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentcore/nexuscore/internal/executor"
)

// switchModelProviderAliases maps the provider names an operator might
// type into the switch_model tool to the provider tag this core's
// ProviderFactory map is keyed by.
var switchModelProviderAliases = map[string]string{
	"openai":    "openai",
	"gpt":       "openai",
	"anthropic": "anthropic",
	"claude":    "anthropic",
}

func normalizeSwitchModelProvider(raw string) (string, bool) {
	name, ok := switchModelProviderAliases[strings.ToLower(strings.TrimSpace(raw))]
	return name, ok
}

// switchModelTool lets an agent change the provider/model its own run
// uses mid-conversation (spec.md §4.6's one named, allowlist-gated
// tool). It is only ever registered for an agent that lists
// "switch_model" in its tool allowlist — see runLLM.
type switchModelTool struct {
	sw        *executor.ModelSwitch
	factories map[string]executor.ProviderFactory
	secrets   executor.SecretResolver
	env       executor.EnvLookup
}

func newSwitchModelTool(sw *executor.ModelSwitch, factories map[string]executor.ProviderFactory, secrets executor.SecretResolver, env executor.EnvLookup) *switchModelTool {
	return &switchModelTool{sw: sw, factories: factories, secrets: secrets, env: env}
}

func (t *switchModelTool) Name() string { return "switch_model" }

func (t *switchModelTool) Description() string {
	return "Switch the active LLM provider and model for the current agent execution."
}

func (t *switchModelTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"description": "Both 'provider' and 'model' are required.",
		"properties": {
			"provider": {"type": "string", "description": "Provider selector (e.g. openai, anthropic)"},
			"model": {"type": "string", "description": "Model name to switch to"},
			"reason": {"type": "string", "description": "Optional reason for switching models"}
		},
		"required": ["provider", "model"]
	}`)
}

type switchModelInput struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Reason   string `json:"reason,omitempty"`
}

// Execute resolves the requested provider/model, builds a fresh
// Provider client for it (using the same credential-resolution
// convention as the agent's own startup path, but targeting the
// requested provider rather than the agent's configured one), and
// swaps it into the in-flight run's ModelSwitch.
func (t *switchModelTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var in switchModelInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("switch_model: decode input: %w", err)
	}
	model := strings.TrimSpace(in.Model)
	if strings.TrimSpace(in.Provider) == "" || model == "" {
		return "", fmt.Errorf("switch_model: both 'provider' and 'model' are required")
	}

	providerName, ok := normalizeSwitchModelProvider(in.Provider)
	if !ok {
		return "", fmt.Errorf("switch_model: unknown provider %q", in.Provider)
	}
	factory, ok := t.factories[providerName]
	if !ok {
		return "", fmt.Errorf("switch_model: no provider factory registered for %q", providerName)
	}

	apiKey, ok, err := executor.ResolveProviderAPIKey(ctx, providerName, t.secrets, t.env)
	if err != nil {
		return "", fmt.Errorf("switch_model: resolve credential: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("switch_model: no API key available for provider %q", providerName)
	}

	newProvider, err := factory(executor.ModelSpec{Provider: providerName, Model: model}, apiKey)
	if err != nil {
		return "", fmt.Errorf("switch_model: build provider: %w", err)
	}

	prevProvider, prevModel := t.sw.Set(newProvider, providerName, model)

	payload, err := json.Marshal(map[string]any{
		"switched": true,
		"from":     map[string]string{"provider": prevProvider, "model": prevModel},
		"to":       map[string]string{"provider": providerName, "model": model},
		"reason":   in.Reason,
	})
	if err != nil {
		return "", fmt.Errorf("switch_model: encode result: %w", err)
	}
	return string(payload), nil
}

// withSwitchModelTool returns a copy of base with "switch_model" bound
// to a factory closing over sw, so BuildToolRegistry can register it
// for this one run without mutating the Dispatcher's shared tool map.
func withSwitchModelTool(base map[string]executor.ToolFactory, sw *executor.ModelSwitch, factories map[string]executor.ProviderFactory, secrets executor.SecretResolver, env executor.EnvLookup) map[string]executor.ToolFactory {
	merged := make(map[string]executor.ToolFactory, len(base)+1)
	for name, f := range base {
		merged[name] = f
	}
	merged["switch_model"] = func() (executor.Tool, bool) {
		return newSwitchModelTool(sw, factories, secrets, env), true
	}
	return merged
}

func allowlists(tools []string, name string) bool {
	for _, t := range tools {
		if t == name {
			return true
		}
	}
	return false
}
