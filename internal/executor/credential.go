package executor

import (
	"context"
	"errors"
	"time"

	"github.com/agentcore/nexuscore/pkg/models"
)

// ErrNoCredential is returned when no credential could be resolved for
// an LLM-mode agent through any step of the priority chain.
var ErrNoCredential = errors.New("executor: no credential available")

// wellKnownEnvVars maps a provider tag to the environment variable name
// conventionally used for its API key.
var wellKnownEnvVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

// SecretResolver resolves a named secret to its value. Implementations
// live outside the core (spec.md's credential resolver collaborator).
type SecretResolver func(ctx context.Context, name string) (string, bool, error)

// ProfileLookup returns every auth profile compatible with provider, in
// the order they should be tried.
type ProfileLookup func(provider string) []models.AuthProfile

// EnvLookup resolves an environment variable by name.
type EnvLookup func(name string) (string, bool)

// ResolveCredential implements spec.md §4.6's three-step priority chain:
// (1) the agent's own literal or secret-name binding, (2) the first
// available compatible auth profile, (3) the well-known environment
// variable for the agent's provider. CLI-mode agents return ("", nil):
// the CLI handles its own auth.
func ResolveCredential(ctx context.Context, agent models.Agent, secrets SecretResolver, profiles ProfileLookup, env EnvLookup) (string, error) {
	if agent.Mode == models.ExecutionModeCLI {
		return "", nil
	}

	if agent.APIKey.Literal != "" {
		return agent.APIKey.Literal, nil
	}

	if agent.APIKey.SecretName != "" && secrets != nil {
		if val, ok, err := secrets(ctx, agent.APIKey.SecretName); err != nil {
			return "", err
		} else if ok {
			return val, nil
		}
	}

	if profiles != nil {
		now := time.Now()
		for _, p := range profiles(agent.Provider) {
			if !p.Disabled && p.Health.IsAvailable(now) && !profileTokenExpired(p, now) {
				if key := credentialFromProfile(p); key != "" {
					return key, nil
				}
			}
		}
	}

	if env != nil {
		if name, ok := wellKnownEnvVars[agent.Provider]; ok {
			if val, ok := env(name); ok {
				return val, nil
			}
		}
	}

	return "", ErrNoCredential
}

// ResolveProviderAPIKey resolves a credential for provider directly,
// independent of any agent's own credential binding: secrets first (by
// the provider's well-known secret name, e.g. "ANTHROPIC_API_KEY"), then
// the identically-named environment variable. Used by tools like
// switch_model that target an arbitrary provider rather than the
// running agent's own configured one.
func ResolveProviderAPIKey(ctx context.Context, provider string, secrets SecretResolver, env EnvLookup) (string, bool, error) {
	name, known := wellKnownEnvVars[provider]
	if !known {
		return "", false, nil
	}
	if secrets != nil {
		if val, ok, err := secrets(ctx, name); err != nil {
			return "", false, err
		} else if ok {
			return val, true, nil
		}
	}
	if env != nil {
		if val, ok := env(name); ok {
			return val, true, nil
		}
	}
	return "", false, nil
}

func credentialFromProfile(p models.AuthProfile) string {
	if p.Variant == models.CredentialAPIKey {
		return p.APIKey
	}
	if p.OAuth != nil {
		return p.OAuth.Token
	}
	return ""
}

// isCredentialError reports whether msg looks like an authentication or
// quota failure, per spec.md §4.6's multi-profile failover trigger.
func isCredentialError(msg string) bool {
	for _, marker := range []string{"401", "403", "429", "rate limit", "unauthorized", "quota", "api key"} {
		if containsFold(msg, marker) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	sl, subl := []byte(s), []byte(substr)
	toLower := func(b byte) byte {
		if 'A' <= b && b <= 'Z' {
			return b + ('a' - 'A')
		}
		return b
	}
	if len(subl) == 0 {
		return true
	}
	for i := 0; i+len(subl) <= len(sl); i++ {
		match := true
		for j := range subl {
			if toLower(sl[i+j]) != toLower(subl[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
