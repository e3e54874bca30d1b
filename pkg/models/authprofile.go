package models

import "time"

// CredentialVariant distinguishes a bare API key from a full OAuth grant.
type CredentialVariant string

const (
	CredentialAPIKey CredentialVariant = "api_key"
	CredentialOAuth  CredentialVariant = "oauth"
)

// OAuthCredential holds the token material for an OAuth-backed auth
// profile.
type OAuthCredential struct {
	Token     string    `json:"token"`
	Refresh   string    `json:"refresh,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email,omitempty"`
}

// AuthProfileSource identifies how an auth profile entered the system.
type AuthProfileSource string

const (
	AuthSourceClaudeCode  AuthProfileSource = "claude_code"
	AuthSourceEnvironment AuthProfileSource = "environment"
	AuthSourceKeychain    AuthProfileSource = "keychain"
	AuthSourceManual      AuthProfileSource = "manual"
)

// FailoverHealth tracks consecutive failures and cooldown state for one
// credential, model, or provider — whatever the failover unit is. It is
// shared by AuthProfile and the provider-level failover orchestrator.
type FailoverHealth struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalSuccesses      int64      `json:"total_successes"`
	TotalFailures       int64      `json:"total_failures"`
	CooldownUntil       time.Time `json:"cooldown_until,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

// IsAvailable reports whether this unit may be selected right now: it is
// available unless still in its cooldown window.
func (h FailoverHealth) IsAvailable(now time.Time) bool {
	return !now.Before(h.CooldownUntil)
}

// RecordSuccess resets consecutive-failure tracking and clears cooldown.
func (h FailoverHealth) RecordSuccess() FailoverHealth {
	h.ConsecutiveFailures = 0
	h.TotalSuccesses++
	h.CooldownUntil = time.Time{}
	h.LastError = ""
	return h
}

// RecordFailure increments failure counters, records the error, and
// applies the supplied cooldown window.
func (h FailoverHealth) RecordFailure(now time.Time, cooldown time.Duration, errMsg string) FailoverHealth {
	h.ConsecutiveFailures++
	h.TotalFailures++
	h.LastError = errMsg
	h.CooldownUntil = now.Add(cooldown)
	return h
}

// AuthProfile is a discovered or manually entered credential for an LLM
// provider, with rolling health stats used by the failover orchestrator
// (C5) to skip profiles currently in cooldown.
type AuthProfile struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Provider    string            `json:"provider"`

	Variant CredentialVariant `json:"variant"`
	APIKey  string            `json:"api_key,omitempty"`
	OAuth   *OAuthCredential  `json:"oauth,omitempty"`

	Source AuthProfileSource `json:"source"`
	Health FailoverHealth    `json:"health"`

	Disabled bool `json:"disabled"`
}
