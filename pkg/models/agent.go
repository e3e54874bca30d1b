package models

import "time"

// ExecutionMode selects whether an agent is driven by an LLM conversation
// loop or by invoking a local CLI binary.
type ExecutionMode string

const (
	ExecutionModeLLM ExecutionMode = "llm"
	ExecutionModeCLI ExecutionMode = "cli"
)

// APIKeyBinding describes how an agent resolves its provider credential.
// Exactly one of Literal or SecretName should be set; SecretName defers
// resolution to the auth-profile/environment chain at execution time.
type APIKeyBinding struct {
	Literal    string `json:"literal,omitempty"`
	SecretName string `json:"secret_name,omitempty"`
}

// CLIConfig configures an agent that runs as a local CLI process rather
// than through an LLM conversation loop.
type CLIConfig struct {
	Binary  string        `json:"binary"`
	Args    []string      `json:"args,omitempty"`
	Cwd     string        `json:"cwd,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
	PTY     bool          `json:"pty,omitempty"`
}

// Agent is a configured, reusable unit of work: a named model/prompt
// combination (or CLI invocation) with an explicit tool allowlist and
// skill bindings.
type Agent struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id,omitempty"`
	Name         string         `json:"name"`
	PromptFile   string         `json:"prompt_file,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Model        string         `json:"model"`
	Provider     string         `json:"provider"`
	Temperature  *float64       `json:"temperature,omitempty"`
	Mode         ExecutionMode  `json:"mode"`
	Tools        []string       `json:"tools,omitempty"`
	SkillIDs     []string       `json:"skill_ids,omitempty"`
	APIKey       APIKeyBinding  `json:"api_key"`
	CLI          *CLIConfig     `json:"cli,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	ConfigSchema []byte         `json:"config_schema,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ValidationError reports a single field-level agent validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors aggregates one or more ValidationError values.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msg := e[0].Error()
	for _, extra := range e[1:] {
		msg += "; " + extra.Error()
	}
	return msg
}

// modelTemperatureCaps lists the maximum temperature accepted by model
// families known to reject values above their documented range. Models
// not listed fall back to the default [0, 2] range.
var modelTemperatureCaps = map[string]float64{
	"claude": 1.0,
}

// Validate checks structural invariants on an Agent definition: mode
// consistency, temperature range for the selected model family, and a
// non-empty name/model pair. It returns all violations found, not just
// the first.
func (a Agent) Validate() error {
	var errs ValidationErrors

	if a.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "must not be empty"})
	}

	switch a.Mode {
	case ExecutionModeLLM:
		if a.Model == "" {
			errs = append(errs, ValidationError{Field: "model", Message: "required for llm execution mode"})
		}
	case ExecutionModeCLI:
		if a.CLI == nil || a.CLI.Binary == "" {
			errs = append(errs, ValidationError{Field: "cli.binary", Message: "required for cli execution mode"})
		}
	default:
		errs = append(errs, ValidationError{Field: "mode", Message: "must be \"llm\" or \"cli\""})
	}

	if a.Temperature != nil {
		max := 2.0
		for prefix, cap := range modelTemperatureCaps {
			if hasPrefixFold(a.Model, prefix) {
				max = cap
				break
			}
		}
		if *a.Temperature < 0 || *a.Temperature > max {
			errs = append(errs, ValidationError{
				Field:   "temperature",
				Message: "out of range for model",
			})
		}
	}

	if a.APIKey.Literal == "" && a.APIKey.SecretName == "" && a.Mode == ExecutionModeLLM {
		errs = append(errs, ValidationError{Field: "api_key", Message: "either literal or secret_name must be set"})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
