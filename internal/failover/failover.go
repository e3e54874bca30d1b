// Package failover implements LLM swap and failover (C5): circuit-
// breaker/cooldown health tracking across a primary model and its
// ordered fallbacks, plus a transient-error retry loop that wraps around
// the failover sweep.
package failover

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/nexuscore/internal/backoff"
)

// FailoverConfig describes one model's place in the failover chain.
// CLI models disable fallback (Fallbacks is empty) because CLI
// credentials are not interchangeable with API models.
type FailoverConfig struct {
	Primary          string
	Fallbacks        []string
	CooldownSeconds  int
	FailureThreshold int
	AutoRecover      bool
}

// RetryConfig controls the transient-error retry loop, distinct from
// model-health failover.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterEnabled     bool
	JitterFactor      float64
}

// DefaultRetryConfig mirrors the defaults used by internal/backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
		JitterEnabled:     true,
		JitterFactor:      0.1,
	}
}

func (r RetryConfig) policy() backoff.BackoffPolicy {
	jitter := 0.0
	if r.JitterEnabled {
		jitter = r.JitterFactor
	}
	return backoff.BackoffPolicy{
		InitialMs: float64(r.InitialDelay.Milliseconds()),
		MaxMs:     float64(r.MaxDelay.Milliseconds()),
		Factor:    r.BackoffMultiplier,
		Jitter:    jitter,
	}
}

// modelHealth tracks cooldown state for one model name.
type modelHealth struct {
	consecutiveFailures int
	cooldownUntil       time.Time
}

func (h modelHealth) isAvailable(now time.Time) bool {
	return !now.Before(h.cooldownUntil)
}

// Orchestrator runs execute_with_failover over a FailoverConfig's model
// chain, tracking per-model health.
type Orchestrator struct {
	cfg FailoverConfig
	log *slog.Logger

	mu     sync.Mutex
	health map[string]modelHealth
}

// New builds an Orchestrator for the given failover configuration.
func New(cfg FailoverConfig) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		log:    slog.Default().With("component", "failover"),
		health: make(map[string]modelHealth),
	}
}

// ErrNoAvailableModel is returned when every model in the chain is
// currently in cooldown.
var ErrNoAvailableModel = errors.New("failover: no available model")

// models returns the chain in priority order: primary, then fallbacks.
func (o *Orchestrator) models() []string {
	out := make([]string, 0, 1+len(o.cfg.Fallbacks))
	out = append(out, o.cfg.Primary)
	out = append(out, o.cfg.Fallbacks...)
	return out
}

// GetAvailableModel returns the primary if available, else the first
// available fallback, else ("", false).
func (o *Orchestrator) GetAvailableModel(now time.Time) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, m := range o.models() {
		if o.health[m].isAvailable(now) {
			return m, true
		}
	}
	return "", false
}

// RecordSuccess clears cooldown (when AutoRecover) and resets the
// consecutive-failure counter for model.
func (o *Orchestrator) RecordSuccess(model string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := o.health[model]
	h.consecutiveFailures = 0
	if o.cfg.AutoRecover {
		h.cooldownUntil = time.Time{}
	}
	o.health[model] = h
}

// RecordFailure increments the failure count for model and, once it
// reaches FailureThreshold, opens a cooldown window of CooldownSeconds.
func (o *Orchestrator) RecordFailure(model string, now time.Time, errMsg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := o.health[model]
	h.consecutiveFailures++
	if h.consecutiveFailures >= o.cfg.FailureThreshold {
		h.cooldownUntil = now.Add(time.Duration(o.cfg.CooldownSeconds) * time.Second)
	}
	o.health[model] = h
	o.log.Warn("model failure recorded", "model", model, "consecutive_failures", h.consecutiveFailures, "error", errMsg)
}

// Fn is the operation executed against a chosen model.
type Fn func(ctx context.Context, model string) (string, error)

// ExecuteWithFailover iterates models in priority order, skipping those
// in cooldown, calling fn(model) for the first one available. On success
// it records success and returns (value, model, nil). On failure it
// records the failure and tries the next model.
func (o *Orchestrator) ExecuteWithFailover(ctx context.Context, now time.Time, fn Fn) (string, string, error) {
	var lastErr error
	tried := false
	for _, m := range o.models() {
		o.mu.Lock()
		available := o.health[m].isAvailable(now)
		o.mu.Unlock()
		if !available {
			continue
		}
		tried = true
		val, err := fn(ctx, m)
		if err == nil {
			o.RecordSuccess(m)
			return val, m, nil
		}
		lastErr = err
		o.RecordFailure(m, now, err.Error())
	}
	if !tried {
		return "", "", ErrNoAvailableModel
	}
	return "", "", lastErr
}

// ExecuteWithRetry wraps ExecuteWithFailover in the transient-error retry
// loop: each retry attempt restarts the failover sweep from the primary
// model. Retry handles transient infrastructure errors; failover handles
// model-level health — the two loops are independent by design.
func (o *Orchestrator) ExecuteWithRetry(ctx context.Context, retry RetryConfig, now time.Time, fn Fn) (string, string, error) {
	var lastErr error
	policy := retry.policy()

	for attempt := 1; ; attempt++ {
		val, model, err := o.ExecuteWithFailover(ctx, now, fn)
		if err == nil {
			return val, model, nil
		}
		lastErr = err

		if !shouldRetry(err, attempt, retry.MaxRetries) {
			return "", "", lastErr
		}

		delay := backoff.ComputeBackoff(policy, attempt)
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(delay):
		}
	}
}

// shouldRetry reports whether attempt should be retried: attempt must be
// under the cap AND the error must classify as transient.
func shouldRetry(err error, attempt, maxRetries int) bool {
	return attempt < maxRetries && isTransientError(err)
}

var transientMarkers = []string{
	"timeout", "deadline exceeded", "429", "502", "503", "504",
	"rate limit", "connection reset", "connection refused",
	"temporarily unavailable", "econnreset",
}

var nonTransientMarkers = []string{
	"401", "403", "404", "400", "invalid api key",
}

// isTransientError classifies an error by matching its message against a
// known transient-error vocabulary, with an explicit non-transient deny
// list taking precedence.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range nonTransientMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
