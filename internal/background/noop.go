package background

import (
	"context"
	"fmt"
	"time"

	"github.com/agentcore/nexuscore/pkg/models"
)

// NoOpExecutor returns a fixed response after an optional delay. Useful
// for tests and for background agents with no executor configured yet.
type NoOpExecutor struct {
	Response string
	Err      error
	Delay    time.Duration
}

// Execute returns the configured response/error after Delay.
func (e *NoOpExecutor) Execute(ctx context.Context, agent models.BackgroundAgent, input string) (string, error) {
	if e.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.Delay):
		}
	}
	return e.Response, e.Err
}

// CallbackExecutor wraps a function as an Executor.
type CallbackExecutor struct {
	Fn func(ctx context.Context, agent models.BackgroundAgent, input string) (string, error)
}

// Execute calls the wrapped function.
func (e *CallbackExecutor) Execute(ctx context.Context, agent models.BackgroundAgent, input string) (string, error) {
	if e.Fn == nil {
		return "", fmt.Errorf("background: callback executor has no function")
	}
	return e.Fn(ctx, agent, input)
}
