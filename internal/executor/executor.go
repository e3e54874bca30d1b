// Package executor implements the agent executor (C6): resolves
// credentials, builds an allowlisted tool registry, and drives the
// LLM/tool conversation loop until a final answer or the iteration cap.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// Message is one turn in the conversation sent to/received from a
// Provider.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResultMsg
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultMsg is the outcome of one executed tool call.
type ToolResultMsg struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ToolSpec describes one tool to advertise to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ModelSpec names a provider + model pair.
type ModelSpec struct {
	Provider string
	Model    string
}

// CompletionRequest is sent to a Provider for one conversation turn.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature *float64
	MaxTokens   int
}

// FinishReason classifies why a Provider stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
)

// CompletionResult is one Provider response.
type CompletionResult struct {
	Message      Message
	FinishReason FinishReason
}

// Provider is the conversation backend for one model family. Concrete
// implementations (Anthropic, OpenAI, ...) live outside this package;
// the core only depends on this interface (spec.md's LLM-client-factory
// collaborator).
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// ProviderFactory builds a Provider bound to one resolved credential.
type ProviderFactory func(spec ModelSpec, apiKey string) (Provider, error)

// ErrIterationCapExceeded is returned when the conversation loop runs
// maxIterations turns without reaching a final (non-tool-call) message.
var ErrIterationCapExceeded = errors.New("executor: iteration cap exceeded")

// RunResult is the outcome of one agent execution.
type RunResult struct {
	FinalMessage string
	Messages     []Message
}

// Executor drives the LLM/tool conversation loop.
type Executor struct {
	MaxIterations int
	log           *slog.Logger
}

// New builds an Executor. maxIterations <= 0 defaults to 25.
func New(maxIterations int) *Executor {
	if maxIterations <= 0 {
		maxIterations = 25
	}
	return &Executor{MaxIterations: maxIterations, log: slog.Default().With("component", "executor")}
}

// Run builds the system prompt into the request, then loops:
// completion, tool execution, repeat — until the model returns a final
// message or MaxIterations is hit. steering, if non-nil, is drained
// non-blockingly between iterations and any pending instruction is
// injected as an extra user message, letting external callers steer a
// live run without restarting it. sw, if non-nil, is re-read at the top
// of every iteration: a switch_model call mid-conversation takes effect
// starting with the very next completion, not just the next task.
func (e *Executor) Run(ctx context.Context, provider Provider, model, systemPrompt string, temperature *float64, input string, tools *ToolRegistry, steering <-chan string, sw *ModelSwitch) (RunResult, error) {
	messages := []Message{{Role: "user", Content: input}}

	for i := 0; i < e.MaxIterations; i++ {
		if steering != nil {
			select {
			case instruction := <-steering:
				messages = append(messages, Message{Role: "user", Content: instruction})
			default:
			}
		}

		if sw != nil {
			if current, currentModel, ok := sw.Current(); ok {
				provider, model = current, currentModel
			}
		}

		req := CompletionRequest{
			Model:       model,
			System:      systemPrompt,
			Messages:    messages,
			Temperature: temperature,
		}
		if tools != nil {
			req.Tools = tools.Specs()
		}

		result, err := provider.Complete(ctx, req)
		if err != nil {
			return RunResult{}, err
		}
		messages = append(messages, result.Message)

		if result.FinishReason != FinishToolCalls || len(result.Message.ToolCalls) == 0 {
			return RunResult{FinalMessage: result.Message.Content, Messages: messages}, nil
		}

		toolResults := make([]ToolResultMsg, 0, len(result.Message.ToolCalls))
		for _, call := range result.Message.ToolCalls {
			toolResults = append(toolResults, e.executeTool(ctx, tools, call))
		}
		messages = append(messages, Message{Role: "tool", ToolResults: toolResults})
	}

	return RunResult{}, ErrIterationCapExceeded
}

func (e *Executor) executeTool(ctx context.Context, tools *ToolRegistry, call ToolCall) ToolResultMsg {
	if tools == nil {
		return ToolResultMsg{ToolCallID: call.ID, Content: "no tools registered", IsError: true}
	}
	tool, ok := tools.Get(call.Name)
	if !ok {
		return ToolResultMsg{ToolCallID: call.ID, Content: "unknown tool: " + call.Name, IsError: true}
	}
	out, err := tool.Execute(ctx, call.Input)
	if err != nil {
		return ToolResultMsg{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}
	return ToolResultMsg{ToolCallID: call.ID, Content: out}
}
