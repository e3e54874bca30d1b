// Package providers supplies concrete executor.Provider implementations
// for the two LLM backends the executor's ProviderFactory seam expects:
// Anthropic's Claude API and OpenAI's Chat Completions API. Neither is
// itself part of the core's contract — the executor only ever depends
// on the Provider interface — but a real factory needs a real client
// behind it, so these wrap the two SDKs the rest of the pack already
// vendors.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentcore/nexuscore/internal/executor"
)

// AnthropicProvider drives one conversation turn through the Anthropic
// Messages API in non-streaming mode: the executor's conversation loop
// already iterates turn-by-turn, so a single blocking call per Complete
// is a faithful, simpler fit than re-assembling a token stream.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider satisfies executor.ProviderFactory: spec.Model
// picks the default model for this client, apiKey authenticates it.
func NewAnthropicProvider(spec executor.ModelSpec, apiKey string) (executor.Provider, error) {
	if apiKey == "" {
		return nil, errors.New("providers: anthropic api key is required")
	}
	model := spec.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 4096,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete converts the executor's neutral Message/ToolSpec shapes into
// Anthropic's params, issues one Messages.New call, and converts the
// response back. Tool-call and tool-result blocks round-trip through
// executor.ToolCall/ToolResultMsg the same way the conversation loop
// already threads them between turns.
func (p *AnthropicProvider) Complete(ctx context.Context, req executor.CompletionRequest) (executor.CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolSpecs(req.Tools)
		if err != nil {
			return executor.CompletionResult{}, err
		}
		params.Tools = tools
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return executor.CompletionResult{}, fmt.Errorf("providers: anthropic completion failed: %w", err)
	}

	result := executor.Message{Role: "assistant"}
	finish := executor.FinishStop
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Content += variant.Text
		case anthropic.ToolUseBlock:
			result.ToolCalls = append(result.ToolCalls, executor.ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: variant.Input,
			})
			finish = executor.FinishToolCalls
		}
	}

	return executor.CompletionResult{Message: result, FinishReason: finish}, nil
}

func convertMessages(messages []executor.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for _, tr := range m.ToolResults {
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			if len(tc.Input) > 0 {
				_ = json.Unmarshal(tc.Input, &input)
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result
}

func convertToolSpecs(tools []executor.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			return nil, fmt.Errorf("providers: invalid tool schema for %s: %w", t.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("providers: invalid tool schema for %s: missing tool definition", t.Name)
		}
		toolParam.OfTool.Description = anthropic.String(t.Description)
		result = append(result, toolParam)
	}
	return result, nil
}
