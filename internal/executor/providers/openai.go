package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/agentcore/nexuscore/internal/executor"
)

// OpenAIProvider drives one conversation turn through the Chat
// Completions API in non-streaming mode, mirroring AnthropicProvider's
// one-call-per-turn shape.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider satisfies executor.ProviderFactory.
func NewOpenAIProvider(spec executor.ModelSpec, apiKey string) (executor.Provider, error) {
	if apiKey == "" {
		return nil, errors.New("providers: openai api key is required")
	}
	model := spec.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	client := openai.NewClient(apiKey)
	return &OpenAIProvider{client: client, model: model}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req executor.CompletionRequest) (executor.CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertChatMessages(req.Messages, req.System),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertChatTools(req.Tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return executor.CompletionResult{}, fmt.Errorf("providers: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return executor.CompletionResult{}, fmt.Errorf("providers: openai returned no choices")
	}
	choice := resp.Choices[0]

	result := executor.Message{Role: "assistant", Content: choice.Message.Content}
	finish := executor.FinishStop
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, executor.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: []byte(tc.Function.Arguments),
		})
	}
	if len(result.ToolCalls) > 0 || choice.FinishReason == openai.FinishReasonToolCalls {
		finish = executor.FinishToolCalls
	}

	return executor.CompletionResult{Message: result, FinishReason: finish}, nil
}

func convertChatMessages(messages []executor.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		if len(m.ToolResults) > 0 {
			for _, tr := range m.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			continue
		}

		msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		if len(m.ToolCalls) > 0 {
			msg.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				msg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				}
			}
		}
		result = append(result, msg)
	}
	return result
}

func convertChatTools(tools []executor.ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		}
	}
	return result
}
