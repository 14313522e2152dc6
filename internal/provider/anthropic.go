package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider creates a provider. An empty baseURL uses the public API.
func NewAnthropicProvider(apiKey, baseURL, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	m := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		m = anthropic.Model(model)
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  m,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// toAnthropicMessages splits out the system prompt and merges consecutive
// messages of the same role into one turn.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam

	appendTurn := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, argsObject(tc.Arguments), tc.Name))
			}
			appendTurn(anthropic.MessageParamRoleAssistant, blocks...)
		case RoleTool:
			appendTurn(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		default:
			appendTurn(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(m.Content))
		}
	}
	return out, system
}

func toAnthropicTool(name, description string, parameters map[string]any) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{Properties: parameters["properties"]}
	if req := stringList(parameters["required"]); len(req) > 0 {
		schema.Required = req
	}
	tool := anthropic.ToolUnionParamOfTool(schema, name)
	if description != "" {
		tool.OfTool.Description = anthropic.String(description)
	}
	return tool
}

func (p *AnthropicProvider) Complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error) {
	msgs, system := toAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: anthropicMaxTokens,
		Messages:  msgs,
		System:    system,
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, toAnthropicTool(t.Name, t.Description, t.Parameters))
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}

	result := &Response{
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Content += v.Text
		case anthropic.ToolUseBlock:
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        v.ID,
				Name:      v.Name,
				Arguments: json.RawMessage(v.Input),
			})
		}
	}
	return result, nil
}

// CompleteStructured forces a single tool whose input schema is the requested
// schema and returns that tool's input.
func (p *AnthropicProvider) CompleteStructured(ctx context.Context, messages []Message, schema Schema) (json.RawMessage, error) {
	msgs, system := toAnthropicMessages(messages)
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:      p.model,
		MaxTokens:  anthropicMaxTokens,
		Messages:   msgs,
		System:     system,
		Tools:      []anthropic.ToolUnionParam{toAnthropicTool(schema.Name, schema.Description, schema.Definition)},
		ToolChoice: anthropic.ToolChoiceParamOfTool(schema.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic structured completion failed: %w", err)
	}

	for _, block := range msg.Content {
		if use, ok := block.AsAny().(anthropic.ToolUseBlock); ok && use.Name == schema.Name {
			if !json.Valid(use.Input) {
				return nil, ErrInvalidStructured
			}
			return json.RawMessage(use.Input), nil
		}
	}
	return nil, ErrInvalidStructured
}

// Embed is not offered by the Messages API.
func (p *AnthropicProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrEmbeddingsUnsupported
}
