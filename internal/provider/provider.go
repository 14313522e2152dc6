package provider

import (
	"context"
	"encoding/json"
	"errors"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message. An assistant message with ToolCalls is a
// tool-call message; a tool message answers exactly one call by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// SystemMessage builds a system prompt message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage builds a user text message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant text message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolCallMessage builds an assistant message carrying one tool call.
func ToolCallMessage(text string, call ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: []ToolCall{call}}
}

// ToolResultMessage builds the answer to a tool call.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// Response represents the output from the model.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// ToolCall is a model request to run a tool with JSON arguments.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolSchema describes a tool to the model. Parameters is a JSON Schema object.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Schema is a JSON Schema that a structured completion must satisfy.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Definition  map[string]any `json:"schema"`
}

var (
	ErrNoChoices             = errors.New("model returned no choices")
	ErrEmbeddingsUnsupported = errors.New("embeddings not supported by this provider")
	ErrInvalidStructured     = errors.New("structured completion is not valid JSON")
)

// Provider defines the interface for AI model interactions.
type Provider interface {
	// Complete sends the conversation with the available tools and returns
	// either text, tool calls, or both.
	Complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error)

	// CompleteStructured asks for a JSON document matching schema.
	CompleteStructured(ctx context.Context, messages []Message, schema Schema) (json.RawMessage, error)

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider identifier (e.g., "stub", "openai").
	Name() string
}

// validJSON trims model output down to its outermost JSON object and checks it.
func validJSON(s string) (json.RawMessage, error) {
	start, end := -1, -1
	for i, r := range s {
		if r == '{' {
			start = i
			break
		}
	}
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '}' {
			end = i
			break
		}
	}
	if start < 0 || end < start {
		return nil, ErrInvalidStructured
	}
	out := json.RawMessage(s[start : end+1])
	if !json.Valid(out) {
		return nil, ErrInvalidStructured
	}
	return out, nil
}

// argsObject returns call arguments as an object, defaulting to {}.
func argsObject(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	return args
}

// rawArgs marshals decoded arguments back to JSON.
func rawArgs(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return json.RawMessage(`{}`)
	}
	return b
}
