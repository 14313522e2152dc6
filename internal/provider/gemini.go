package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client     *genai.Client
	model      string
	embedModel string
}

func NewGeminiProvider(apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-1.5-pro-latest"
	}

	return &GeminiProvider{
		client:     client,
		model:      model,
		embedModel: "text-embedding-004",
	}, nil
}

// SetEmbeddingModel overrides the embedding model.
func (p *GeminiProvider) SetEmbeddingModel(model string) {
	if model != "" {
		p.embedModel = model
	}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// toGeminiContents splits out the system prompt and merges consecutive
// messages of the same role, since Gemini expects alternating turns.
func toGeminiContents(messages []Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	var contents []*genai.Content

	for _, m := range messages {
		if m.Role == RoleSystem {
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.Text(m.Content))
			continue
		}

		role := "user"
		var parts []genai.Part
		switch m.Role {
		case RoleAssistant:
			role = "model"
			if m.Content != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: argsObject(tc.Arguments)})
			}
		case RoleTool:
			var payload any
			if err := json.Unmarshal([]byte(m.Content), &payload); err != nil {
				payload = m.Content
			}
			parts = append(parts, genai.FunctionResponse{
				Name:     m.Name,
				Response: map[string]any{"result": payload},
			})
		default:
			parts = append(parts, genai.Text(m.Content))
		}
		if len(parts) == 0 {
			continue
		}

		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return system, contents
}

func (p *GeminiProvider) send(ctx context.Context, gm *genai.GenerativeModel, messages []Message) (*genai.GenerateContentResponse, error) {
	system, contents := toGeminiContents(messages)
	if len(contents) == 0 {
		return nil, errors.New("no messages to send")
	}
	gm.SystemInstruction = system

	cs := gm.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoChoices
	}
	return resp, nil
}

func (p *GeminiProvider) Complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error) {
	gm := p.client.GenerativeModel(p.model)
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGeminiSchema(t.Parameters),
			})
		}
		gm.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := p.send(ctx, gm, messages)
	if err != nil {
		return nil, err
	}

	result := &Response{}
	for i, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			result.Content += string(v)
		case genai.FunctionCall:
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("call_%d_%s", i, v.Name),
				Name:      v.Name,
				Arguments: rawArgs(v.Args),
			})
		}
	}
	if resp.UsageMetadata != nil {
		result.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return result, nil
}

func (p *GeminiProvider) CompleteStructured(ctx context.Context, messages []Message, schema Schema) (json.RawMessage, error) {
	gm := p.client.GenerativeModel(p.model)
	gm.ResponseMIMEType = "application/json"
	gm.ResponseSchema = toGeminiSchema(schema.Definition)

	resp, err := p.send(ctx, gm, messages)
	if err != nil {
		return nil, err
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return validJSON(text)
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := p.client.EmbeddingModel(p.embedModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return res.Embedding.Values, nil
}

// toGeminiSchema converts the subset of JSON Schema used by tool parameters.
func toGeminiSchema(def map[string]any) *genai.Schema {
	if def == nil {
		return nil
	}
	s := &genai.Schema{}
	switch def["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	}
	if d, ok := def["description"].(string); ok {
		s.Description = d
	}
	if props, ok := def["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				s.Properties[name] = toGeminiSchema(sub)
			}
		}
	}
	if items, ok := def["items"].(map[string]any); ok {
		s.Items = toGeminiSchema(items)
	}
	s.Required = stringList(def["required"])
	s.Enum = stringList(def["enum"])
	return s
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, x := range l {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
