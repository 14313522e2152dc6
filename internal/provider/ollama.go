package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/ollama/ollama/api"
)

const defaultOllamaHost = "http://localhost:11434"

type OllamaProvider struct {
	client     *api.Client
	model      string
	embedModel string
}

// NewOllamaProvider connects to baseURL, falling back to $OLLAMA_HOST and
// then the local default.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	if model == "" {
		model = "llama3.2"
	}
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = defaultOllamaHost
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", baseURL, err)
	}

	return &OllamaProvider{
		client:     api.NewClient(uri, http.DefaultClient),
		model:      model,
		embedModel: "nomic-embed-text",
	}, nil
}

// SetEmbeddingModel overrides the embedding model.
func (p *OllamaProvider) SetEmbeddingModel(model string) {
	if model != "" {
		p.embedModel = model
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func toOllamaMessages(messages []Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msg := api.Message{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var call api.ToolCall
			call.Function.Name = tc.Name
			_ = json.Unmarshal(rawArgs(argsObject(tc.Arguments)), &call.Function.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
		out = append(out, msg)
	}
	return out
}

// toOllamaTools decodes generic schemas through JSON so nested properties
// survive whatever shape the api package uses for them.
func toOllamaTools(tools []ToolSchema) (api.Tools, error) {
	var out api.Tools
	for _, t := range tools {
		raw, err := json.Marshal(map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
		if err != nil {
			return nil, err
		}
		var tool api.Tool
		if err := json.Unmarshal(raw, &tool); err != nil {
			return nil, fmt.Errorf("convert tool %s: %w", t.Name, err)
		}
		out = append(out, tool)
	}
	return out, nil
}

func (p *OllamaProvider) chat(ctx context.Context, req *api.ChatRequest) (*Response, error) {
	req.Model = p.model
	req.Stream = new(bool)

	result := &Response{}
	var calls int
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		result.Content += resp.Message.Content
		if resp.Done {
			result.Usage = Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
		}
		for _, tc := range resp.Message.ToolCalls {
			calls++
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        "call_" + strconv.Itoa(calls) + "_" + tc.Function.Name,
				Name:      tc.Function.Name,
				Arguments: rawArgs(tc.Function.Arguments),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}
	return result, nil
}

func (p *OllamaProvider) Complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error) {
	apiTools, err := toOllamaTools(tools)
	if err != nil {
		return nil, err
	}
	return p.chat(ctx, &api.ChatRequest{
		Messages: toOllamaMessages(messages),
		Tools:    apiTools,
	})
}

func (p *OllamaProvider) CompleteStructured(ctx context.Context, messages []Message, schema Schema) (json.RawMessage, error) {
	format, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", schema.Name, err)
	}
	resp, err := p.chat(ctx, &api.ChatRequest{
		Messages: toOllamaMessages(messages),
		Format:   json.RawMessage(format),
	})
	if err != nil {
		return nil, err
	}
	return validJSON(resp.Content)
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  p.embedModel,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
