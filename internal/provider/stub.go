package provider

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// StubDimensions is the size of stub embeddings.
const StubDimensions = 64

var ErrScriptExhausted = errors.New("stub provider has no scripted response left")

// StubRequest records one call made to the stub.
type StubRequest struct {
	Messages []Message
	Tools    []ToolSchema
	Schema   *Schema
}

// StubProvider replays scripted responses in order. Embeddings are a hashed
// bag of words, so texts sharing words land close together.
type StubProvider struct {
	mu         sync.Mutex
	responses  []Response
	structured []json.RawMessage
	requests   []StubRequest

	// Fallback answers once the script is exhausted. Nil means error.
	Fallback *Response
}

func NewStubProvider(responses ...Response) *StubProvider {
	return &StubProvider{responses: responses}
}

// NewDemoProvider answers every turn with a fixed note, for running the CLI
// without a model.
func NewDemoProvider() *StubProvider {
	return &StubProvider{
		Fallback: &Response{
			Content: "No model is configured. Set provider.name to openai, anthropic, gemini or ollama to get real answers.",
		},
	}
}

// Script queues more responses.
func (m *StubProvider) Script(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// ScriptStructured queues documents for CompleteStructured.
func (m *StubProvider) ScriptStructured(docs ...json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structured = append(m.structured, docs...)
}

// Requests returns a copy of every call seen so far.
func (m *StubProvider) Requests() []StubRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StubRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *StubProvider) Complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, StubRequest{
		Messages: append([]Message(nil), messages...),
		Tools:    tools,
	})

	if len(m.responses) == 0 {
		if m.Fallback != nil {
			resp := *m.Fallback
			return &resp, nil
		}
		return nil, ErrScriptExhausted
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return &resp, nil
}

func (m *StubProvider) CompleteStructured(ctx context.Context, messages []Message, schema Schema) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := schema
	m.requests = append(m.requests, StubRequest{
		Messages: append([]Message(nil), messages...),
		Schema:   &s,
	})

	if len(m.structured) == 0 {
		return nil, ErrScriptExhausted
	}
	doc := m.structured[0]
	m.structured = m.structured[1:]
	if !json.Valid(doc) {
		return nil, ErrInvalidStructured
	}
	return doc, nil
}

func (m *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return HashEmbedding(text), nil
}

func (m *StubProvider) Name() string {
	return "stub"
}

// HashEmbedding maps each lowercased word to a bucket and L2-normalizes the
// counts. Text without words yields a zero vector.
func HashEmbedding(text string) []float32 {
	vec := make([]float32, StubDimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%StubDimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
