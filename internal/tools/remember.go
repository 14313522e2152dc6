package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/memory"
)

// RememberResult acknowledges a saved note.
type RememberResult struct {
	Success   bool      `json:"success"`
	MemoryID  string    `json:"memoryId"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// RememberTool saves durable notes about the user.
type RememberTool struct {
	writer *memory.Writer
}

func NewRememberTool(w *memory.Writer) *RememberTool {
	return &RememberTool{writer: w}
}

func (t *RememberTool) Name() string { return "remember" }

func (t *RememberTool) Description() string {
	return "Save something worth knowing about the user in later conversations. Use tags so it can be found again and relatedIds to point at the records it came from."
}

func (t *RememberTool) Parameters() map[string]any {
	kinds := make([]string, len(memory.Kinds))
	for i, k := range memory.Kinds {
		kinds[i] = string(k)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind":       map[string]any{"type": "string", "enum": kinds},
			"content":    map[string]any{"type": "string"},
			"tags":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"relatedIds": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required": []string{"kind", "content"},
	}
}

func (t *RememberTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var req memory.WriteRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	note, err := t.writer.Write(ctx, req)
	if err != nil {
		return nil, err
	}
	return RememberResult{
		Success:   true,
		MemoryID:  note.ID,
		Kind:      note.Kind,
		CreatedAt: note.CreatedAt,
	}, nil
}
