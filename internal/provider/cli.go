package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CLIProvider shells out to a local agent binary. It has no native tool
// calling, so Complete only ever returns text.
type CLIProvider struct {
	binaryPath string
	args       []string
	timeout    time.Duration
}

func NewCLIProvider(binaryPath string, args []string) (*CLIProvider, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path is required for CLI provider")
	}
	return &CLIProvider{
		binaryPath: binaryPath,
		args:       args,
		timeout:    2 * time.Minute,
	}, nil
}

func (p *CLIProvider) Name() string {
	return "cli-" + p.binaryPath
}

// renderTranscript flattens the conversation into a single prompt.
func renderTranscript(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			b.WriteString("[system]\n")
		case RoleAssistant:
			b.WriteString("[assistant]\n")
		case RoleTool:
			fmt.Fprintf(&b, "[tool %s]\n", m.Name)
		default:
			b.WriteString("[user]\n")
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func (p *CLIProvider) run(ctx context.Context, prompt string) (string, error) {
	fullArgs := append(append([]string{}, p.args...), prompt)

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.binaryPath, fullArgs...)
	output, err := cmd.CombinedOutput()
	result := string(output)

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("cli agent timed out: %w", err)
		}
		return "", fmt.Errorf("cli agent failed: %w\nOutput: %s", err, result)
	}
	return result, nil
}

func (p *CLIProvider) Complete(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error) {
	result, err := p.run(ctx, renderTranscript(messages))
	if err != nil {
		return nil, err
	}
	return &Response{
		Content: strings.TrimSpace(result),
		Usage: Usage{
			TotalTokens: len(strings.Fields(result)),
		},
	}, nil
}

func (p *CLIProvider) CompleteStructured(ctx context.Context, messages []Message, schema Schema) (json.RawMessage, error) {
	def, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", schema.Name, err)
	}
	prompt := renderTranscript(messages) + "\n\nRespond with only a JSON object matching this schema:\n" + string(def)

	result, err := p.run(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return validJSON(result)
}

func (p *CLIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrEmbeddingsUnsupported
}
