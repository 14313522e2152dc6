// Package tools holds the capabilities the agent can call: retrieve, analyze
// and remember.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/budget"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/memory"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/observe"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/resultcache"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/runtime"
)

// Deps are the collaborators the built-in tools need.
type Deps struct {
	Retriever Retriever
	Cache     *resultcache.Cache
	Model     StructuredModel
	Budget    budget.Manager
	Writer    *memory.Writer
}

// Register adds every built-in tool to reg. Replacing an existing tool is
// allowed and logged.
func Register(reg *runtime.ToolRegistry, d Deps, o *observe.Observer) {
	all := []runtime.Tool{
		NewRetrieveTool(d.Retriever),
		NewAnalyzeTool(d.Cache, d.Model, d.Budget),
		NewRememberTool(d.Writer),
	}
	for _, t := range all {
		if reg.Register(t) {
			o.Log().Warn().Str("tool", t.Name()).Msg("tool registered twice, keeping the last one")
		}
	}
}

// decodeArgs unmarshals tool arguments, treating empty input as {}.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
