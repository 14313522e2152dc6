package cli

import (
	"context"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/budget"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/config"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/guard"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/memory"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/observe"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/provider"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/resultcache"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/retrieval"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/runtime"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/tools"
)

// Runner holds everything built once per process: the shared result cache
// and tool registry, and the agent that uses them.
type Runner struct {
	Observer  *observe.Observer
	Store     store.Storage
	Provider  provider.Provider
	Guard     *guard.Guard
	Cache     *resultcache.Cache
	Registry  *runtime.ToolRegistry
	Retriever *retrieval.Retriever
	Agent     *runtime.Agent
}

func NewRunner(cfg *config.Config, obs *observe.Observer, s store.Storage, p provider.Provider) *Runner {
	g := guard.New(guard.Policy{
		MaxIterations:   cfg.Agent.MaxIterations,
		MaxPromptTokens: cfg.Agent.MaxPromptTokens,
		AllowedTools:    cfg.Tools.Allowed,
		DeniedTools:     cfg.Tools.Denied,
	})

	var cacheOpts []resultcache.Option
	if cfg.Cache.MaxEntries > 0 {
		cacheOpts = append(cacheOpts, resultcache.WithMaxEntries(cfg.Cache.MaxEntries))
	}
	cache := resultcache.New(cacheOpts...)

	retriever := retrieval.New(s, p, obs)
	reg := runtime.NewToolRegistry()
	tools.Register(reg, tools.Deps{
		Retriever: retriever,
		Cache:     cache,
		Model:     p,
		Budget:    budget.Manager{ContextWindow: cfg.Budget.ContextWindow, Reserved: cfg.Budget.Reserved},
		Writer:    memory.NewWriter(s),
	}, obs)

	eb := runtime.NewEventBus()
	if cfg.Log.Verbose {
		eb.SubscribeAll(func(e runtime.Event) {
			ev := obs.Log().Debug().Str("event", string(e.Type)).Str("run", e.RunID)
			if tool, ok := e.Data["tool"].(string); ok {
				ev = ev.Str("tool", tool)
			}
			ev.Msg("agent event")
		})
	}

	agent := runtime.NewAgent(p, reg, cache, g, obs,
		runtime.WithSystemPrompt(cfg.Agent.SystemPrompt),
		runtime.WithEventBus(eb),
	)

	return &Runner{
		Observer:  obs,
		Store:     s,
		Provider:  p,
		Guard:     g,
		Cache:     cache,
		Registry:  reg,
		Retriever: retriever,
		Agent:     agent,
	}
}

// Ask runs one question and waits for background note updates to finish.
func (r *Runner) Ask(ctx context.Context, history []provider.Message, question string) (*runtime.Answer, error) {
	defer r.Retriever.Wait()
	return r.Agent.Run(ctx, history, question)
}

// Close releases the provider's resources.
func (r *Runner) Close() {
	if c, ok := r.Provider.(interface{ Close() }); ok {
		c.Close()
	}
}
