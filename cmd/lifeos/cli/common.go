package cli

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/config"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/credential"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/observe"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/provider"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/store"
)

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Log.Verbose = verbose
	}
	if flags.Changed("ci") {
		cfg.Log.JSON = ciMode
	}
	if flags.Lookup("provider") != nil && flags.Changed("provider") {
		cfg.Provider.Name = providerName
	}
	if flags.Lookup("model") != nil && flags.Changed("model") {
		cfg.Provider.Model = modelName
	}
	if flags.Lookup("max-iterations") != nil && flags.Changed("max-iterations") {
		cfg.Agent.MaxIterations = maxIterations
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newObserver(cfg *config.Config, out io.Writer) *observe.Observer {
	if cfg.Log.JSON {
		return observe.NewJSON(out, cfg.Log.Verbose)
	}
	return observe.New(out, cfg.Log.Verbose)
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}
	return s, nil
}

// secret reads a config value from the store, decrypting it if needed.
func secret(s store.Storage, key string) (string, error) {
	val, err := s.GetConfig(key)
	if err != nil || val == "" {
		return val, err
	}
	if !credential.IsEncrypted(val) {
		return val, nil
	}
	m, err := credential.NewManager()
	if err != nil {
		return "", err
	}
	return m.Decrypt(val)
}

// buildProvider creates the configured model provider, with API keys taken
// from the store.
func buildProvider(cfg *config.Config, s store.Storage) (provider.Provider, error) {
	pc := cfg.Provider
	var (
		p   provider.Provider
		err error
	)

	switch pc.Name {
	case "stub":
		p = provider.NewDemoProvider()
	case "openai":
		key, kerr := secret(s, "openai.api_key")
		if kerr != nil {
			return nil, kerr
		}
		p, err = provider.NewOpenAIProvider(key, pc.BaseURL, pc.Model)
	case "anthropic":
		key, kerr := secret(s, "anthropic.api_key")
		if kerr != nil {
			return nil, kerr
		}
		p, err = provider.NewAnthropicProvider(key, pc.BaseURL, pc.Model)
	case "gemini":
		key, kerr := secret(s, "gemini.api_key")
		if kerr != nil {
			return nil, kerr
		}
		p, err = provider.NewGeminiProvider(key, pc.Model)
	case "ollama":
		p, err = provider.NewOllamaProvider(pc.BaseURL, pc.Model)
	case "cli":
		p, err = detectCLIProvider(pc.CLIPath)
	default:
		return nil, fmt.Errorf("unknown provider %q", pc.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s provider: %w", pc.Name, err)
	}

	if em, ok := p.(interface{ SetEmbeddingModel(string) }); ok {
		em.SetEmbeddingModel(pc.EmbeddingModel)
	}
	if cfg.Cache.EmbeddingCacheBytes > 0 {
		cp, err := provider.NewCachingProvider(p, cfg.Cache.EmbeddingCacheBytes)
		if err != nil {
			return nil, err
		}
		return cp, nil
	}
	return p, nil
}

func detectCLIProvider(path string) (provider.Provider, error) {
	if path != "" {
		return provider.NewCLIProvider(path, []string{})
	}

	for _, t := range []string{"claude", "codex", "gemini", "llm"} {
		if found, err := exec.LookPath(t); err == nil {
			return provider.NewCLIProvider(found, []string{})
		}
	}
	return nil, fmt.Errorf("no local CLI agents detected (tried claude, codex, gemini, llm)")
}

// setup builds a Runner from the config and returns a func that releases it.
func setup(cmd *cobra.Command) (*Runner, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	obs := newObserver(cfg, cmd.ErrOrStderr())

	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	p, err := buildProvider(cfg, s)
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	r := NewRunner(cfg, obs, s, p)
	cleanup := func() {
		r.Close()
		if err := s.Close(); err != nil {
			obs.Log().Warn().Err(err).Msg("failed to close store")
		}
		_ = obs.Close()
	}
	return r, cleanup, nil
}
