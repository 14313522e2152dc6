// Package config loads lifeos settings from defaults, a YAML file and
// LIFEOS_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "LIFEOS"
	DirName   = ".lifeos"
)

// Config is the complete lifeos configuration.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Tools    ToolsConfig    `mapstructure:"tools" yaml:"tools"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Budget   BudgetConfig   `mapstructure:"budget" yaml:"budget"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type ProviderConfig struct {
	// Name is one of stub, openai, anthropic, gemini, ollama or cli.
	Name           string `mapstructure:"name" yaml:"name"`
	Model          string `mapstructure:"model" yaml:"model,omitempty"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model,omitempty"`
	// CLIPath is the agent binary for the cli provider. Empty means detect.
	CLIPath string `mapstructure:"cli_path" yaml:"cli_path,omitempty"`
}

type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type AgentConfig struct {
	MaxIterations   int    `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxPromptTokens int    `mapstructure:"max_prompt_tokens" yaml:"max_prompt_tokens"`
	SystemPrompt    string `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
}

type ToolsConfig struct {
	Allowed []string `mapstructure:"allowed" yaml:"allowed"`
	Denied  []string `mapstructure:"denied" yaml:"denied,omitempty"`
}

type CacheConfig struct {
	// MaxEntries bounds the result cache; 0 means unbounded.
	MaxEntries          int   `mapstructure:"max_entries" yaml:"max_entries"`
	EmbeddingCacheBytes int64 `mapstructure:"embedding_cache_bytes" yaml:"embedding_cache_bytes"`
}

type BudgetConfig struct {
	ContextWindow int `mapstructure:"context_window" yaml:"context_window"`
	Reserved      int `mapstructure:"reserved" yaml:"reserved"`
}

type LogConfig struct {
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`
	JSON    bool `mapstructure:"json" yaml:"json"`
}

var providers = map[string]bool{
	"stub": true, "openai": true, "anthropic": true, "gemini": true, "ollama": true, "cli": true,
}

// Dir returns ~/.lifeos.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{Name: "ollama"},
		Store:    StoreConfig{Path: filepath.Join(Dir(), "lifeos.db")},
		Agent:    AgentConfig{MaxIterations: 10, MaxPromptTokens: 100000},
		Tools:    ToolsConfig{Allowed: []string{"*"}},
		Cache:    CacheConfig{EmbeddingCacheBytes: 32 << 20},
		Budget:   BudgetConfig{ContextWindow: 128000, Reserved: 4000},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("provider.name", d.Provider.Name)
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.embedding_model", "")
	v.SetDefault("provider.cli_path", "")
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("agent.max_iterations", d.Agent.MaxIterations)
	v.SetDefault("agent.max_prompt_tokens", d.Agent.MaxPromptTokens)
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("tools.allowed", d.Tools.Allowed)
	v.SetDefault("tools.denied", []string{})
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.embedding_cache_bytes", d.Cache.EmbeddingCacheBytes)
	v.SetDefault("budget.context_window", d.Budget.ContextWindow)
	v.SetDefault("budget.reserved", d.Budget.Reserved)
	v.SetDefault("log.verbose", false)
	v.SetDefault("log.json", false)
}

// Load reads path, or ~/.lifeos/config.yaml when path is empty. A missing
// default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration as YAML, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks ranges and names.
func (c *Config) Validate() error {
	if !providers[c.Provider.Name] {
		return &Error{Field: "provider.name", Message: fmt.Sprintf("unknown provider %q", c.Provider.Name)}
	}
	if c.Store.Path == "" {
		return &Error{Field: "store.path", Message: "must not be empty"}
	}
	if c.Agent.MaxIterations < 1 || c.Agent.MaxIterations > 100 {
		return &Error{Field: "agent.max_iterations", Message: "must be between 1 and 100"}
	}
	if c.Agent.MaxPromptTokens < 0 {
		return &Error{Field: "agent.max_prompt_tokens", Message: "must not be negative"}
	}
	if c.Cache.MaxEntries < 0 {
		return &Error{Field: "cache.max_entries", Message: "must not be negative"}
	}
	if c.Cache.EmbeddingCacheBytes < 0 {
		return &Error{Field: "cache.embedding_cache_bytes", Message: "must not be negative"}
	}
	if c.Budget.ContextWindow <= 0 {
		return &Error{Field: "budget.context_window", Message: "must be positive"}
	}
	if c.Budget.Reserved < 0 || c.Budget.Reserved >= c.Budget.ContextWindow {
		return &Error{Field: "budget.reserved", Message: "must be between 0 and the context window"}
	}
	return nil
}

// Error is a configuration error for one field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
