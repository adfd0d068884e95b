package llm

import (
	"fmt"
	"time"
)

// ProviderConfig holds everything needed to create a model provider.
type ProviderConfig struct {
	Provider   string // "ollama", "openai", "groq", "together", "custom"
	APIKey     string
	Model      string
	BaseURL    string // Override for self-hosted / custom endpoints
	EmbedModel string

	// Timeout and retry configuration
	Timeout      time.Duration // Per-attempt timeout (default: 2 minutes)
	MaxAttempts  int           // Total attempts including the first (default: 3)
	InitialDelay time.Duration // Initial backoff delay (default: 1s)
}

// DefaultProviderConfig returns a config with sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:      2 * time.Minute,
		MaxAttempts:  3,
		InitialDelay: time.Second,
	}
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory creates an empty factory; callers register constructors.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{constructors: make(map[string]ProviderConstructor)}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config, wrapped with the retry policy.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q, registered: %v", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	return WrapWithRetry(provider, cfg), nil
}

func (f *ProviderFactory) names() []string {
	var out []string
	for k := range f.constructors {
		out = append(out, k)
	}
	return out
}

// WrapWithRetry wraps a provider with the retry policy derived from config.
func WrapWithRetry(provider Provider, cfg ProviderConfig) Provider {
	if provider == nil {
		return nil
	}

	policy := DefaultRetryPolicy()
	if cfg.Timeout > 0 {
		policy.Timeout = cfg.Timeout
	}
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelay > 0 {
		policy.InitialDelay = cfg.InitialDelay
	}

	return NewRetryProvider(provider, policy)
}

// KnownProviders documents the built-in provider presets. OpenAI-compatible
// services (Groq, Together, vLLM, etc.) use the "openai" client with a
// custom base_url.
var KnownProviders = map[string]string{
	"ollama":   "http://localhost:11434",
	"openai":   "https://api.openai.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
	"together": "https://api.together.xyz/v1",
	"deepseek": "https://api.deepseek.com/v1",
}
