package llm

import "context"

// Provider is the interface all remote model backends must implement.
type Provider interface {
	// Generate sends a prompt and returns the completion.
	Generate(ctx context.Context, prompt *Prompt, opts *GenerateOptions) (*Generation, error)
	// Embed returns embedding vectors for the given texts, preserving input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "ollama", "openai").
	Name() string
}

// Pinger is implemented by providers that can report service reachability.
// The health surface uses it when available.
type Pinger interface {
	Ping(ctx context.Context) error
}
