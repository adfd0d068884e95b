package llm

// Prompt is the full input to a generation call.
type Prompt struct {
	System string `json:"system,omitempty"`
	User   string `json:"user"`
}

// GenerateOptions tunes a single generation call. Nil fields use
// provider defaults.
type GenerateOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Generation wraps a completion result.
type Generation struct {
	Text         string `json:"text"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}
