package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/movelytics/biorag/internal/llm"
)

const defaultBaseURL = "http://localhost:11434"

// Client implements llm.Provider against the native Ollama API.
type Client struct {
	model      string
	embedModel string
	baseURL    string
	http       *http.Client
}

// New creates an Ollama provider.
func New(model, embedModel, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	return &Client{
		model:      model,
		embedModel: embedModel,
		baseURL:    baseURL,
		http:       &http.Client{Timeout: 300 * time.Second},
	}
}

func (c *Client) Name() string { return "ollama" }

func (c *Client) Generate(ctx context.Context, prompt *llm.Prompt, opts *llm.GenerateOptions) (*llm.Generation, error) {
	// The native generate endpoint takes a single prompt string; the system
	// prompt travels in its own field.
	options := map[string]any{}
	if opts != nil {
		if opts.Temperature != nil {
			options["temperature"] = *opts.Temperature
		}
		if opts.TopP != nil {
			options["top_p"] = *opts.TopP
		}
		if opts.MaxTokens != nil {
			options["num_predict"] = *opts.MaxTokens
		}
		if len(opts.Stop) > 0 {
			options["stop"] = opts.Stop
		}
	}

	body := map[string]any{
		"model":   c.model,
		"prompt":  prompt.User,
		"stream":  false,
		"options": options,
	}
	if prompt.System != "" {
		body["system"] = prompt.System
	}

	var result struct {
		Response        string `json:"response"`
		Model           string `json:"model"`
		Done            bool   `json:"done"`
		DoneReason      string `json:"done_reason"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := c.post(ctx, "/api/generate", body, &result); err != nil {
		return nil, err
	}

	return &llm.Generation{
		Text:         result.Response,
		Model:        result.Model,
		InputTokens:  result.PromptEvalCount,
		OutputTokens: result.EvalCount,
		StopReason:   result.DoneReason,
	}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	// The embeddings endpoint is single-text; callers batch above this layer.
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		var result struct {
			Embedding []float32 `json:"embedding"`
		}
		body := map[string]any{
			"model":  c.embedModel,
			"prompt": text,
		}
		if err := c.post(ctx, "/api/embeddings", body, &result); err != nil {
			return nil, err
		}
		vectors[i] = result.Embedding
	}
	return vectors, nil
}

// Ping verifies the Ollama server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: %s", resp.Status)
	}
	return nil
}

// ListModels returns the names of locally available models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: %s: %s", resp.Status, respBody)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama %s: %s: %s", path, resp.Status, respBody)
	}
	return json.Unmarshal(respBody, out)
}

var _ llm.Provider = (*Client)(nil)
