package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.LLM.MaxAttempts)
	}
	if cfg.Embedding.Model != "nomic-embed-text" || cfg.Embedding.Dimension != 768 {
		t.Errorf("unexpected embedding defaults: %+v", cfg.Embedding)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Vector.Port != 6334 {
		t.Errorf("expected gRPC port 6334, got %d", cfg.Vector.Port)
	}
	if cfg.Retrieval.TopKPerDeviation != 3 || cfg.Retrieval.ScoreThreshold != 0.5 || cfg.Retrieval.MinYear != 2010 {
		t.Errorf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Narrative.Temperature != 0.3 || cfg.Narrative.MaxTokens != 1500 {
		t.Errorf("unexpected narrative defaults: %+v", cfg.Narrative)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "biorag.yaml")
	content := []byte(`
llm:
  provider: groq
  api_key: test-key
  model: llama-3.3-70b-versatile
retrieval:
  top_k_per_deviation: 5
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Provider != "groq" || cfg.LLM.Model != "llama-3.3-70b-versatile" {
		t.Errorf("file values not applied: %+v", cfg.LLM)
	}
	if cfg.Retrieval.TopKPerDeviation != 5 {
		t.Errorf("expected top_k 5, got %d", cfg.Retrieval.TopKPerDeviation)
	}
	// Untouched keys keep their defaults.
	if cfg.Retrieval.MinYear != 2010 {
		t.Errorf("expected default min year, got %d", cfg.Retrieval.MinYear)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/biorag.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_Warnings(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.Provider = "groq" // remote provider without api key
	cfg.Narrative.Temperature = 3.5
	cfg.Retrieval.ScoreThreshold = 1.5
	cfg.Retrieval.TopKPerDeviation = 0
	cfg.Embedding.Dimension = 0

	warnings := cfg.Validate()
	if len(warnings) != 5 {
		t.Errorf("expected 5 warnings, got %d: %v", len(warnings), warnings)
	}
}

func TestValidate_CleanConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if warnings := cfg.Validate(); len(warnings) != 0 {
		t.Errorf("default config should be clean, got %v", warnings)
	}
}
