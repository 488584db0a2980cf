package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultOllamaConfig returns the default configuration for a local Ollama
// instance running all-MiniLM (384 dimensions).
func DefaultOllamaConfig() *Config {
	return &Config{
		Provider:   "ollama",
		APIURL:     "http://localhost:11434",
		APIPath:    "/api/embeddings",
		Model:      "all-minilm",
		Dimensions: 384,
		Timeout:    30 * time.Second,
	}
}

// Ollama generates embeddings through a local Ollama server.
type Ollama struct {
	config *Config
	client *http.Client
}

// NewOllama creates an Ollama embedder. A nil config uses defaults.
func NewOllama(config *Config) *Ollama {
	if config == nil {
		config = DefaultOllamaConfig()
	}
	if config.APIPath == "" {
		config.APIPath = "/api/embeddings"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Ollama{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaRequest{
		Model:  o.config.Model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.config.APIURL+o.config.APIPath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}

	return result.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts. Ollama's embeddings
// endpoint is single-text, so this issues sequential requests.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// Dimensions returns the configured embedding size.
func (o *Ollama) Dimensions() int {
	return o.config.Dimensions
}

// Model returns the configured model name.
func (o *Ollama) Model() string {
	return o.config.Model
}

// Ready checks the server responds at its base URL.
func (o *Ollama) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.config.APIURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: ollama returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

var _ Embedder = (*Ollama)(nil)
