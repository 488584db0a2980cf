// Package embed provides text embedding generation through external
// providers.
//
// Two HTTP providers are supported:
//   - Ollama (local, /api/embeddings)
//   - OpenAI-compatible APIs (/v1/embeddings)
//
// The embedding model is a black box to the rest of the system: identical
// input text always yields the same vector, and a vector is only comparable
// to vectors from the same model.
package embed

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the embedding provider cannot be reached or is not
// ready to serve. Callers should surface this rather than degrade to partial
// results.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result is
	// index-aligned with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Model returns the model identifier.
	Model() string

	// Ready reports whether the provider is reachable. Returns
	// ErrUnavailable (wrapped) when it is not.
	Ready(ctx context.Context) error
}

// Config holds settings shared by the HTTP providers.
type Config struct {
	// Provider is "ollama" or "openai".
	Provider string

	// APIURL is the provider base URL (e.g. "http://localhost:11434").
	APIURL string

	// APIPath is the embeddings endpoint path.
	APIPath string

	// APIKey authenticates OpenAI-compatible providers. Unused by Ollama.
	APIKey string

	// Model is the embedding model name.
	Model string

	// Dimensions is the expected embedding size.
	Dimensions int

	// Timeout bounds each HTTP request. Kept generous by default so a cold
	// model load does not surface as an outage.
	Timeout time.Duration
}
