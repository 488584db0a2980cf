// Package embedtest provides a deterministic in-process embedder for tests.
//
// Each word hashes into a fixed bucket of the vector, so identical text
// produces identical vectors and texts with overlapping vocabulary produce
// positive cosine similarity. No model or network involved.
package embedtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder implements embed.Embedder with bag-of-hashed-words vectors.
type Embedder struct {
	// Dims is the vector size. Defaults to 384 via New.
	Dims int

	// Err, when set, is returned by every call. Used to simulate an
	// unavailable provider.
	Err error

	// Calls counts Embed invocations (including those made via EmbedBatch).
	Calls int
}

// New returns an Embedder producing 384-dimension vectors.
func New() *Embedder {
	return &Embedder{Dims: 384}
}

// Embed hashes the text's words into a normalized vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	e.Calls++

	vec := make([]float32, e.Dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[int(h.Sum32())%e.Dims]++
	}

	// Normalize so cosine similarity behaves like a real model's output
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the vector size.
func (e *Embedder) Dimensions() int { return e.Dims }

// Model returns a fixed identifier.
func (e *Embedder) Model() string { return "embedtest" }

// Ready returns Err when set, nil otherwise.
func (e *Embedder) Ready(context.Context) error { return e.Err }
