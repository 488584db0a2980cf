// Package vector provides the vector math used by search and bundling.
//
// All similarity calculations in the codebase go through this package so the
// numbers are consistent everywhere:
//
//   - CosineSimilarity: float64-accumulated reference implementation
//   - CosineSimilaritySIMD: vek-accelerated float32 path for hot loops
//   - Similarity: cosine similarity mapped onto the 0.0–1.0 range reported
//     to callers (1 - cosine distance)
package vector

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// CosineSimilarity calculates cosine similarity between two float32 vectors.
// Returns a value in [-1, 1] where 1 = identical direction, 0 = orthogonal.
//
// Uses float64 accumulation for precision even with float32 inputs. Returns 0
// for empty, mismatched-length, or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineSimilaritySIMD calculates cosine similarity using the vek library,
// which uses AVX2/NEON where the platform supports it. Slightly less accurate
// than CosineSimilarity due to float32 accumulation; use in hot loops where
// that is acceptable.
func CosineSimilaritySIMD(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	// vek returns NaN for zero vectors, we want 0
	result := vek32.CosineSimilarity(a, b)
	if math.IsNaN(float64(result)) {
		return 0
	}
	return result
}

// Similarity reports 1 - cosine distance as a value in [0, 1].
//
// This is the number surfaced to search callers: identical text scores ~1.0,
// unrelated text ~0.0. Negative cosine similarity is clamped to 0.
func Similarity(a, b []float32) float64 {
	sim := CosineSimilarity(a, b)
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// DotProduct calculates the dot product of two float32 vectors via vek.
// For normalized vectors the dot product equals cosine similarity.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b))
}

// Norm computes the Euclidean (L2) norm of a vector.
func Norm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return vek32.Norm(v)
}

// Normalize returns a unit-length copy of the vector. The input is not
// modified. A zero vector normalizes to a zero vector.
func Normalize(vec []float32) []float32 {
	n := Norm(vec)
	normalized := make([]float32, len(vec))
	if n == 0 {
		return normalized
	}

	inv := 1.0 / n
	for i, v := range vec {
		normalized[i] = v * inv
	}
	return normalized
}

// NormalizeInPlace normalizes a vector in-place (modifies the input).
func NormalizeInPlace(v []float32) {
	n := vek32.Norm(v)
	if n == 0 {
		return
	}
	vek32.DivNumber_Inplace(v, n)
}
