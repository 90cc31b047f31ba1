// Package vector provides cosine similarity and similarity matrices over embedding vectors.
package vector

import (
	"math"

	"github.com/hyperjump/clipsim/pkg/utils"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine returns dot(a, b) / (|a| |b|), clamped to [-1, 1].
//
// Similarity involving a zero vector is 0. A zero vector is what the pipeline
// substitutes for an item that failed to embed, so a failed item never looks
// similar to anything, itself included. Mismatched or empty vectors also yield 0,
// as does any input that produces NaN.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || utils.IsZero(a) || utils.IsZero(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	c := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(c) {
		return 0
	}
	return utils.Clamp(c, -1, 1)
}
