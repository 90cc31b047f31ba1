package vector

import (
	"fmt"
	"sort"

	"github.com/hyperjump/clipsim/internal/models"
)

// SimilarityMatrix returns the N×N pairwise cosine similarity of vectors.
// Only the upper triangle is computed; the lower one is mirrored so the result is exactly symmetric.
func SimilarityMatrix(vectors [][]float32) [][]float64 {
	n := len(vectors)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s := Cosine(vectors[i], vectors[j])
			out[i][j] = s
			out[j][i] = s
		}
	}
	return out
}

// NewMatrix builds a labeled similarity matrix. labels[i] names vectors[i]; all vectors must share a dimension.
func NewMatrix(labels []string, vectors [][]float32) (*models.Matrix, error) {
	if len(labels) != len(vectors) {
		return nil, fmt.Errorf("labels and vectors length mismatch: %d vs %d", len(labels), len(vectors))
	}
	for i := 1; i < len(vectors); i++ {
		if len(vectors[i]) != len(vectors[0]) {
			return nil, fmt.Errorf("vector dimension mismatch at %d: got %d, expected %d", i, len(vectors[i]), len(vectors[0]))
		}
	}
	return &models.Matrix{
		Labels: append([]string(nil), labels...),
		Values: SimilarityMatrix(vectors),
	}, nil
}

// Match is one neighbor of a row in a similarity matrix.
type Match struct {
	Index int     `json:"index"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Rank returns the k columns most similar to row i, excluding i itself, highest score first.
// Ties keep column order. k <= 0 returns all other columns.
func Rank(m *models.Matrix, i, k int) []Match {
	n := m.Size()
	if i < 0 || i >= n {
		return nil
	}
	matches := make([]Match, 0, n-1)
	for j := 0; j < n; j++ {
		if j == i {
			continue
		}
		matches = append(matches, Match{Index: j, Label: m.Labels[j], Score: m.Values[i][j]})
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches
}
