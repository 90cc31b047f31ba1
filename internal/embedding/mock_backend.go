package embedding

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/hyperjump/clipsim/pkg/utils"
)

// MockBackend is a deterministic backend for tests and model-free demos. Text vectors are
// derived from the text hash; image vectors from a coarse 4×4 color thumbnail, so identical
// images always embed identically.
type MockBackend struct {
	dimensions int
}

// NewMockBackend returns a backend that produces deterministic embeddings of the given dimensions.
func NewMockBackend(dimensions int) *MockBackend {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockBackend{dimensions: dimensions}
}

// EmbedText returns a deterministic unit vector based on the text hash.
func (b *MockBackend) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &EmbeddingError{Input: text, Err: err}
	}
	return b.fromSeed(HashString(CleanText(text))), nil
}

// EmbedImage returns a deterministic unit vector based on the image's coarse colors.
func (b *MockBackend) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &EmbeddingError{Input: "image", Err: err}
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, &EmbeddingError{Input: "image", Err: fmt.Errorf("empty image")}
	}
	seed := 17
	for gy := 0; gy < 4; gy++ {
		for gx := 0; gx < 4; gx++ {
			x := bounds.Min.X + (2*gx+1)*bounds.Dx()/8
			y := bounds.Min.Y + (2*gy+1)*bounds.Dy()/8
			r, g, bl, _ := img.At(x, y).RGBA()
			seed = seed*31 + int(r>>12)
			seed = seed*31 + int(g>>12)
			seed = seed*31 + int(bl>>12)
		}
	}
	if seed < 0 {
		seed = -seed
	}
	return b.fromSeed(seed), nil
}

func (b *MockBackend) fromSeed(h int) []float32 {
	emb := make([]float32, b.dimensions)
	for i := 0; i < b.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h%1000003)*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (b *MockBackend) Dimensions() int {
	return b.dimensions
}

// Model returns the backend identifier.
func (b *MockBackend) Model() string {
	return "mock"
}

// Close is a no-op for MockBackend.
func (b *MockBackend) Close() error {
	return nil
}
