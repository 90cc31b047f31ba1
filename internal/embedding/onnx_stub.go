//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
	"image"

	"github.com/hyperjump/clipsim/internal/config"
)

// ONNXBackend stub type when built without CGO (see onnx.go for real implementation).
type ONNXBackend struct{}

// NewONNXBackend returns a *BackendInitError when built without CGO (ONNX not available).
func NewONNXBackend(cfg config.EmbeddingConfig) (*ONNXBackend, error) {
	config.ApplyEmbeddingDefaults(&cfg)
	return nil, &BackendInitError{
		Model: cfg.Model,
		Err:   errors.New("ONNX backend requires CGO; build with CGO_ENABLED=1 and onnxruntime"),
	}
}

func (b *ONNXBackend) EmbedText(context.Context, string) ([]float32, error) {
	return nil, errors.New("ONNX backend unavailable")
}

func (b *ONNXBackend) EmbedImage(context.Context, image.Image) ([]float32, error) {
	return nil, errors.New("ONNX backend unavailable")
}

func (b *ONNXBackend) Dimensions() int { return 0 }
func (b *ONNXBackend) Model() string   { return "" }
func (b *ONNXBackend) Close() error    { return nil }
