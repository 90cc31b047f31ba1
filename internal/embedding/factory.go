package embedding

import (
	"fmt"

	"github.com/hyperjump/clipsim/internal/config"
)

// Backend type identifiers accepted in config.
const (
	BackendONNX = "onnx"
	BackendMock = "mock"
)

// NewBackend creates the backend selected by cfg.Backend. Failures are *BackendInitError.
func NewBackend(cfg config.EmbeddingConfig) (Backend, error) {
	config.ApplyEmbeddingDefaults(&cfg)
	switch cfg.Backend {
	case BackendONNX:
		b, err := NewONNXBackend(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendMock:
		return NewMockBackend(cfg.Dimensions), nil
	default:
		return nil, &BackendInitError{Model: cfg.Model, Err: fmt.Errorf("unknown backend %q", cfg.Backend)}
	}
}
