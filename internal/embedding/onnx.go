//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/clipsim/internal/config"
	"github.com/hyperjump/clipsim/pkg/utils"
)

// Tensor names of the exported CLIP towers.
const (
	textInputName   = "input_ids"
	textOutputName  = "text_embeds"
	imageInputName  = "pixel_values"
	imageOutputName = "image_embeds"
)

var (
	ortOnce sync.Once
	ortErr  error
)

func initRuntime(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXBackend runs the text and image towers of a CLIP-style model with ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ONNXBackend struct {
	model      string
	dimensions int
	ctxLen     int
	tokenizer  Tokenizer
	preprocess *Preprocessor
	textCache  *Cache[string, []float32]

	// Tensors are bound to the sessions once; each call rewrites the input data.
	textSession  *ort.AdvancedSession
	textInput    *ort.Tensor[int64]
	textOutput   *ort.Tensor[float32]
	imageSession *ort.AdvancedSession
	imageInput   *ort.Tensor[float32]
	imageOutput  *ort.Tensor[float32]
	textMu       sync.Mutex
	imageMu      sync.Mutex
}

// NewONNXBackend loads both towers. Any failure is returned as *BackendInitError.
func NewONNXBackend(cfg config.EmbeddingConfig) (*ONNXBackend, error) {
	config.ApplyEmbeddingDefaults(&cfg)
	b, err := newONNXBackend(cfg)
	if err != nil {
		return nil, &BackendInitError{Model: cfg.Model, Err: err}
	}
	return b, nil
}

func newONNXBackend(cfg config.EmbeddingConfig) (*ONNXBackend, error) {
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	var tokenizer Tokenizer = &SimpleTokenizer{}
	if cfg.VocabPath != "" && cfg.MergesPath != "" {
		bpe, err := LoadBPETokenizer(cfg.VocabPath, cfg.MergesPath)
		if err != nil {
			return nil, err
		}
		tokenizer = bpe
	}
	pre, err := NewPreprocessor(cfg.ImageSize, cfg.Mean, cfg.Std)
	if err != nil {
		return nil, err
	}

	b := &ONNXBackend{
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		ctxLen:     cfg.ContextLength,
		tokenizer:  tokenizer,
		preprocess: pre,
		textCache:  NewCache[string, []float32](cfg.CacheSize),
	}
	if err := b.openText(cfg.TextModelPath); err != nil {
		_ = b.Close()
		return nil, err
	}
	if err := b.openImage(cfg.ImageModelPath); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *ONNXBackend) openText(modelPath string) error {
	var err error
	b.textInput, err = ort.NewTensor(ort.NewShape(1, int64(b.ctxLen)), make([]int64, b.ctxLen))
	if err != nil {
		return fmt.Errorf("failed to create %s tensor: %w", textInputName, err)
	}
	b.textOutput, err = ort.NewTensor(ort.NewShape(1, int64(b.dimensions)), make([]float32, b.dimensions))
	if err != nil {
		return fmt.Errorf("failed to create %s tensor: %w", textOutputName, err)
	}
	b.textSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{textInputName},
		[]string{textOutputName},
		[]ort.ArbitraryTensor{b.textInput},
		[]ort.ArbitraryTensor{b.textOutput},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create text session from %s: %w", modelPath, err)
	}
	return nil
}

func (b *ONNXBackend) openImage(modelPath string) error {
	s := int64(b.preprocess.Size)
	var err error
	b.imageInput, err = ort.NewTensor(ort.NewShape(1, 3, s, s), make([]float32, 3*s*s))
	if err != nil {
		return fmt.Errorf("failed to create %s tensor: %w", imageInputName, err)
	}
	b.imageOutput, err = ort.NewTensor(ort.NewShape(1, int64(b.dimensions)), make([]float32, b.dimensions))
	if err != nil {
		return fmt.Errorf("failed to create %s tensor: %w", imageOutputName, err)
	}
	b.imageSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{imageInputName},
		[]string{imageOutputName},
		[]ort.ArbitraryTensor{b.imageInput},
		[]ort.ArbitraryTensor{b.imageOutput},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create image session from %s: %w", modelPath, err)
	}
	return nil
}

// EmbedText returns the normalized text embedding, using cache when available.
func (b *ONNXBackend) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := b.textCache.Get(text); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &EmbeddingError{Input: text, Err: err}
	}

	b.textMu.Lock()
	defer b.textMu.Unlock()

	copy(b.textInput.GetData(), b.tokenizer.Tokenize(text, b.ctxLen))
	if err := b.textSession.Run(); err != nil {
		return nil, &EmbeddingError{Input: text, Err: fmt.Errorf("inference failed: %w", err)}
	}
	embedding := make([]float32, b.dimensions)
	copy(embedding, b.textOutput.GetData())
	utils.NormalizeL2(embedding)
	b.textCache.Set(text, embedding)
	return embedding, nil
}

// EmbedImage preprocesses img and returns the normalized image embedding.
func (b *ONNXBackend) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &EmbeddingError{Input: "image", Err: err}
	}

	b.imageMu.Lock()
	defer b.imageMu.Unlock()

	if err := b.preprocess.Tensor(img, b.imageInput.GetData()); err != nil {
		return nil, &EmbeddingError{Input: "image", Err: err}
	}
	if err := b.imageSession.Run(); err != nil {
		return nil, &EmbeddingError{Input: "image", Err: fmt.Errorf("inference failed: %w", err)}
	}
	embedding := make([]float32, b.dimensions)
	copy(embedding, b.imageOutput.GetData())
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (b *ONNXBackend) Dimensions() int {
	return b.dimensions
}

// Model returns the configured model name.
func (b *ONNXBackend) Model() string {
	return b.model
}

// Close destroys the sessions and tensors.
func (b *ONNXBackend) Close() error {
	var err error
	if b.textSession != nil {
		err = b.textSession.Destroy()
		b.textSession = nil
	}
	if b.imageSession != nil {
		if e := b.imageSession.Destroy(); e != nil && err == nil {
			err = e
		}
		b.imageSession = nil
	}
	if b.textInput != nil {
		_ = b.textInput.Destroy()
		b.textInput = nil
	}
	if b.textOutput != nil {
		_ = b.textOutput.Destroy()
		b.textOutput = nil
	}
	if b.imageInput != nil {
		_ = b.imageInput.Destroy()
		b.imageInput = nil
	}
	if b.imageOutput != nil {
		_ = b.imageOutput.Destroy()
		b.imageOutput = nil
	}
	return err
}
