// Package pipeline turns items into unit-length embeddings, isolating per-item failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/hyperjump/clipsim/internal/embedding"
	"github.com/hyperjump/clipsim/internal/models"
	"github.com/hyperjump/clipsim/internal/vector"
	"github.com/hyperjump/clipsim/pkg/utils"
)

// ImageFetcher retrieves and decodes the image behind a URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// ProgressFunc is called after each item of a batch, with err set when the item fell back.
type ProgressFunc func(done, total int, item models.Item, err error)

// Pipeline embeds items through a Backend, fetching image references first.
type Pipeline struct {
	backend  embedding.Backend
	fetcher  ImageFetcher
	logger   *zap.Logger
	progress ProgressFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for per-item diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithProgress registers a callback invoked after every item.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// New creates a pipeline. fetcher may be nil when no item is an image reference.
func New(backend embedding.Backend, fetcher ImageFetcher, opts ...Option) *Pipeline {
	p := &Pipeline{backend: backend, fetcher: fetcher}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger)
	return p
}

// Backend returns the embedding backend.
func (p *Pipeline) Backend() embedding.Backend {
	return p.backend
}

// EmbedItem embeds a single item and normalizes the result to unit length.
// A zero vector from the backend is returned unchanged. Errors propagate to the caller.
func (p *Pipeline) EmbedItem(ctx context.Context, item models.Item) ([]float32, error) {
	var (
		raw []float32
		err error
	)
	switch item.Kind {
	case models.KindImage:
		if p.fetcher == nil {
			return nil, fmt.Errorf("no image fetcher configured for %s", item.Raw)
		}
		img, ferr := p.fetcher.Fetch(ctx, item.Raw)
		if ferr != nil {
			return nil, ferr
		}
		raw, err = p.backend.EmbedImage(ctx, img)
	default:
		raw, err = p.backend.EmbedText(ctx, item.Raw)
	}
	if err != nil {
		var ee *embedding.EmbeddingError
		if !errors.As(err, &ee) {
			err = &embedding.EmbeddingError{Input: item.Raw, Err: err}
		}
		return nil, err
	}
	if len(raw) != p.backend.Dimensions() {
		return nil, &embedding.EmbeddingError{
			Input: item.Raw,
			Err:   fmt.Errorf("backend returned %d dimensions, expected %d", len(raw), p.backend.Dimensions()),
		}
	}
	if !utils.IsFinite(raw) {
		return nil, &embedding.EmbeddingError{
			Input: item.Raw,
			Err:   errors.New("backend returned a non-finite embedding"),
		}
	}

	vec := make([]float32, len(raw))
	copy(vec, raw)
	utils.NormalizeL2(vec)
	return vec, nil
}

// Batch is the ordered result of EmbedAll: one vector and one outcome per input item.
type Batch struct {
	Items    []models.Item
	Vectors  [][]float32
	Outcomes []models.Outcome
}

// Failed returns outcomes of items that fell back to the zero vector.
func (b *Batch) Failed() []models.Outcome {
	var failed []models.Outcome
	for _, o := range b.Outcomes {
		if !o.OK {
			failed = append(failed, o)
		}
	}
	return failed
}

// Matrix computes the labeled cosine similarity matrix of the batch.
func (b *Batch) Matrix() (*models.Matrix, error) {
	return vector.NewMatrix(models.Labels(b.Items), b.Vectors)
}

type memo struct {
	vec []float32
	err error
}

// EmbedAll embeds items sequentially, in order. A failing item is logged, recorded in its
// Outcome and replaced by a zero vector of the backend's dimension; the batch never aborts.
// Each distinct item string is embedded at most once per call.
func (p *Pipeline) EmbedAll(ctx context.Context, items []models.Item) *Batch {
	dims := p.backend.Dimensions()
	batch := &Batch{
		Items:    items,
		Vectors:  make([][]float32, len(items)),
		Outcomes: make([]models.Outcome, len(items)),
	}
	seen := make(map[string]memo, len(items))

	for i, item := range items {
		m, ok := seen[item.Raw]
		if !ok {
			vec, err := p.EmbedItem(ctx, item)
			m = memo{vec: vec, err: err}
			seen[item.Raw] = m
		}

		outcome := models.Outcome{Index: i, Item: item, OK: m.err == nil}
		if m.err != nil {
			outcome.Error = m.err.Error()
			batch.Vectors[i] = make([]float32, dims)
			p.logger.Warn("item embedding failed, using zero vector",
				zap.Int("index", i),
				zap.String("item", item.Raw),
				zap.String("kind", string(item.Kind)),
				zap.Error(m.err),
			)
		} else {
			batch.Vectors[i] = m.vec
			p.logger.Debug("item embedded",
				zap.Int("index", i),
				zap.String("item", item.Raw),
				zap.Bool("cached", ok),
			)
		}
		batch.Outcomes[i] = outcome

		if p.progress != nil {
			p.progress(i+1, len(items), item, m.err)
		}
	}
	return batch
}
