// Package service turns item lists into similarity reports and optionally stores them.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/clipsim/internal/models"
	"github.com/hyperjump/clipsim/internal/pipeline"
	"github.com/hyperjump/clipsim/internal/storage"
)

var (
	// ErrNoItems is returned when Compute is called with an empty item list.
	ErrNoItems = errors.New("no items to compare")
	// ErrNoStorage is returned by Save when the service has no report store.
	ErrNoStorage = errors.New("report storage is not configured")
)

// Service computes similarity reports. Compute calls are serialized.
type Service struct {
	pipeline *pipeline.Pipeline
	storage  storage.Storage
	title    string
	logger   *zap.Logger
	mu       sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDefaultTitle sets the title used when Compute is called without one.
func WithDefaultTitle(title string) Option {
	return func(s *Service) { s.title = title }
}

// New creates a service. store may be nil, in which case Save returns ErrNoStorage.
func New(p *pipeline.Pipeline, store storage.Storage, opts ...Option) *Service {
	s := &Service{pipeline: p, storage: store, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Model returns the embedding model name.
func (s *Service) Model() string { return s.pipeline.Backend().Model() }

// Dimensions returns the embedding dimension.
func (s *Service) Dimensions() int { return s.pipeline.Backend().Dimensions() }

// Storage returns the report store, or nil.
func (s *Service) Storage() storage.Storage { return s.storage }

// Compute embeds items and builds their similarity report. Per-item failures do not fail
// the call; they appear as failed outcomes with zero similarities.
func (s *Service) Compute(ctx context.Context, items []string, title string) (*models.Report, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if strings.TrimSpace(title) == "" {
		title = s.title
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	batch := s.pipeline.EmbedAll(ctx, models.ParseItems(items))
	matrix, err := batch.Matrix()
	if err != nil {
		return nil, fmt.Errorf("build similarity matrix: %w", err)
	}

	report := &models.Report{
		Title:     title,
		Model:     s.Model(),
		Items:     append([]string(nil), items...),
		Outcomes:  batch.Outcomes,
		Matrix:    matrix,
		CreatedAt: time.Now().UTC(),
	}
	s.logger.Info("similarity matrix computed",
		zap.Int("items", len(items)),
		zap.Int("failed", len(batch.Failed())),
		zap.Duration("took", time.Since(start)),
	)
	return report, nil
}

// Save stores r and assigns its ID.
func (s *Service) Save(ctx context.Context, r *models.Report) error {
	if s.storage == nil {
		return ErrNoStorage
	}
	if err := s.storage.SaveReport(ctx, r); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	s.logger.Info("report saved", zap.String("id", r.ID))
	return nil
}
