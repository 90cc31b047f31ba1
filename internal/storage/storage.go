// Package storage persists similarity reports.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/clipsim/internal/models"
)

// ErrReportNotFound is returned when no report has the requested ID.
var ErrReportNotFound = errors.New("report not found")

// Storage defines report persistence operations.
type Storage interface {
	// SaveReport stores r, assigning r.ID and r.CreatedAt when they are empty.
	SaveReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	// ListReports returns reports newest first.
	ListReports(ctx context.Context, offset, limit int) ([]*models.Report, error)
	DeleteReport(ctx context.Context, id string) error
	CountReports(ctx context.Context) (int64, error)

	Close() error
}
