package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/clipsim/internal/models"
)

// SQLiteStorage implements Storage using SQLite. Items, outcomes and the matrix are stored as JSON columns.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		title TEXT,
		model TEXT NOT NULL,
		items TEXT NOT NULL,
		outcomes TEXT NOT NULL,
		matrix TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveReport inserts r. Saving a report with an existing ID replaces it.
func (s *SQLiteStorage) SaveReport(ctx context.Context, r *models.Report) error {
	if r.Matrix == nil {
		return fmt.Errorf("report has no matrix")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	items, err := json.Marshal(r.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}
	outcomes, err := json.Marshal(r.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}
	matrix, err := json.Marshal(r.Matrix)
	if err != nil {
		return fmt.Errorf("failed to marshal matrix: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (id, title, model, items, outcomes, matrix, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Model, string(items), string(outcomes), string(matrix), r.CreatedAt,
	)
	return err
}

// GetReport returns a report by ID, or ErrReportNotFound.
func (s *SQLiteStorage) GetReport(ctx context.Context, id string) (*models.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, model, items, outcomes, matrix, created_at
		 FROM reports WHERE id = ?`, id,
	)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return r, err
}

// DeleteReport removes a report by ID, or returns ErrReportNotFound.
func (s *SQLiteStorage) DeleteReport(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return nil
}

// ListReports returns reports with offset and limit, newest first.
func (s *SQLiteStorage) ListReports(ctx context.Context, offset, limit int) ([]*models.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, model, items, outcomes, matrix, created_at
		 FROM reports ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// CountReports returns the number of stored reports.
func (s *SQLiteStorage) CountReports(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n)
	return n, err
}

// SizeBytes returns the on-disk size of the database including its WAL and shared-memory files.
func (s *SQLiteStorage) SizeBytes() int64 {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (*models.Report, error) {
	var (
		r                         models.Report
		title                     sql.NullString
		items, outcomes, matrixJS string
	)
	if err := sc.Scan(&r.ID, &title, &r.Model, &items, &outcomes, &matrixJS, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Title = title.String
	if err := json.Unmarshal([]byte(items), &r.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}
	if err := json.Unmarshal([]byte(outcomes), &r.Outcomes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
	}
	var m models.Matrix
	if err := json.Unmarshal([]byte(matrixJS), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal matrix: %w", err)
	}
	r.Matrix = &m
	return &r, nil
}
