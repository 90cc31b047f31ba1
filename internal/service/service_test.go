package service

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/clipsim/internal/embedding"
	"github.com/hyperjump/clipsim/internal/pipeline"
	"github.com/hyperjump/clipsim/internal/storage"
)

type failingFetcher struct{ calls int }

func (f *failingFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	f.calls++
	return nil, errors.New("offline")
}

func newService(t *testing.T, store storage.Storage) (*Service, *failingFetcher) {
	t.Helper()
	fetcher := &failingFetcher{}
	p := pipeline.New(embedding.NewMockBackend(16), fetcher, pipeline.WithLogger(zap.NewNop()))
	return New(p, store, WithDefaultTitle("default title")), fetcher
}

func TestCompute(t *testing.T) {
	svc, fetcher := newService(t, nil)
	items := []string{"a dog", "https://example.com/cat.jpg", "a dog"}
	r, err := svc.Compute(context.Background(), items, "")
	if err != nil {
		t.Fatal(err)
	}
	if r.Title != "default title" || r.Model != "mock" {
		t.Errorf("title/model = %q/%q", r.Title, r.Model)
	}
	if r.Matrix.Size() != 3 || len(r.Outcomes) != 3 {
		t.Fatalf("unexpected report shape: %+v", r)
	}
	if v := r.Matrix.At(0, 2); v < 1-1e-6 {
		t.Errorf("duplicate items should have similarity 1, got %v", v)
	}
	for j := 0; j < 3; j++ {
		if r.Matrix.At(1, j) != 0 || r.Matrix.At(j, 1) != 0 {
			t.Errorf("failed item row/col should be 0 at %d", j)
		}
	}
	if failed := r.Failed(); len(failed) != 1 || failed[0].Index != 1 {
		t.Errorf("failed outcomes = %+v", failed)
	}
	if fetcher.calls != 1 {
		t.Errorf("expected 1 fetch, got %d", fetcher.calls)
	}
}

func TestCompute_noItems(t *testing.T) {
	svc, _ := newService(t, nil)
	if _, err := svc.Compute(context.Background(), nil, "x"); !errors.Is(err, ErrNoItems) {
		t.Errorf("expected ErrNoItems, got %v", err)
	}
}

func TestCompute_keepsTitle(t *testing.T) {
	svc, _ := newService(t, nil)
	r, err := svc.Compute(context.Background(), []string{"one"}, "mine")
	if err != nil {
		t.Fatal(err)
	}
	if r.Title != "mine" {
		t.Errorf("title = %q", r.Title)
	}
	if r.Matrix.At(0, 0) < 1-1e-6 {
		t.Errorf("single item diagonal = %v", r.Matrix.At(0, 0))
	}
}

func TestSave(t *testing.T) {
	svc, _ := newService(t, nil)
	r, _ := svc.Compute(context.Background(), []string{"a"}, "")
	if err := svc.Save(context.Background(), r); !errors.Is(err, ErrNoStorage) {
		t.Errorf("expected ErrNoStorage, got %v", err)
	}

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "r.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	svc, _ = newService(t, store)
	r, err = svc.Compute(context.Background(), []string{"a", "b"}, "saved")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Save(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetReport(context.Background(), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "saved" || got.Matrix.Size() != 2 {
		t.Errorf("stored report = %+v", got)
	}
}
