package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/clipsim/internal/config"
	"github.com/hyperjump/clipsim/internal/embedding"
	"github.com/hyperjump/clipsim/internal/fetch"
	"github.com/hyperjump/clipsim/internal/models"
	"github.com/hyperjump/clipsim/internal/pipeline"
	"github.com/hyperjump/clipsim/internal/service"
	"github.com/hyperjump/clipsim/internal/storage"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	if strings.Contains(url, "missing") {
		return nil, &fetch.RetrievalError{URL: url, StatusCode: http.StatusNotFound}
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (stubFetcher) Stats() fetch.Stats { return fetch.Stats{Hits: 2, Misses: 1} }

func newTestServer(t *testing.T, withStorage bool) (*Server, storage.Storage) {
	t.Helper()
	var store storage.Storage
	if withStorage {
		s, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "reports.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = s.Close() })
		store = s
	}
	p := pipeline.New(embedding.NewMockBackend(8), stubFetcher{})
	svc := service.New(p, store)
	srv := NewServer(svc, stubFetcher{}, &config.ServerConfig{Port: 8080, MaxItems: 3},
		config.RenderConfig{Precision: 3, CellSize: 20}, zap.NewNop())
	return srv, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleSimilarity(t *testing.T) {
	srv, _ := newTestServer(t, false)
	h := srv.Handler()

	w := do(t, h, http.MethodPost, "/api/v1/similarity",
		`{"items":["a dog","https://example.com/missing.jpg","a dog"],"title":"pets"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", w.Code, w.Body)
	}
	var report models.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Title != "pets" || report.Matrix.Size() != 3 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.ID != "" {
		t.Errorf("unsaved report should have no ID, got %q", report.ID)
	}
	failed := report.Failed()
	if len(failed) != 1 || !strings.Contains(failed[0].Error, "404") {
		t.Errorf("failed outcomes: %+v", failed)
	}
	if report.Matrix.At(0, 2) < 1-1e-6 {
		t.Errorf("duplicate similarity = %v", report.Matrix.At(0, 2))
	}
}

func TestHandleSimilarity_badRequests(t *testing.T) {
	srv, _ := newTestServer(t, false)
	h := srv.Handler()
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"items":`},
		{"empty items", `{"items":[]}`},
		{"too many items", `{"items":["a","b","c","d"]}`},
		{"blank item", `{"items":["a",""]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/similarity", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", w.Code)
			}
		})
	}
}

func TestReportsLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, true)
	h := srv.Handler()

	w := do(t, h, http.MethodPost, "/api/v1/similarity", `{"items":["a dog","a cat"],"save":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d body %s", w.Code, w.Body)
	}
	var saved models.Report
	if err := json.NewDecoder(w.Body).Decode(&saved); err != nil {
		t.Fatal(err)
	}
	if saved.ID == "" {
		t.Fatal("saved report should have an ID")
	}

	w = do(t, h, http.MethodGet, "/api/v1/reports", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status: %d", w.Code)
	}
	var list struct {
		Reports []models.Report `json:"reports"`
		Total   int64           `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || len(list.Reports) != 1 || list.Reports[0].ID != saved.ID {
		t.Errorf("list = %+v", list)
	}

	w = do(t, h, http.MethodGet, "/api/v1/reports/"+saved.ID, "")
	if w.Code != http.StatusOK {
		t.Errorf("get status: %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/v1/reports/"+saved.ID+"/heatmap.png", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("png: status %d type %q", w.Code, w.Header().Get("Content-Type"))
	}
	if _, err := png.Decode(w.Body); err != nil {
		t.Errorf("png decode: %v", err)
	}

	w = do(t, h, http.MethodGet, "/api/v1/reports/"+saved.ID+"/heatmap.xlsx", "")
	if w.Code != http.StatusOK {
		t.Fatalf("xlsx status: %d", w.Code)
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("xlsx open: %v", err)
	}
	if v, _ := f.GetCellValue("similarity", "B1"); v != "a dog" {
		t.Errorf("xlsx B1 = %q", v)
	}
	_ = f.Close()

	w = do(t, h, http.MethodDelete, "/api/v1/reports/"+saved.ID, "")
	if w.Code != http.StatusOK {
		t.Errorf("delete status: %d", w.Code)
	}
	for _, path := range []string{
		"/api/v1/reports/" + saved.ID,
		"/api/v1/reports/" + saved.ID + "/heatmap.png",
	} {
		if w := do(t, h, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
			t.Errorf("GET %s after delete: got %d, want 404", path, w.Code)
		}
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/reports/"+saved.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", w.Code)
	}
}

func TestListReports_badPaging(t *testing.T) {
	srv, _ := newTestServer(t, true)
	h := srv.Handler()
	for _, q := range []string{"?offset=-1", "?limit=0", "?limit=x"} {
		if w := do(t, h, http.MethodGet, "/api/v1/reports"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", q, w.Code)
		}
	}
}

func TestReports_withoutStorage(t *testing.T) {
	srv, _ := newTestServer(t, false)
	h := srv.Handler()
	if w := do(t, h, http.MethodGet, "/api/v1/reports", ""); w.Code != http.StatusNotImplemented {
		t.Errorf("list: got %d", w.Code)
	}
	w := do(t, h, http.MethodPost, "/api/v1/similarity", `{"items":["a"],"save":true}`)
	if w.Code != http.StatusOK {
		t.Errorf("save without storage should still compute, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, false)
	w := do(t, srv.Handler(), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, store := newTestServer(t, true)
	r := &models.Report{Model: "mock", Items: []string{"a"}, Matrix: &models.Matrix{Labels: []string{"a"}, Values: [][]float64{{1}}}}
	if err := store.SaveReport(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var body struct {
		Model      string     `json:"model"`
		Dimensions int        `json:"dimensions"`
		Reports    int64      `json:"reports"`
		ImageCache fetch.Stats `json:"image_cache"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Model != "mock" || body.Dimensions != 8 || body.Reports != 1 || body.ImageCache.Hits != 2 {
		t.Errorf("status body = %+v", body)
	}
}

func TestStop_notStarted(t *testing.T) {
	srv, _ := newTestServer(t, false)
	if err := srv.Stop(context.Background()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Stop: %v", err)
	}
}

func TestRespondJSON_unencodableBody(t *testing.T) {
	srv, _ := newTestServer(t, false)
	w := httptest.NewRecorder()
	srv.respondJSON(w, http.StatusOK, map[string]float64{"score": math.NaN()})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Errorf("body = %q (%v)", w.Body.String(), err)
	}
}
