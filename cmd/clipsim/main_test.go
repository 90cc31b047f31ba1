package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/clipsim/internal/embedding"
	"github.com/hyperjump/clipsim/internal/models"
)

func TestParseInterleaved(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantItems []string
		wantFmt   string
	}{
		{
			name:      "flags first",
			args:      []string{"-format", "json", "a dog", "a cat"},
			wantItems: []string{"a dog", "a cat"},
			wantFmt:   "json",
		},
		{
			name:      "flags between items keep item order",
			args:      []string{"a dog", "-format", "json", "a cat"},
			wantItems: []string{"a dog", "a cat"},
			wantFmt:   "json",
		},
		{
			name:      "flags last",
			args:      []string{"a dog", "a cat", "-format=json"},
			wantItems: []string{"a dog", "a cat"},
			wantFmt:   "json",
		},
		{
			name:      "no args",
			args:      []string{},
			wantItems: nil,
			wantFmt:   "text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("run", flag.ContinueOnError)
			format := fs.String("format", "text", "")
			got, err := parseInterleaved(fs, tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.wantItems) {
				t.Errorf("items = %v, want %v", got, tt.wantItems)
			}
			if *format != tt.wantFmt {
				t.Errorf("format = %q, want %q", *format, tt.wantFmt)
			}
		})
	}
}

func TestCollectItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.txt")
	if err := os.WriteFile(path, []byte("# header\nfrom file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		file string
		args []string
		want []string
	}{
		{"sample fallback", "", nil, sampleItems},
		{"args only", "", []string{"x", "y"}, []string{"x", "y"}},
		{"file then args", path, []string{"x"}, []string{"from file", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collectItems(tt.file, tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("collectItems = %v, want %v", got, tt.want)
			}
		})
	}
	if _, err := collectItems(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("expected error for missing items file")
	}
}

func TestSampleItems(t *testing.T) {
	parsed := models.ParseItems(sampleItems)
	images := 0
	for _, it := range parsed {
		if it.IsImage() {
			images++
		}
	}
	if len(sampleItems) != 9 || images != 3 {
		t.Errorf("sample list: %d items, %d images", len(sampleItems), images)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const mockConfig = `
embedding:
  backend: mock
  dimensions: 8
storage:
  database_path: ./reports.db
render:
  title: Test Matrix
`

func TestLoadConfig_explicitPath(t *testing.T) {
	path := writeConfig(t, mockConfig)
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Embedding.Backend != embedding.BackendMock || cfg.Embedding.Dimensions != 8 {
		t.Errorf("embedding config = %+v", cfg.Embedding)
	}
	if cfg.Storage.DatabasePath != filepath.Join(filepath.Dir(path), "reports.db") {
		t.Errorf("database path = %q", cfg.Storage.DatabasePath)
	}
}

func TestLoadConfig_cwdFallback(t *testing.T) {
	path := writeConfig(t, mockConfig)
	t.Chdir(filepath.Dir(path))
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(resolved) != "config.yaml" || cfg.Embedding.Backend != embedding.BackendMock {
		t.Errorf("resolved %q backend %q", resolved, cfg.Embedding.Backend)
	}
}

func TestLoadConfig_builtinDefaults(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists")
	}
	t.Chdir(t.TempDir())
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want built-in defaults", resolved)
	}
	if cfg.Embedding.Dimensions != 512 || cfg.Server.Port != 8080 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestRunCompute_jsonAndPNG(t *testing.T) {
	cfgPath := writeConfig(t, mockConfig)
	outPath := filepath.Join(t.TempDir(), "out", "heatmap.png")
	var stdout, stderr bytes.Buffer
	args := []string{"-config", cfgPath, "-format", "json", "-out", outPath, "a dog", "a cat", "a dog"}
	if err := runCompute(args, &stdout, &stderr); err != nil {
		t.Fatalf("runCompute: %v\nstderr: %s", err, stderr.String())
	}

	var report models.Report
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, stdout.String())
	}
	if report.Title != "Test Matrix" || report.Matrix.Size() != 3 {
		t.Errorf("report = %+v", report)
	}
	if report.Matrix.At(0, 2) < 1-1e-6 {
		t.Errorf("duplicate similarity = %v", report.Matrix.At(0, 2))
	}
	if !strings.Contains(stderr.String(), "[3/3] a dog ok") {
		t.Errorf("expected progress lines on stderr:\n%s", stderr.String())
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("output is not a PNG: %v", err)
	}
}

func TestRunCompute_textAndSave(t *testing.T) {
	cfgPath := writeConfig(t, mockConfig)
	var stdout, stderr bytes.Buffer
	args := []string{"-config", cfgPath, "-save", "-quiet", "-top", "1", "a dog", "a cat"}
	if err := runCompute(args, &stdout, &stderr); err != nil {
		t.Fatalf("runCompute: %v", err)
	}
	if !strings.Contains(stdout.String(), "Model: mock | Items: 2 | Failed: 0") {
		t.Errorf("unexpected text output:\n%s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Saved report ") {
		t.Errorf("expected saved report id on stderr:\n%s", stderr.String())
	}
	if strings.Contains(stderr.String(), "[1/2]") {
		t.Errorf("-quiet should suppress progress:\n%s", stderr.String())
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(cfgPath), "reports.db")); err != nil {
		t.Errorf("report database not created: %v", err)
	}
}

func TestRunCompute_backendInitFailure(t *testing.T) {
	cfgPath := writeConfig(t, `
embedding:
  backend: onnx
  library_path: /nonexistent/libonnxruntime.so
  text_model_path: /nonexistent/text.onnx
  image_model_path: /nonexistent/image.onnx
`)
	var stdout, stderr bytes.Buffer
	err := runCompute([]string{"-config", cfgPath, "a dog"}, &stdout, &stderr)
	var initErr *embedding.BackendInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected BackendInitError, got %v", err)
	}
	if strings.Contains(stderr.String(), "[1/1]") || stdout.Len() != 0 {
		t.Errorf("no item should be processed after init failure; stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}

func TestRunCompute_invalidFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := runCompute([]string{"-format", "yaml", "x"}, &stdout, &stderr); err == nil {
		t.Error("expected error for unknown -format")
	}
	if err := runCompute([]string{"-out", "heatmap.pdf", "x"}, &stdout, &stderr); err == nil {
		t.Error("expected error for unsupported -out extension")
	}
}

func TestRunWatch_requiresItems(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := runWatch(nil, &stdout, &stderr); err == nil {
		t.Error("expected error without -items")
	}
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	for _, cmd := range []string{"clipsim run", "clipsim server", "clipsim watch"} {
		if !strings.Contains(buf.String(), cmd) {
			t.Errorf("usage missing %q", cmd)
		}
	}
}

func TestSerialize_noOverlap(t *testing.T) {
	var active, maxActive atomic.Int32
	var calls []string
	fn := serialize(func(path string) {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		calls = append(calls, path)
		active.Add(-1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn("items.txt")
		}()
	}
	wg.Wait()

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent calls = %d, want 1", maxActive.Load())
	}
	if len(calls) != 8 {
		t.Errorf("calls = %d, want 8", len(calls))
	}
}
