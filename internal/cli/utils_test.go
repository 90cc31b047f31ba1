package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/clipsim/internal/models"
)

func TestReadItems(t *testing.T) {
	in := `# pets
a dog
  a cat  

https://example.com/dog.jpg
# trailing comment
a dog
`
	items, err := ReadItems(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a dog", "a cat", "https://example.com/dog.jpg", "a dog"}
	if len(items) != len(want) {
		t.Fatalf("got %q, want %q", items, want)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("items[%d] = %q, want %q", i, items[i], want[i])
		}
	}
}

func TestReadItemsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\n"), 0644); err != nil {
		t.Fatal(err)
	}
	items, err := ReadItemsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("got %v", items)
	}
	if _, err := ReadItemsFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func testReport() *models.Report {
	items := []string{"a dog", "a puppy", "https://example.com/missing.jpg", "a car"}
	parsed := models.ParseItems(items)
	outcomes := make([]models.Outcome, len(items))
	for i := range items {
		outcomes[i] = models.Outcome{Index: i, Item: parsed[i], OK: true}
	}
	outcomes[2].OK = false
	outcomes[2].Error = "retrieve https://example.com/missing.jpg: HTTP 404"
	return &models.Report{
		Title:    "demo",
		Model:    "mock",
		Items:    items,
		Outcomes: outcomes,
		Matrix: &models.Matrix{
			Labels: items,
			Values: [][]float64{
				{1, 0.9, 0, 0.2},
				{0.9, 1, 0, 0.1},
				{0, 0, 0, 0},
				{0.2, 0.1, 0, 1},
			},
		},
	}
}

func TestWriteReport_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReport(&buf, testReport(), OutputText, 3, 1); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Model: mock | Items: 4 | Failed: 1",
		"HTTP 404",
		"0.900",
		"--- Top matches ---",
		"0.900  [1] a puppy",
		"0.900  [0] a dog",
		"0.200  [0] a dog",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "[2] https://example.com/missing.jpg\n      ") {
		t.Errorf("failed item should not get a top-matches block:\n%s", out)
	}
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteReport(&buf, testReport(), OutputJSON, 3, 3); err != nil {
		t.Fatal(err)
	}
	var decoded models.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Matrix.Size() != 4 || decoded.Outcomes[2].OK {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := ProgressPrinter(&buf)
	p(1, 2, models.ParseItem("a dog"), nil)
	p(2, 2, models.ParseItem("https://example.com/x.png"), errors.New("boom"))
	want := "[1/2] a dog ok\n[2/2] https://example.com/x.png failed\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
