// Package cli provides CLI utilities for clipsim.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/clipsim/internal/models"
	"github.com/hyperjump/clipsim/internal/pipeline"
	"github.com/hyperjump/clipsim/internal/render"
	"github.com/hyperjump/clipsim/internal/vector"
)

// OutputFormat is the format for report output on stdout.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const maxItemLine = 64 * 1024

// ReadItems reads one item per line. Blank lines and lines starting with '#' are skipped;
// surrounding whitespace is trimmed.
func ReadItems(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxItemLine)
	var items []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	return items, nil
}

// ReadItemsFile reads items from the file at path.
func ReadItemsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadItems(f)
}

// WriteReport writes r to w. Text output shows failed items, the matrix table and each
// item's top matches; JSON output is the full report.
func WriteReport(w io.Writer, r *models.Report, format OutputFormat, precision, topK int) error {
	switch format {
	case OutputJSON:
		return render.WriteJSON(w, r)
	default:
		return writeReportText(w, r, precision, topK)
	}
}

func writeReportText(w io.Writer, r *models.Report, precision, topK int) error {
	failed := r.Failed()
	if r.Title != "" {
		fmt.Fprintf(w, "%s\n", r.Title)
	}
	fmt.Fprintf(w, "Model: %s | Items: %d | Failed: %d\n\n", r.Model, len(r.Items), len(failed))
	if len(failed) > 0 {
		fmt.Fprintln(w, "--- Failed items (similarities reported as 0) ---")
		for _, o := range failed {
			fmt.Fprintf(w, "[%d] %s\n    %s\n", o.Index, o.Item.Raw, o.Error)
		}
		fmt.Fprintln(w)
	}
	if err := render.WriteTable(w, r.Matrix, precision); err != nil {
		return err
	}
	if topK <= 0 || r.Matrix.Size() < 2 {
		return nil
	}
	fmt.Fprintln(w, "\n--- Top matches ---")
	for i, label := range r.Matrix.Labels {
		if i < len(r.Outcomes) && !r.Outcomes[i].OK {
			continue
		}
		fmt.Fprintf(w, "[%d] %s\n", i, render.ShortLabel(label, 60))
		for _, m := range vector.Rank(r.Matrix, i, topK) {
			fmt.Fprintf(w, "      %.*f  [%d] %s\n", precision, m.Score, m.Index, render.ShortLabel(m.Label, 60))
		}
	}
	return nil
}

// ProgressPrinter returns a pipeline progress callback that prints one line per item to w.
func ProgressPrinter(w io.Writer) pipeline.ProgressFunc {
	return func(done, total int, item models.Item, err error) {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		fmt.Fprintf(w, "[%d/%d] %s %s\n", done, total, render.ShortLabel(item.Raw, 60), status)
	}
}
