// Package render presents similarity reports as text tables, JSON, PNG heatmaps and XLSX workbooks.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hyperjump/clipsim/internal/models"
)

// Format is an output format for a report.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatPNG  Format = "png"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatPNG, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, json, png or xlsx)", s)
}

// FormatForPath infers the format from a file extension; unknown extensions are an error.
func FormatForPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "txt" {
		ext = string(FormatText)
	}
	return ParseFormat(ext)
}

// Options carries presentation settings shared by all formats.
type Options struct {
	Title     string
	Precision int
	CellSize  int
}

// Write renders r to w in format f.
func Write(w io.Writer, r *models.Report, f Format, opts Options) error {
	if r.Matrix == nil {
		return fmt.Errorf("report has no matrix")
	}
	if opts.Precision <= 0 {
		opts.Precision = 3
	}
	switch f {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatPNG:
		title := opts.Title
		if r.Title != "" {
			title = r.Title
		}
		return WriteHeatmapPNG(w, r.Matrix, HeatmapOptions{
			Title:     title,
			CellSize:  opts.CellSize,
			Annotate:  true,
			Precision: 2,
		})
	case FormatXLSX:
		return WriteHeatmapXLSX(w, r, opts.Precision)
	default:
		return WriteTable(w, r.Matrix, opts.Precision)
	}
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *models.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
