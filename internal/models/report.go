package models

import (
	"fmt"
	"time"
)

// Outcome is the per-item result of an embedding batch. A failed item has OK=false and
// a zero vector in the batch, so its similarities are reported as 0.
type Outcome struct {
	Index int    `json:"index"`
	Item  Item   `json:"item"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Matrix is a square similarity matrix labeled by item identity on both axes.
// Labels may repeat when the input did; positions stay distinct by index.
type Matrix struct {
	Labels []string    `json:"labels"`
	Values [][]float64 `json:"values"`
}

// Size returns N for an N×N matrix.
func (m *Matrix) Size() int {
	if m == nil {
		return 0
	}
	return len(m.Labels)
}

// At returns cell (i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.Values[i][j]
}

// Report bundles a batch's per-item outcomes with the resulting matrix.
type Report struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Model     string    `json:"model"`
	Items     []string  `json:"items"`
	Outcomes  []Outcome `json:"outcomes"`
	Matrix    *Matrix   `json:"matrix"`
	CreatedAt time.Time `json:"created_at"`
}

// Failed returns the outcomes of items whose embedding fell back to the zero vector.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.OK {
			failed = append(failed, o)
		}
	}
	return failed
}

// SimilarityRequest is the API input for computing a similarity matrix.
type SimilarityRequest struct {
	Items []string `json:"items"`
	Title string   `json:"title,omitempty"`
	Save  bool     `json:"save,omitempty"`
}

// Validate checks the request against the maximum number of items allowed (0 = unlimited).
func (r *SimilarityRequest) Validate(maxItems int) error {
	if len(r.Items) == 0 {
		return fmt.Errorf("items cannot be empty")
	}
	if maxItems > 0 && len(r.Items) > maxItems {
		return fmt.Errorf("too many items: %d (max %d)", len(r.Items), maxItems)
	}
	for i, it := range r.Items {
		if it == "" {
			return fmt.Errorf("item %d is empty", i)
		}
	}
	return nil
}
