package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/clipsim/internal/models"
	"github.com/hyperjump/clipsim/pkg/utils"
)

const tableLabelWidth = 14

// ShortLabel shortens an item label for display. URLs keep their tail (the file name); text keeps its head.
func ShortLabel(label string, maxLen int) string {
	if models.ParseItem(label).IsImage() {
		return utils.TruncateLeft(label, maxLen)
	}
	return utils.Truncate(label, maxLen)
}

// WriteTable writes the matrix as a fixed-width text table with values rounded to precision decimals.
func WriteTable(w io.Writer, m *models.Matrix, precision int) error {
	if precision < 0 {
		precision = 3
	}
	colWidth := max(precision+4, 8)
	labelW := tableLabelWidth + 3

	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", labelW))
	for j := range m.Labels {
		fmt.Fprintf(&sb, " %*s", colWidth, fmt.Sprintf("[%d]", j))
	}
	sb.WriteString("\n")
	for i, label := range m.Labels {
		fmt.Fprintf(&sb, "%-*s", labelW, ShortLabel(label, tableLabelWidth))
		for j := range m.Labels {
			fmt.Fprintf(&sb, " %*.*f", colWidth, precision, m.Values[i][j])
		}
		fmt.Fprintf(&sb, "  [%d]\n", i)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
