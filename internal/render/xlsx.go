package render

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/clipsim/internal/models"
)

const (
	matrixSheet = "similarity"
	itemsSheet  = "items"
)

// WriteHeatmapXLSX writes a workbook with the labeled matrix under a Viridis 3-color scale
// and an items sheet listing each item's kind and embedding outcome.
func WriteHeatmapXLSX(w io.Writer, r *models.Report, precision int) error {
	if r.Matrix == nil || r.Matrix.Size() == 0 {
		return fmt.Errorf("report has no matrix")
	}
	f, err := buildWorkbook(r, precision)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func buildWorkbook(r *models.Report, precision int) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", matrixSheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeMatrixSheet(f, r.Matrix, precision); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write matrix sheet: %w", err)
	}
	if err := writeItemsSheet(f, r.Outcomes); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write items sheet: %w", err)
	}
	return f, nil
}

func writeMatrixSheet(f *excelize.File, m *models.Matrix, precision int) error {
	n := m.Size()
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{TextRotation: 90, Vertical: "bottom"},
	})
	if err != nil {
		return err
	}
	numFmt := "0." + zeros(precision)
	values, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return err
	}

	for j, label := range m.Labels {
		cell, err := excelize.CoordinatesToCellName(j+2, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(matrixSheet, cell, label); err != nil {
			return err
		}
	}
	for i, label := range m.Labels {
		row := make([]interface{}, 0, n+1)
		row = append(row, label)
		for j := 0; j < n; j++ {
			row = append(row, m.Values[i][j])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(matrixSheet, cell, &row); err != nil {
			return err
		}
	}

	first, _ := excelize.CoordinatesToCellName(2, 1)
	lastHeader, _ := excelize.CoordinatesToCellName(n+1, 1)
	if err := f.SetCellStyle(matrixSheet, first, lastHeader, header); err != nil {
		return err
	}
	topLeft, _ := excelize.CoordinatesToCellName(2, 2)
	bottomRight, _ := excelize.CoordinatesToCellName(n+1, n+1)
	if err := f.SetCellStyle(matrixSheet, topLeft, bottomRight, values); err != nil {
		return err
	}
	if err := f.SetConditionalFormat(matrixSheet, topLeft+":"+bottomRight, []excelize.ConditionalFormatOptions{{
		Type:     "3_color_scale",
		Criteria: "=",
		MinType:  "min",
		MidType:  "percentile",
		MidValue: "50",
		MaxType:  "max",
		MinColor: "#440154",
		MidColor: "#21918C",
		MaxColor: "#FDE725",
	}}); err != nil {
		return err
	}
	return f.SetColWidth(matrixSheet, "A", "A", 40)
}

func writeItemsSheet(f *excelize.File, outcomes []models.Outcome) error {
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(itemsSheet, "A1", &[]interface{}{"index", "item", "kind", "status", "error"}); err != nil {
		return err
	}
	for i, o := range outcomes {
		status := "ok"
		if !o.OK {
			status = "failed"
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{o.Index, o.Item.Raw, string(o.Item.Kind), status, o.Error}
		if err := f.SetSheetRow(itemsSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(itemsSheet, "B", "B", 60)
}

func zeros(n int) string {
	if n <= 0 {
		n = 3
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
