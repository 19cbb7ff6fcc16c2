package export

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of WriteXLSX output.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	minColumnWidth = 10
	maxColumnWidth = 60
)

// WriteXLSX encodes table as a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, table Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := SheetName(table.Sheet)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := writeRow(f, sheet, 1, table.Headers); err != nil {
		return err
	}
	for i, row := range table.Rows {
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	for col, width := range columnWidths(table) {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return fmt.Errorf("set width of column %s: %w", name, err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

// columnWidths sizes each column to its longest cell, clamped.
func columnWidths(table Table) []float64 {
	widths := make([]float64, len(table.Headers))
	measure := func(cells []string) {
		for i, c := range cells {
			if i >= len(widths) {
				return
			}
			if n := float64(utf8.RuneCountInString(c) + 2); n > widths[i] {
				widths[i] = n
			}
		}
	}
	measure(table.Headers)
	for _, row := range table.Rows {
		measure(row)
	}
	for i, w := range widths {
		switch {
		case w < minColumnWidth:
			widths[i] = minColumnWidth
		case w > maxColumnWidth:
			widths[i] = maxColumnWidth
		}
	}
	return widths
}
