package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// DecodeXLSX reads the first sheet of a workbook.
func DecodeXLSX(r io.Reader) (Source, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Source{}, fmt.Errorf("tabular: open workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Source{}, ErrEmptySource
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Source{}, fmt.Errorf("tabular: read rows: %w", err)
	}
	if len(rows) == 0 {
		return Source{}, ErrEmptySource
	}
	return Source{Header: rows[0], Rows: rows[1:]}, nil
}

// WriteXLSX renders the grid as a single-sheet workbook.
func WriteXLSX(w io.Writer, g Grid) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	sheet := f.GetSheetName(0)
	if err := setRow(f, sheet, 1, g.Header); err != nil {
		return err
	}
	for i, row := range g.Rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("tabular: write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("tabular: cell name: %w", err)
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("tabular: set row %d: %w", rowNum, err)
	}
	return nil
}
