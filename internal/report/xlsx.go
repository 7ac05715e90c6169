package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxSheet     = "Results"
	xlsxHeaderRow = 5
)

var xlsxColumns = []string{"#", "Section", "Question", "Options", "Correct answer", "Your answer", "Result", "Explanation", "Image"}

// WriteXLSX renders r as a spreadsheet: a summary block, then one row per
// question with the image anchored in the last column.
func (e Exporter) WriteXLSX(w io.Writer, r Report) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close workbook: %w", ErrExport, cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}

	summary := [][]any{
		{r.Title()},
		{"Score", r.Score, "Total", r.Total, "Percentage", fmt.Sprintf("%d%%", r.Percentage)},
		{"Result", r.Message, "Incorrect", r.Incorrect, "Unanswered", r.Unanswered},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(xlsxSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("%w: %w", ErrExport, err)
		}
	}

	header := make([]any, len(xlsxColumns))
	for i, c := range xlsxColumns {
		header[i] = c
	}
	headerCell := fmt.Sprintf("A%d", xlsxHeaderRow)
	if err := f.SetSheetRow(xlsxSheet, headerCell, &header); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(xlsxColumns))
	_ = f.SetCellStyle(xlsxSheet, "A1", "A1", bold)
	_ = f.SetCellStyle(xlsxSheet, headerCell, fmt.Sprintf("%s%d", lastCol, xlsxHeaderRow), bold)

	for i, it := range r.Items {
		row := xlsxHeaderRow + 1 + i
		result := "Wrong"
		switch {
		case it.Skipped:
			result = SkippedLabel
		case it.Correct:
			result = "Correct"
		}
		options := make([]string, len(it.Options))
		for j, o := range it.Options {
			options[j] = fmt.Sprintf("%c. %s", 'A'+j, o)
		}

		values := []any{it.Number, it.Section, it.Text, strings.Join(options, "\n"), it.CorrectAnswer, it.ChosenAnswer, result, it.Explanation}
		if err := f.SetSheetRow(xlsxSheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return fmt.Errorf("%w: %w", ErrExport, err)
		}
		_ = f.SetCellStyle(xlsxSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("H%d", row), wrap)

		im, ok, err := e.itemImage(it)
		if err != nil {
			return err
		}
		if ok {
			cell := fmt.Sprintf("%s%d", lastCol, row)
			if err := f.AddPictureFromBytes(xlsxSheet, cell, &excelize.Picture{
				Extension: im.ext(),
				File:      im.data,
				Format: &excelize.GraphicOptions{
					AltText:         fmt.Sprintf("Illustration for question %d", it.Number),
					AutoFit:         true,
					LockAspectRatio: true,
				},
			}); err != nil {
				return fmt.Errorf("%w: question %d image: %w", ErrExport, it.Number, err)
			}
			_ = f.SetRowHeight(xlsxSheet, row, 120)
		}
	}

	_ = f.SetColWidth(xlsxSheet, "C", "C", 60)
	_ = f.SetColWidth(xlsxSheet, "D", "H", 30)
	_ = f.SetColWidth(xlsxSheet, lastCol, lastCol, 40)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("%w: write xlsx: %w", ErrExport, err)
	}
	return nil
}
