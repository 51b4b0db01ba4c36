// Package export renders reconciled pairs into the spreadsheet the
// finance team consumes.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rmaraujo/fiscalflow/internal/models"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

// Writer produces the pair report workbook, one row per DocumentPair.
type Writer struct {
	outputPath string
	log        logger.Logger
}

func NewWriter(outputPath string, log logger.Logger) *Writer {
	return &Writer{outputPath: outputPath, log: log.Named("export")}
}

var headers = []string{
	"Processed At",
	"Email Subject",
	"Company",
	"Due Date",
	"Supplier",
	"Document No",
	"Value",
	"Status",
	"Warnings",
}

// WriteReport renders every batch's pairs into one workbook and writes
// it to the configured path. Due-date proximity tags are computed
// against now.
func (w *Writer) WriteReport(batches []*models.Batch, now time.Time) (string, error) {
	f := excelize.NewFile()
	const sheet = "Pairs"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return "", err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defIdx, _ := f.GetSheetIndex("Sheet1"); defIdx != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	rowIdx := 2
	for _, b := range batches {
		for _, p := range b.Pairs {
			row := p.Row(now)
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, rowIdx)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, row.ProcessedAt.Format("2006-01-02 15:04"))
			write(2, row.Subject)
			write(3, row.Company)
			due := ""
			if row.DueDate != nil {
				due = row.DueDate.Format("02/01/2006")
			}
			write(4, due)
			write(5, row.Supplier)
			write(6, row.DocumentNo)
			write(7, fmt.Sprintf("%.2f", row.Value))
			write(8, string(row.Status))
			write(9, row.Warnings)
			rowIdx++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 17)
	_ = f.SetColWidth(sheet, "B", "B", 45)
	_ = f.SetColWidth(sheet, "C", "C", 10)
	_ = f.SetColWidth(sheet, "D", "D", 12)
	_ = f.SetColWidth(sheet, "E", "E", 40)
	_ = f.SetColWidth(sheet, "F", "G", 14)
	_ = f.SetColWidth(sheet, "H", "H", 14)
	_ = f.SetColWidth(sheet, "I", "I", 60)

	if dir := filepath.Dir(w.outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := f.SaveAs(w.outputPath); err != nil {
		return "", fmt.Errorf("write report %s: %w", w.outputPath, err)
	}

	w.log.Info("report written",
		logger.String("path", w.outputPath),
		logger.Int("rows", rowIdx-2),
	)
	return w.outputPath, nil
}
