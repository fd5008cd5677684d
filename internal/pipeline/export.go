package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"articulator/internal"
)

const (
	acceptedSheet = "articulations"
	rejectedSheet = "rejected"
)

// ExportBatchToXLSX writes a review workbook: accepted entries in the CSV
// column order plus review columns, and rejected entries with reasons.
func ExportBatchToXLSX(batch internal.ArticulationBatch, rejected []internal.Rejection, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), acceptedSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(rejectedSheet); err != nil {
		return err
	}

	headers := append(append([]string(nil), csvHeader...), "row", "suspicious", "notes")
	writeRow(f, acceptedSheet, 1, toAny(headers))
	for i, e := range batch.Entries {
		values := toAny(CSVRecord(batch, e))
		values = append(values, e.Row, e.Suspicious, strings.Join(e.Notes, "; "))
		writeRow(f, acceptedSheet, i+2, values)
	}

	writeRow(f, rejectedSheet, 1, []any{"row", "course_code", "course_name", "equivalent_course_code", "equivalent_course_name", "reasons"})
	for i, r := range rejected {
		writeRow(f, rejectedSheet, i+2, []any{
			r.Entry.Row, r.Entry.SourceCode, r.Entry.SourceName, r.Entry.DestCode, r.Entry.DestName, strings.Join(r.Reasons, "; "),
		})
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeRow(f *excelize.File, sheet string, r int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, r)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// WriteCSVFile serializes a batch to path, creating parent directories.
func WriteCSVFile(batch internal.ArticulationBatch, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, batch); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
