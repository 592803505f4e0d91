// Package export writes record tables as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"imagemeta/internal/domain"
)

// Columns is the header row shared by both formats.
var Columns = []string{"filename", "filepath", "title", "keyword", "description", "status"}

const sheetName = "Metadata"

// Format selects an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath picks the format from a file extension, defaulting to CSV.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Write encodes records in the given format.
func Write(w io.Writer, format Format, records []domain.FileRecord) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, records)
	case FormatCSV, "":
		return WriteCSV(w, records)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func row(r domain.FileRecord) []string {
	name := r.DisplayName
	if name == "" {
		name = filepath.Base(r.Path)
	}
	return []string{name, r.Path, r.Title, r.KeywordString(), r.Description, string(r.Status)}
}

// WriteCSV writes a header and one row per record, values verbatim.
func WriteCSV(w io.Writer, records []domain.FileRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the same table as a single-sheet workbook.
func WriteXLSX(w io.Writer, records []domain.FileRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if index, _ := f.GetSheetIndex(sheetName); index == -1 {
		if _, err := f.NewSheet(sheetName); err != nil {
			return err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	for i, r := range records {
		for col, value := range row(r) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheetName, cell, value)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 28) // filename
	_ = f.SetColWidth(sheetName, "B", "B", 60) // path
	_ = f.SetColWidth(sheetName, "C", "C", 36) // title
	_ = f.SetColWidth(sheetName, "D", "D", 48) // keywords
	_ = f.SetColWidth(sheetName, "E", "E", 80) // description
	_ = f.SetColWidth(sheetName, "F", "F", 12) // status

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}
