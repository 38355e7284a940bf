package testutil

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// CreateTestZip writes a zip archive holding the given files and returns
// its path.
func CreateTestZip(t *testing.T, dir, name string, files map[string][]byte) string {
	t.Helper()
	filePath := filepath.Join(dir, name)
	file, err := os.Create(filePath)
	if err != nil {
		t.Fatalf("Failed to create temp zip file: %v", err)
	}
	defer file.Close()

	zipWriter := zip.NewWriter(file)
	for entry, data := range files {
		w, err := zipWriter.Create(entry)
		if err != nil {
			t.Fatalf("Failed to create entry '%s' in zip: %v", entry, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("Failed to write entry '%s': %v", entry, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("Failed to finalize zip: %v", err)
	}
	return filePath
}

// WriteSpreadsheet saves rows to an .xlsx workbook. Empty rows are left
// out of the sheet entirely.
func WriteSpreadsheet(t *testing.T, dir, name string, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("Invalid cell for row %d: %v", i+1, err)
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			t.Fatalf("Failed to write row %d: %v", i+1, err)
		}
	}

	filePath := filepath.Join(dir, name)
	if err := f.SaveAs(filePath); err != nil {
		t.Fatalf("Failed to save spreadsheet: %v", err)
	}
	return filePath
}

// SpreadsheetBytes is WriteSpreadsheet for tests that upload the workbook.
func SpreadsheetBytes(t *testing.T, rows [][]string) []byte {
	t.Helper()
	path := WriteSpreadsheet(t, t.TempDir(), "upload.xlsx", rows)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read spreadsheet: %v", err)
	}
	return data
}

// StyledSpreadsheetBytes writes typed cell values and applies built-in
// number formats, keyed by cell name, the way spreadsheet editors store
// formatted numbers.
func StyledSpreadsheetBytes(t *testing.T, rows [][]interface{}, numFmts map[string]int) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("Invalid cell for row %d: %v", i+1, err)
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			t.Fatalf("Failed to write row %d: %v", i+1, err)
		}
	}
	for cell, numFmt := range numFmts {
		style, err := f.NewStyle(&excelize.Style{NumFmt: numFmt})
		if err != nil {
			t.Fatalf("Failed to create style: %v", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			t.Fatalf("Failed to style %s: %v", cell, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("Failed to write spreadsheet: %v", err)
	}
	return buf.Bytes()
}

// ZipBytes is CreateTestZip for tests that upload the archive.
func ZipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	data, err := os.ReadFile(CreateTestZip(t, t.TempDir(), "upload.zip", files))
	if err != nil {
		t.Fatalf("Failed to read zip: %v", err)
	}
	return data
}

// PNG returns a small solid colour image.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}
