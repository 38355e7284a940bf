// Package spreadsheet streams rows out of .xlsx workbooks.
package spreadsheet

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ErrUnreadable wraps every failure to open or decode a workbook.
var ErrUnreadable = errors.New("unreadable spreadsheet")

// Workbook reads the active sheet of one workbook.
type Workbook struct {
	f     *excelize.File
	sheet string
}

func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return newWorkbook(f)
}

// OpenReader reads a whole workbook from r, for uploads that have not
// been written anywhere yet.
func OpenReader(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return newWorkbook(f)
}

func newWorkbook(f *excelize.File) (*Workbook, error) {
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, fmt.Errorf("%w: no sheets found", ErrUnreadable)
		}
		sheet = sheets[0]
	}
	return &Workbook{f: f, sheet: sheet}, nil
}

func (w *Workbook) Close() error {
	return w.f.Close()
}

func (w *Workbook) Sheet() string { return w.sheet }

// Rows starts a streaming pass over the sheet. Row 1 is the header.
func (w *Workbook) Rows() (*RowIterator, error) {
	rows, err := w.f.Rows(w.sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return &RowIterator{rows: rows}, nil
}

// Header returns the cells of row 1.
func (w *Workbook) Header() ([]string, error) {
	it, err := w.Rows()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	if !it.Next() {
		if err := it.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return it.Cells()
}

// ReadHeader opens path, reads only the header row and closes the file.
func ReadHeader(path string) ([]string, error) {
	w, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	return w.Header()
}

// RowIterator yields rows in document order, including empty ones, so
// Index always matches the sheet's row number.
type RowIterator struct {
	rows  *excelize.Rows
	index int
	err   error
}

func (it *RowIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Error()
		return false
	}
	it.index++
	return true
}

// Index is the 1-based row number of the current row.
func (it *RowIterator) Index() int { return it.index }

// Cells returns the stored values of the current row. Number formats are
// not applied, so a styled numeric cell reads as the number it holds.
func (it *RowIterator) Cells() ([]string, error) {
	cells, err := it.rows.Columns(excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: row %d: %v", ErrUnreadable, it.index, err)
	}
	return cells, nil
}

func (it *RowIterator) Err() error {
	if it.err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, it.err)
	}
	return nil
}

func (it *RowIterator) Close() error {
	return it.rows.Close()
}

// IsBlank reports whether every cell is empty.
func IsBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
