package magicrows

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Row is one table row: column name to cell value. Cells hold strings as
// loaded from CSV, but enrichment may add numbers, slices, Absent markers,
// or ErrorValue cells.
type Row map[string]any

// Absence is the marker stored for enrichment fields that have no value:
// unprocessed preview rows, empty collections in expand mode, or reasoning
// that did not come back in the expected shape.
type Absence struct{}

func (Absence) String() string { return "" }

// Absent is the shared absence marker.
var Absent = Absence{}

// Table is an ordered-column, in-memory table. Column order is
// significant: assembly appends enrichment fields after the original
// columns and CSV output follows it.
type Table struct {
	cols []string
	rows []Row
}

// NewTable builds a table over the given columns. Rows are used as-is;
// cells for missing columns read as nil.
func NewTable(cols []string, rows ...Row) *Table {
	return &Table{cols: append([]string(nil), cols...), rows: rows}
}

// Columns returns the column names in order.
func (t *Table) Columns() []string { return append([]string(nil), t.cols...) }

// Len reports the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the i-th row.
func (t *Table) Row(i int) Row { return t.rows[i] }

// Head returns a view over the first n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.rows) {
		n = len(t.rows)
	}
	return &Table{cols: t.cols, rows: t.rows[:n]}
}

// ReadCSV loads a table from comma-separated data with a header row.
func ReadCSV(r io.Reader) (*Table, error) {
	return readDelimited(r, ',')
}

// ReadTableFile loads a table from a CSV or TSV file, picking the
// delimiter from the detected content type.
func ReadTableFile(path string) (*Table, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", path, err)
	}
	delim := byte(',')
	if mt.Is("text/tab-separated-values") {
		delim = '\t'
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readDelimited(f, rune(delim))
}

func readDelimited(r io.Reader, delim rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return &Table{cols: header, rows: rows}, nil
}

// WriteCSV writes the table with a header row. Absent cells render empty;
// error markers render through their String form so failures stay visible
// downstream.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.cols); err != nil {
		return err
	}
	rec := make([]string, len(t.cols))
	for _, row := range t.rows {
		for i, col := range t.cols {
			rec[i] = cellString(row[col])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case Absence:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = cellString(item)
		}
		return strings.Join(parts, "; ")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
