// Package ingest turns uploaded spreadsheet files into typed sheets.
// The rest of the system never sees raw file bytes; it works on the
// normalized Sheet representation produced here.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sheetmind/excel-analyst/internal/store"
)

// MaxFileSizeBytes caps uploads at 50 MB, matching the API contract.
const MaxFileSizeBytes = 50 * 1024 * 1024

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// ParseUpload dispatches on the file extension. Supported formats are
// .xlsx, .xls and .csv.
func ParseUpload(filename string, r io.Reader) ([]*store.Sheet, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
		return ParseXLSX(r)
	case ".csv":
		return ParseCSV(filename, r)
	default:
		return nil, fmt.Errorf("invalid file format %q: supported formats are .xlsx, .xls, .csv", filepath.Ext(filename))
	}
}

// ParseXLSX reads every sheet of a workbook. Sheets that come out empty
// after cleaning are skipped; a workbook with no usable sheets is an
// error.
func ParseXLSX(r io.Reader) ([]*store.Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var sheets []*store.Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		sheet, err := buildSheet(name, rows)
		if err != nil {
			return nil, err
		}
		if sheet == nil {
			log.Printf("Skipping empty sheet %q", name)
			continue
		}
		sheets = append(sheets, sheet)
		log.Printf("Processed sheet %q: %d rows, %d columns", name, len(sheet.Rows), len(sheet.Columns))
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no valid sheets found in workbook")
	}
	return sheets, nil
}

// ParseCSV reads a CSV file as a single sheet named after the file.
func ParseCSV(filename string, r io.Reader) ([]*store.Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if name == "" {
		name = "Sheet1"
	}
	sheet, err := buildSheet(name, records)
	if err != nil {
		return nil, err
	}
	if sheet == nil {
		return nil, fmt.Errorf("no valid rows found in csv")
	}
	log.Printf("Processed sheet %q: %d rows, %d columns", name, len(sheet.Rows), len(sheet.Columns))
	return []*store.Sheet{sheet}, nil
}

// buildSheet normalizes headers, drops fully empty rows and columns,
// infers a type per column and coerces the cells. Returns nil for a
// sheet with no usable data.
func buildSheet(name string, raw [][]string) (*store.Sheet, error) {
	if len(raw) < 1 {
		return nil, nil
	}
	header := raw[0]
	body := raw[1:]

	width := len(header)
	for _, row := range body {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return nil, nil
	}

	names, err := normalizeHeader(name, header, width)
	if err != nil {
		return nil, err
	}

	// Drop rows that are entirely blank.
	var rows [][]string
	for _, row := range body {
		if !rowEmpty(row) {
			rows = append(rows, row)
		}
	}

	// Drop columns that are entirely blank (header included).
	keep := make([]bool, width)
	for i := 0; i < width; i++ {
		if names[i] != "" {
			keep[i] = true
			continue
		}
		for _, row := range rows {
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				keep[i] = true
				break
			}
		}
	}

	var columns []store.Column
	var colIdx []int
	for i := 0; i < width; i++ {
		if !keep[i] {
			continue
		}
		colName := names[i]
		if colName == "" {
			colName = fmt.Sprintf("column_%d", i+1)
		}
		columns = append(columns, store.Column{Name: colName, Type: store.TypeText})
		colIdx = append(colIdx, i)
	}
	if len(columns) == 0 || len(rows) == 0 {
		return nil, nil
	}

	sheet := &store.Sheet{Name: name, Columns: columns}
	for _, row := range rows {
		cells := make([]store.Cell, len(columns))
		for j, src := range colIdx {
			v := ""
			if src < len(row) {
				v = strings.TrimSpace(row[src])
			}
			if v == "" {
				cells[j] = store.NullCell()
			} else {
				cells[j] = store.TextCell(v)
			}
		}
		sheet.Rows = append(sheet.Rows, cells)
	}

	inferTypes(sheet)
	return sheet, nil
}

// normalizeHeader applies column-name normalization and rejects sheets
// where two distinct headers collapse to the same normalized name.
// Silent merging would corrupt the data, so the conflict is surfaced.
func normalizeHeader(sheetName string, header []string, width int) ([]string, error) {
	names := make([]string, width)
	seen := make(map[string]string)
	for i := 0; i < width; i++ {
		orig := ""
		if i < len(header) {
			orig = header[i]
		}
		n := store.NormalizeColumnName(orig)
		if n == "" {
			continue
		}
		if prev, ok := seen[n]; ok {
			return nil, fmt.Errorf("sheet %q: column names %q and %q both normalize to %q", sheetName, prev, orig, n)
		}
		seen[n] = orig
		names[i] = n
	}
	return names, nil
}

func rowEmpty(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// inferTypes assigns each column the type that parses every non-null
// cell: numeric, then temporal, falling back to text. Cells are coerced
// in place.
func inferTypes(sheet *store.Sheet) {
	for ci := range sheet.Columns {
		numeric, temporal := true, true
		nonNull := 0
		for _, row := range sheet.Rows {
			c := row[ci]
			if c.IsNull() {
				continue
			}
			nonNull++
			if _, err := parseNumber(c.Text); err != nil {
				numeric = false
			}
			if _, ok := parseDate(c.Text); !ok {
				temporal = false
			}
		}
		switch {
		case nonNull == 0:
			sheet.Columns[ci].Type = store.TypeText
		case numeric:
			sheet.Columns[ci].Type = store.TypeNumeric
		case temporal:
			sheet.Columns[ci].Type = store.TypeTemporal
		default:
			sheet.Columns[ci].Type = store.TypeText
		}

		for ri, row := range sheet.Rows {
			c := row[ci]
			if c.IsNull() {
				continue
			}
			switch sheet.Columns[ci].Type {
			case store.TypeNumeric:
				v, _ := parseNumber(c.Text)
				sheet.Rows[ri][ci] = store.NumberCell(v)
			case store.TypeTemporal:
				t, _ := parseDate(c.Text)
				sheet.Rows[ri][ci] = store.TimeCell(t)
			}
		}
	}
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strconv.ParseFloat(s, 64)
}

// ParseDate tries the supported date layouts in order.
func ParseDate(s string) (time.Time, bool) {
	return parseDate(s)
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
