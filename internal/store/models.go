package store

import (
	"strconv"
	"strings"
	"time"
)

// ColumnType is the ingestion-time type of a column. Action execution is
// driven by this type, never by the heuristic semantic labels attached
// during metadata extraction.
type ColumnType string

const (
	TypeNumeric  ColumnType = "numeric"
	TypeTemporal ColumnType = "temporal"
	TypeText     ColumnType = "text"
)

// CellKind discriminates the value held in a Cell.
type CellKind int

const (
	KindNull CellKind = iota
	KindNumber
	KindTime
	KindText
)

// Cell is a single table value. Exactly one of the value fields is
// meaningful, selected by Kind.
type Cell struct {
	Kind   CellKind
	Number float64
	Time   time.Time
	Text   string
}

func NullCell() Cell            { return Cell{Kind: KindNull} }
func NumberCell(v float64) Cell { return Cell{Kind: KindNumber, Number: v} }
func TimeCell(t time.Time) Cell { return Cell{Kind: KindTime, Time: t} }
func TextCell(s string) Cell    { return Cell{Kind: KindText, Text: s} }

func (c Cell) IsNull() bool { return c.Kind == KindNull }

// String renders the cell for prompts and observations.
func (c Cell) String() string {
	switch c.Kind {
	case KindNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case KindTime:
		return c.Time.Format("2006-01-02")
	case KindText:
		return c.Text
	default:
		return "null"
	}
}

// Value returns the cell as a JSON-marshalable value (nil for null).
func (c Cell) Value() any {
	switch c.Kind {
	case KindNumber:
		return c.Number
	case KindTime:
		return c.Time.Format("2006-01-02")
	case KindText:
		return c.Text
	default:
		return nil
	}
}

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Sheet is an ordered, column-typed table.
type Sheet struct {
	Name    string
	Columns []Column
	Rows    [][]Cell
}

// ColumnNames returns the normalized column names in order.
func (s *Sheet) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1.
func (s *Sheet) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can mutate freely without
// touching stored state.
func (s *Sheet) Clone() *Sheet {
	out := &Sheet{
		Name:    s.Name,
		Columns: make([]Column, len(s.Columns)),
		Rows:    make([][]Cell, len(s.Rows)),
	}
	copy(out.Columns, s.Columns)
	for i, row := range s.Rows {
		r := make([]Cell, len(row))
		copy(r, row)
		out.Rows[i] = r
	}
	return out
}

// DatasetMeta is the descriptive record kept alongside a dataset's
// sheets. It is created and deleted together with the sheet data.
type DatasetMeta struct {
	DatasetID  string              `json:"dataset_id"`
	Filename   string              `json:"filename"`
	UploadedAt time.Time           `json:"uploaded_at"`
	Sheets     []string            `json:"sheets"`
	RowCounts  map[string]int      `json:"rows_count"`
	Columns    map[string][]string `json:"columns"`
}

// NormalizeColumnName maps an original header to its canonical form:
// trimmed, lower-cased, spaces to underscores, everything outside
// [a-z0-9_] stripped. Normalizing an already-normalized name is a
// no-op.
func NormalizeColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z'):
			b.WriteRune(r)
		}
	}
	return b.String()
}
