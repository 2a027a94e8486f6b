package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sheetmind/excel-analyst/internal/store"
)

func TestParseCSVTypesAndNormalization(t *testing.T) {
	csvData := `Region,Sales Amount,Order Date,Notes
North,1200.50,2024-01-05,first
South,800,2024-02-10,
North,"1,500",2024-03-15,promo
`
	sheets, err := ParseCSV("q1 report.csv", strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, sheets, 1)

	sheet := sheets[0]
	assert.Equal(t, "q1 report", sheet.Name)
	assert.Equal(t, []string{"region", "sales_amount", "order_date", "notes"}, sheet.ColumnNames())

	assert.Equal(t, store.TypeText, sheet.Columns[0].Type)
	assert.Equal(t, store.TypeNumeric, sheet.Columns[1].Type)
	assert.Equal(t, store.TypeTemporal, sheet.Columns[2].Type)
	assert.Equal(t, store.TypeText, sheet.Columns[3].Type)

	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, 1200.5, sheet.Rows[0][1].Number)
	assert.Equal(t, 1500.0, sheet.Rows[2][1].Number)
	assert.Equal(t, "2024-02-10", sheet.Rows[1][2].String())
	assert.True(t, sheet.Rows[1][3].IsNull())
}

func TestParseCSVHeaderConflict(t *testing.T) {
	csvData := "Sales Amount,sales_amount\n1,2\n"
	_, err := ParseCSV("x.csv", strings.NewReader(csvData))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "normalize")
	assert.Contains(t, err.Error(), "sales_amount")
}

func TestParseCSVDropsEmptyRowsAndColumns(t *testing.T) {
	csvData := "a,,b\n1,,x\n,,\n2,,y\n"
	sheets, err := ParseCSV("x.csv", strings.NewReader(csvData))
	require.NoError(t, err)

	sheet := sheets[0]
	assert.Equal(t, []string{"a", "b"}, sheet.ColumnNames())
	assert.Len(t, sheet.Rows, 2)
}

func TestParseUploadRejectsUnknownExtension(t *testing.T) {
	_, err := ParseUpload("data.pdf", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supported formats")
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sw := [][]any{
		{"Region", "Sales", "Date"},
		{"North", 100, "2024-01-01"},
		{"South", 250, "2024-01-02"},
	}
	for i, row := range sw {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	sheets, err := ParseXLSX(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, sheets, 1)

	sheet := sheets[0]
	assert.Equal(t, []string{"region", "sales", "date"}, sheet.ColumnNames())
	assert.Equal(t, store.TypeNumeric, sheet.Columns[1].Type)
	assert.Equal(t, store.TypeTemporal, sheet.Columns[2].Type)
	assert.Len(t, sheet.Rows, 2)
	assert.Equal(t, 250.0, sheet.Rows[1][1].Number)
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-01-05", "01/15/2024", "2024-01-02 10:30:00"} {
		_, ok := ParseDate(s)
		assert.True(t, ok, "should parse %q", s)
	}
	_, ok := ParseDate("not a date")
	assert.False(t, ok)
}
