package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetmind/excel-analyst/internal/store"
)

func filterSheet() *store.Sheet {
	sheet := &store.Sheet{
		Name: "Sales",
		Columns: []store.Column{
			{Name: "region", Type: store.TypeText},
			{Name: "sales", Type: store.TypeNumeric},
			{Name: "order_date", Type: store.TypeTemporal},
		},
	}
	rows := []struct {
		region string
		sales  float64
		date   string
	}{
		{"North", 1200, "2024-01-05"},
		{"South", 800, "2024-02-10"},
		{"North", 1500, "2024-03-15"},
		{"East", 300, "2024-04-20"},
	}
	for _, r := range rows {
		d, _ := time.Parse("2006-01-02", r.date)
		sheet.Rows = append(sheet.Rows, []store.Cell{
			store.TextCell(r.region),
			store.NumberCell(r.sales),
			store.TimeCell(d),
		})
	}
	return sheet
}

func TestFilterStringEquality(t *testing.T) {
	sheet := filterSheet()
	rows, err := applyFilter(sheet, "region == 'North'")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestFilterNumericComparison(t *testing.T) {
	sheet := filterSheet()
	rows, err := applyFilter(sheet, "sales > 1000")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = applyFilter(sheet, "sales <= 800")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestFilterTemporalComparison(t *testing.T) {
	sheet := filterSheet()
	rows, err := applyFilter(sheet, "order_date >= 2024-03-01")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestFilterAndOr(t *testing.T) {
	sheet := filterSheet()

	rows, err := applyFilter(sheet, "region == 'North' and sales > 1300")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1500.0, rows[0][1].Number)

	// and binds tighter than or.
	rows, err = applyFilter(sheet, "region == 'East' or region == 'North' and sales > 1300")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestFilterDoubleQuotedLiteral(t *testing.T) {
	sheet := filterSheet()
	rows, err := applyFilter(sheet, `region != "North"`)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestFilterBareWordLiteral(t *testing.T) {
	sheet := filterSheet()
	rows, err := applyFilter(sheet, "region == North")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestFilterUnknownColumn(t *testing.T) {
	sheet := filterSheet()
	_, err := applyFilter(sheet, "territory == 'North'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "territory")
	assert.Contains(t, err.Error(), "region, sales, order_date")
}

func TestFilterMalformedExpressions(t *testing.T) {
	sheet := filterSheet()
	for _, expr := range []string{
		"",
		"region = 'North'",
		"region ==",
		"sales > abc",
		"== 'North'",
		"region == 'North' and",
		"region == 'unterminated",
	} {
		_, err := applyFilter(sheet, expr)
		assert.Error(t, err, "expression %q should not compile", expr)
	}
}

func TestFilterNullCellsNeverMatch(t *testing.T) {
	sheet := filterSheet()
	sheet.Rows = append(sheet.Rows, []store.Cell{
		store.NullCell(), store.NullCell(), store.NullCell(),
	})

	rows, err := applyFilter(sheet, "region != 'North'")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = applyFilter(sheet, "sales < 999999")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}
