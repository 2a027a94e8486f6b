package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetmind/excel-analyst/internal/index"
	"github.com/sheetmind/excel-analyst/internal/metadata"
	"github.com/sheetmind/excel-analyst/internal/store"
)

// stubEmbedder counts keyword occurrences so similarity is predictable.
type stubEmbedder struct{ keywords []string }

func (e stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.keywords)+1)
	for i, kw := range e.keywords {
		vec[i] = float32(strings.Count(lower, kw))
	}
	vec[len(e.keywords)] = 1
	return vec, nil
}

func actionsSheet() *store.Sheet {
	sheet := &store.Sheet{
		Name: "Sales",
		Columns: []store.Column{
			{Name: "region", Type: store.TypeText},
			{Name: "sales", Type: store.TypeNumeric},
			{Name: "quantity", Type: store.TypeNumeric},
			{Name: "order_date", Type: store.TypeTemporal},
		},
	}
	rows := []struct {
		region string
		sales  float64
		qty    float64
		date   string
	}{
		{"North", 1200, 10, "2024-01-05"},
		{"South", 800, 8, "2024-02-10"},
		{"North", 1500, 15, "2024-03-15"},
		{"East", 300, 2, "2024-04-20"},
		{"South", 950, 9, "2024-05-25"},
	}
	for _, r := range rows {
		d, _ := time.Parse("2006-01-02", r.date)
		sheet.Rows = append(sheet.Rows, []store.Cell{
			store.TextCell(r.region),
			store.NumberCell(r.sales),
			store.NumberCell(r.qty),
			store.TimeCell(d),
		})
	}
	return sheet
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	sheet := actionsSheet()
	im := index.NewManager(stubEmbedder{keywords: []string{"sales", "region", "quantity", "date"}})
	fragments := metadata.Extract([]*store.Sheet{sheet}, "ds1")
	require.NoError(t, im.CreateStore(context.Background(), "ds1", fragments))
	return NewExecutor(sheet, "ds1", im)
}

func decode(t *testing.T, obs string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(obs), &m), "observation: %s", obs)
	return m
}

func TestSampleAction(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionSample, map[string]string{"n": "2"}))

	assert.Equal(t, 2.0, m["sample_count"])
	assert.Equal(t, 5.0, m["total_rows"])
	assert.Len(t, m["columns"], 4)
	assert.Len(t, m["sample_data"], 2)
}

func TestSampleActionWithEmptyFilter(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionSample, map[string]string{
		"n": "5", "filter_condition": "region == 'West'",
	}))

	// Zero matches is an empty result, not an error.
	assert.Equal(t, 0.0, m["sample_count"])
	assert.NotContains(t, m, "error")
}

func TestQueryDataAction(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionQuery, map[string]string{
		"filter_condition": "sales > 1000",
	}))

	assert.Equal(t, 2.0, m["matched_rows"])
	assert.Equal(t, 5.0, m["total_rows"])
	assert.Equal(t, 40.0, m["percentage"])
}

func TestQueryDataEmptySheetZeroPercent(t *testing.T) {
	sheet := &store.Sheet{
		Name:    "Empty",
		Columns: []store.Column{{Name: "sales", Type: store.TypeNumeric}},
	}
	e := NewExecutor(sheet, "ds1", index.NewManager(stubEmbedder{}))
	m := decode(t, e.Execute(context.Background(), ActionQuery, map[string]string{
		"filter_condition": "sales > 0",
	}))
	assert.Equal(t, 0.0, m["percentage"])
	assert.NotContains(t, m, "error")
}

func TestAggregateSum(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionAggregate, map[string]string{
		"column": "sales", "operation": "sum",
	}))
	assert.Equal(t, 4750.0, m["result"])
	assert.Equal(t, 5.0, m["rows_analyzed"])
	assert.Equal(t, "None", m["filter_applied"])
}

func TestAggregateWithFilter(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionAggregate, map[string]string{
		"column": "sales", "operation": "sum", "filter_condition": "region == 'North'",
	}))
	assert.Equal(t, 2700.0, m["result"])
	assert.Equal(t, 2.0, m["rows_analyzed"])
}

func TestAggregateEmptyInputIsNull(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionAggregate, map[string]string{
		"column": "sales", "operation": "mean", "filter_condition": "region == 'West'",
	}))
	assert.Nil(t, m["result"])
	assert.NotContains(t, m, "error")
}

func TestAggregateStdevSingleRowIsNull(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionAggregate, map[string]string{
		"column": "sales", "operation": "stdev", "filter_condition": "region == 'East'",
	}))
	assert.Nil(t, m["result"])
}

func TestAggregateUnknownColumn(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionAggregate, map[string]string{
		"column": "nonexistent_column", "operation": "sum",
	}))
	assert.Contains(t, m["error"], "nonexistent_column")

	cols, ok := m["available_columns"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"region", "sales", "quantity", "order_date"}, cols)
}

func TestAggregateUnknownOperation(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionAggregate, map[string]string{
		"column": "sales", "operation": "variance",
	}))
	assert.Contains(t, m["error"], "variance")
	assert.Len(t, m["valid_operations"], 7)
}

func TestAggregateNonNumericColumn(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionAggregate, map[string]string{
		"column": "region", "operation": "sum",
	}))
	assert.Contains(t, m["error"], "region")
}

func TestAggregateCountOnTextColumn(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionAggregate, map[string]string{
		"column": "region", "operation": "count",
	}))
	assert.Equal(t, 5.0, m["result"])
}

func TestGroupByDescendingOrder(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionGroupBy, map[string]string{
		"group_columns": "region", "agg_column": "sales", "operation": "sum",
	}))

	assert.Equal(t, 3.0, m["num_groups"])
	results, ok := m["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 3)

	var values []float64
	var regions []string
	for _, r := range results {
		row := r.(map[string]any)
		values = append(values, row["sales"].(float64))
		regions = append(regions, row["region"].(string))
	}
	assert.Equal(t, []float64{2700, 1750, 300}, values)
	assert.Equal(t, []string{"North", "South", "East"}, regions)
}

func TestGroupByMultipleColumns(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionGroupBy, map[string]string{
		"group_columns": "region,order_date", "agg_column": "sales", "operation": "max",
	}))
	assert.Equal(t, 5.0, m["num_groups"])
}

func TestGroupByMissingColumns(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionGroupBy, map[string]string{
		"group_columns": "territory,zone", "agg_column": "sales", "operation": "sum",
	}))
	assert.Contains(t, m["error"], "territory")
	assert.Contains(t, m["error"], "zone")
	assert.Contains(t, m, "available_columns")
}

func TestCorrelateSymmetric(t *testing.T) {
	e := newTestExecutor(t)
	ab := decode(t, e.Execute(context.Background(), ActionCorrelate, map[string]string{
		"column1": "sales", "column2": "quantity",
	}))
	ba := decode(t, e.Execute(context.Background(), ActionCorrelate, map[string]string{
		"column1": "quantity", "column2": "sales",
	}))

	assert.Equal(t, ab["correlation_coefficient"], ba["correlation_coefficient"])
	assert.Equal(t, ab["interpretation"], ba["interpretation"])
	assert.Equal(t, 5.0, ab["rows_analyzed"])
	assert.Contains(t, ab["interpretation"], "strong positive")
}

func TestCorrelateNonNumericColumn(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionCorrelate, map[string]string{
		"column1": "region", "column2": "sales",
	}))
	assert.Contains(t, m["error"], "region")
	assert.Equal(t, "text", m["type"])
}

func TestTrendOverall(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionTrend, map[string]string{
		"date_column": "order_date", "value_column": "sales",
	}))

	assert.Equal(t, 1200.0, m["first_value"])
	assert.Equal(t, 950.0, m["last_value"])
	assert.Equal(t, -250.0, m["change"])
	assert.Equal(t, -20.83, m["percent_change"])
	assert.Equal(t, "decreasing", m["trend_direction"])
}

func TestTrendGrouped(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionTrend, map[string]string{
		"date_column": "order_date", "value_column": "sales", "group_column": "region",
	}))

	trends, ok := m["trends"].(map[string]any)
	require.True(t, ok)
	require.Len(t, trends, 3)

	north := trends["North"].(map[string]any)
	assert.Equal(t, 1200.0, north["first_value"])
	assert.Equal(t, 1500.0, north["last_value"])
	assert.Equal(t, "increasing", north["trend_direction"])
}

func TestTrendZeroBasePercentChange(t *testing.T) {
	sheet := &store.Sheet{
		Name: "Z",
		Columns: []store.Column{
			{Name: "d", Type: store.TypeTemporal},
			{Name: "v", Type: store.TypeNumeric},
		},
	}
	d1, _ := time.Parse("2006-01-02", "2024-01-01")
	d2, _ := time.Parse("2006-01-02", "2024-02-01")
	sheet.Rows = [][]store.Cell{
		{store.TimeCell(d1), store.NumberCell(0)},
		{store.TimeCell(d2), store.NumberCell(50)},
	}
	e := NewExecutor(sheet, "ds1", index.NewManager(stubEmbedder{}))
	m := decode(t, e.Execute(context.Background(), ActionTrend, map[string]string{
		"date_column": "d", "value_column": "v",
	}))
	assert.Equal(t, 0.0, m["percent_change"])
	assert.Equal(t, 50.0, m["change"])
}

func TestTrendCoercesTextDateColumn(t *testing.T) {
	sheet := &store.Sheet{
		Name: "T",
		Columns: []store.Column{
			{Name: "when", Type: store.TypeText},
			{Name: "v", Type: store.TypeNumeric},
		},
		Rows: [][]store.Cell{
			{store.TextCell("2024-03-01"), store.NumberCell(30)},
			{store.TextCell("2024-01-01"), store.NumberCell(10)},
		},
	}
	e := NewExecutor(sheet, "ds1", index.NewManager(stubEmbedder{}))
	m := decode(t, e.Execute(context.Background(), ActionTrend, map[string]string{
		"date_column": "when", "value_column": "v",
	}))

	// Sorted ascending by coerced date before first/last are taken.
	assert.Equal(t, 10.0, m["first_value"])
	assert.Equal(t, 30.0, m["last_value"])
}

func TestColumnInfoAction(t *testing.T) {
	e := newTestExecutor(t)
	obs := e.Execute(context.Background(), ActionColumnInfo, map[string]string{"column_name": "sales"})
	assert.Contains(t, obs, "Column Name: sales")
}

func TestColumnInfoEmptyRetrieval(t *testing.T) {
	im := index.NewManager(stubEmbedder{})
	require.NoError(t, im.CreateStore(context.Background(), "ds1", nil))
	e := NewExecutor(actionsSheet(), "ds1", im)

	obs := e.Execute(context.Background(), ActionColumnInfo, nil)
	assert.Equal(t, "No column information found in metadata.", obs)
}

func TestQuerySchemaAction(t *testing.T) {
	e := newTestExecutor(t)
	obs := e.Execute(context.Background(), ActionSchemaQuery, map[string]string{
		"question": "which columns contain sales data?",
	})
	assert.Contains(t, obs, "sales")
}

func TestUnknownActionListsCatalogue(t *testing.T) {
	e := newTestExecutor(t)
	m := decode(t, e.Execute(context.Background(), ActionKind("made_up"), nil))
	assert.Contains(t, m["error"], "made_up")
	assert.Len(t, m["valid_actions"], len(Catalog))
}
