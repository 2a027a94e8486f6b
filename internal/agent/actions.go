package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/sheetmind/excel-analyst/internal/index"
	"github.com/sheetmind/excel-analyst/internal/ingest"
	"github.com/sheetmind/excel-analyst/internal/stats"
	"github.com/sheetmind/excel-analyst/internal/store"
)

// ActionKind is the closed catalogue of tabular operations the agent
// may invoke. Adding a kind means extending Execute's switch; there is
// no dynamic registration.
type ActionKind string

const (
	ActionSample      ActionKind = "get_data_sample"
	ActionQuery       ActionKind = "query_data"
	ActionAggregate   ActionKind = "aggregate_data"
	ActionGroupBy     ActionKind = "group_by_analysis"
	ActionCorrelate   ActionKind = "calculate_correlation"
	ActionTrend       ActionKind = "analyze_trend"
	ActionColumnInfo  ActionKind = "get_column_info"
	ActionSchemaQuery ActionKind = "query_schema"
)

// ArgSpec documents one declared argument for the catalogue shown to
// the reasoning capability.
type ArgSpec struct {
	Name        string
	Description string
	Required    bool
}

// ActionSpec is one catalogue entry: name, argument schema, example.
type ActionSpec struct {
	Kind        ActionKind
	Description string
	Args        []ArgSpec
	Example     string
}

// Catalog lists every available action in presentation order.
var Catalog = []ActionSpec{
	{
		Kind:        ActionSample,
		Description: "Get sample rows from the dataset. Useful for understanding data structure.",
		Args: []ArgSpec{
			{Name: "n", Description: "number of rows to sample (default 5)"},
			{Name: "filter_condition", Description: "optional filter, e.g. region == 'North'"},
		},
		Example: `{"action": "get_data_sample", "args": {"n": "3", "filter_condition": "region == 'North'"}}`,
	},
	{
		Kind:        ActionQuery,
		Description: "Filter the data and report how many rows match, with a bounded sample of matches.",
		Args: []ArgSpec{
			{Name: "filter_condition", Description: "filter expression over columns", Required: true},
		},
		Example: `{"action": "query_data", "args": {"filter_condition": "sales > 1000"}}`,
	},
	{
		Kind:        ActionAggregate,
		Description: "Aggregate a numeric column: sum, mean, median, count, min, max or stdev.",
		Args: []ArgSpec{
			{Name: "column", Description: "column to aggregate", Required: true},
			{Name: "operation", Description: "sum|mean|median|count|min|max|stdev", Required: true},
			{Name: "filter_condition", Description: "optional filter applied first"},
		},
		Example: `{"action": "aggregate_data", "args": {"column": "sales", "operation": "sum", "filter_condition": "region == 'North'"}}`,
	},
	{
		Kind:        ActionGroupBy,
		Description: "Group rows by one or more columns and aggregate another column per group.",
		Args: []ArgSpec{
			{Name: "group_columns", Description: "comma-separated columns to group by", Required: true},
			{Name: "agg_column", Description: "column to aggregate", Required: true},
			{Name: "operation", Description: "sum|mean|median|count|min|max", Required: true},
		},
		Example: `{"action": "group_by_analysis", "args": {"group_columns": "region", "agg_column": "sales", "operation": "sum"}}`,
	},
	{
		Kind:        ActionCorrelate,
		Description: "Pearson correlation between two numeric columns.",
		Args: []ArgSpec{
			{Name: "column1", Description: "first numeric column", Required: true},
			{Name: "column2", Description: "second numeric column", Required: true},
		},
		Example: `{"action": "calculate_correlation", "args": {"column1": "price", "column2": "sales"}}`,
	},
	{
		Kind:        ActionTrend,
		Description: "Analyze how a value changes over time, optionally per group.",
		Args: []ArgSpec{
			{Name: "date_column", Description: "column containing dates", Required: true},
			{Name: "value_column", Description: "numeric column to follow", Required: true},
			{Name: "group_column", Description: "optional column to split the trend by"},
		},
		Example: `{"action": "analyze_trend", "args": {"date_column": "date", "value_column": "sales", "group_column": "region"}}`,
	},
	{
		Kind:        ActionColumnInfo,
		Description: "Look up indexed metadata about columns (all columns, or one by name).",
		Args: []ArgSpec{
			{Name: "column_name", Description: "optional specific column"},
		},
		Example: `{"action": "get_column_info", "args": {"column_name": "sales"}}`,
	},
	{
		Kind:        ActionSchemaQuery,
		Description: "Ask a free-text question about the dataset structure and meaning.",
		Args: []ArgSpec{
			{Name: "question", Description: "natural language question about the schema", Required: true},
		},
		Example: `{"action": "query_schema", "args": {"question": "Which columns contain sales data?"}}`,
	},
}

func actionNames() []string {
	names := make([]string, len(Catalog))
	for i, spec := range Catalog {
		names[i] = string(spec.Kind)
	}
	return names
}

var aggregateOps = []string{"sum", "mean", "median", "count", "min", "max", "stdev"}
var groupOps = []string{"sum", "mean", "median", "count", "min", "max"}

const (
	maxSampleRows   = 10
	maxGroupResults = 50
)

// Executor runs actions against one sheet snapshot. Actions are pure
// reads: the snapshot is already a copy and nothing writes back to the
// stores. Validation failures come back as structured JSON observations
// rather than Go errors, so the loop always proceeds to Observe.
type Executor struct {
	sheet     *store.Sheet
	datasetID string
	index     *index.Manager
}

func NewExecutor(sheet *store.Sheet, datasetID string, idx *index.Manager) *Executor {
	return &Executor{sheet: sheet, datasetID: datasetID, index: idx}
}

// Execute dispatches by kind and always returns observation text.
func (e *Executor) Execute(ctx context.Context, kind ActionKind, args map[string]string) string {
	switch kind {
	case ActionSample:
		return e.sample(args)
	case ActionQuery:
		return e.queryData(args)
	case ActionAggregate:
		return e.aggregate(args)
	case ActionGroupBy:
		return e.groupBy(args)
	case ActionCorrelate:
		return e.correlate(args)
	case ActionTrend:
		return e.trend(args)
	case ActionColumnInfo:
		return e.columnInfo(ctx, args)
	case ActionSchemaQuery:
		return e.querySchema(ctx, args)
	default:
		return marshalResult(map[string]any{
			"error":         fmt.Sprintf("unknown action %q", kind),
			"valid_actions": actionNames(),
		})
	}
}

func (e *Executor) sample(args map[string]string) string {
	n := parseIntArg(args["n"], 5)
	rows := e.sheet.Rows
	if cond := strings.TrimSpace(args["filter_condition"]); cond != "" {
		filtered, err := applyFilter(e.sheet, cond)
		if err != nil {
			return filterError(err)
		}
		rows = filtered
	}
	sample := rows
	if len(sample) > n {
		sample = sample[:n]
	}
	return marshalResult(map[string]any{
		"sample_count": len(sample),
		"total_rows":   len(rows),
		"columns":      e.sheet.ColumnNames(),
		"sample_data":  rowsToMaps(e.sheet, sample),
	})
}

func (e *Executor) queryData(args map[string]string) string {
	cond := strings.TrimSpace(args["filter_condition"])
	if cond == "" {
		return marshalResult(map[string]any{
			"error": "filter_condition is required",
		})
	}
	matched, err := applyFilter(e.sheet, cond)
	if err != nil {
		return filterError(err)
	}

	// An empty sheet yields 0%, not a division fault.
	pct := 0.0
	if len(e.sheet.Rows) > 0 {
		pct = round2(float64(len(matched)) / float64(len(e.sheet.Rows)) * 100)
	}
	sample := matched
	if len(sample) > maxSampleRows {
		sample = sample[:maxSampleRows]
	}
	log.Printf("Filter %q matched %d of %d rows", cond, len(matched), len(e.sheet.Rows))
	return marshalResult(map[string]any{
		"filter_condition": cond,
		"matched_rows":     len(matched),
		"total_rows":       len(e.sheet.Rows),
		"percentage":       pct,
		"columns":          e.sheet.ColumnNames(),
		"sample_results":   rowsToMaps(e.sheet, sample),
	})
}

func (e *Executor) aggregate(args map[string]string) string {
	column := strings.TrimSpace(args["column"])
	operation := strings.ToLower(strings.TrimSpace(args["operation"]))

	ci := e.sheet.ColumnIndex(column)
	if ci < 0 {
		return columnError(column, e.sheet)
	}
	if !contains(aggregateOps, operation) {
		return marshalResult(map[string]any{
			"error":            fmt.Sprintf("invalid operation %q", operation),
			"valid_operations": aggregateOps,
		})
	}

	rows := e.sheet.Rows
	if cond := strings.TrimSpace(args["filter_condition"]); cond != "" {
		filtered, err := applyFilter(e.sheet, cond)
		if err != nil {
			return filterError(err)
		}
		rows = filtered
	}

	col := e.sheet.Columns[ci]
	if operation != "count" && col.Type != store.TypeNumeric {
		return marshalResult(map[string]any{
			"error": fmt.Sprintf("column %q is %s, operation %q needs a numeric column", column, col.Type, operation),
		})
	}

	var result any
	if operation == "count" {
		n := 0
		for _, row := range rows {
			if !row[ci].IsNull() {
				n++
			}
		}
		result = float64(n)
	} else {
		values := collectNumbers(rows, ci)
		if v, ok := applyAggregate(values, operation); ok {
			result = v
		} else {
			result = nil // undefined, e.g. mean of zero rows or stdev of one
		}
	}

	filterApplied := args["filter_condition"]
	if strings.TrimSpace(filterApplied) == "" {
		filterApplied = "None"
	}
	log.Printf("Aggregation %s(%s) over %d rows", operation, column, len(rows))
	return marshalResult(map[string]any{
		"column":         column,
		"operation":      operation,
		"result":         result,
		"rows_analyzed":  len(rows),
		"filter_applied": filterApplied,
	})
}

func applyAggregate(values []float64, operation string) (float64, bool) {
	switch operation {
	case "sum":
		if len(values) == 0 {
			return 0, false
		}
		return stats.Sum(values), true
	case "mean":
		return stats.Mean(values)
	case "median":
		return stats.Median(values)
	case "min":
		return stats.Min(values)
	case "max":
		return stats.Max(values)
	case "stdev":
		return stats.StdDev(values)
	}
	return 0, false
}

func (e *Executor) groupBy(args map[string]string) string {
	groupArg := strings.TrimSpace(args["group_columns"])
	aggColumn := strings.TrimSpace(args["agg_column"])
	operation := strings.ToLower(strings.TrimSpace(args["operation"]))

	var groupCols []string
	for _, c := range strings.Split(groupArg, ",") {
		if c = strings.TrimSpace(c); c != "" {
			groupCols = append(groupCols, c)
		}
	}
	if len(groupCols) == 0 {
		return marshalResult(map[string]any{"error": "group_columns is required"})
	}

	var missing []string
	var groupIdx []int
	for _, c := range groupCols {
		ci := e.sheet.ColumnIndex(c)
		if ci < 0 {
			missing = append(missing, c)
			continue
		}
		groupIdx = append(groupIdx, ci)
	}
	aggIdx := e.sheet.ColumnIndex(aggColumn)
	if aggIdx < 0 {
		missing = append(missing, aggColumn)
	}
	if len(missing) > 0 {
		return marshalResult(map[string]any{
			"error":             fmt.Sprintf("columns not found: %s", strings.Join(missing, ", ")),
			"available_columns": e.sheet.ColumnNames(),
		})
	}
	if !contains(groupOps, operation) {
		return marshalResult(map[string]any{
			"error":            fmt.Sprintf("invalid operation %q", operation),
			"valid_operations": groupOps,
		})
	}
	if operation != "count" && e.sheet.Columns[aggIdx].Type != store.TypeNumeric {
		return marshalResult(map[string]any{
			"error": fmt.Sprintf("column %q is %s, operation %q needs a numeric column",
				aggColumn, e.sheet.Columns[aggIdx].Type, operation),
		})
	}

	type group struct {
		keys []string
		rows [][]store.Cell
	}
	groups := make(map[string]*group)
	var order []string
	for _, row := range e.sheet.Rows {
		keys := make([]string, len(groupIdx))
		for i, gi := range groupIdx {
			keys[i] = row[gi].String()
		}
		id := strings.Join(keys, "\x1f")
		g, ok := groups[id]
		if !ok {
			g = &group{keys: keys}
			groups[id] = g
			order = append(order, id)
		}
		g.rows = append(g.rows, row)
	}

	type groupResult struct {
		keys  []string
		value float64
		ok    bool
	}
	results := make([]groupResult, 0, len(order))
	for _, id := range order {
		g := groups[id]
		var value float64
		var ok bool
		if operation == "count" {
			n := 0
			for _, row := range g.rows {
				if !row[aggIdx].IsNull() {
					n++
				}
			}
			value, ok = float64(n), true
		} else {
			value, ok = applyAggregate(collectNumbers(g.rows, aggIdx), operation)
		}
		results = append(results, groupResult{keys: g.keys, value: value, ok: ok})
	}

	// Sort by aggregated value descending; groups with an undefined
	// value sink to the bottom.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].ok != results[j].ok {
			return results[i].ok
		}
		return results[i].value > results[j].value
	})

	rendered := make([]map[string]any, 0, len(results))
	for i, r := range results {
		if i >= maxGroupResults {
			break
		}
		m := make(map[string]any, len(groupCols)+1)
		for j, c := range groupCols {
			m[c] = r.keys[j]
		}
		if r.ok {
			m[aggColumn] = r.value
		} else {
			m[aggColumn] = nil
		}
		rendered = append(rendered, m)
	}

	log.Printf("GroupBy %v with %s(%s) produced %d groups", groupCols, operation, aggColumn, len(results))
	return marshalResult(map[string]any{
		"group_by":          groupCols,
		"aggregated_column": aggColumn,
		"operation":         operation,
		"num_groups":        len(results),
		"results":           rendered,
	})
}

func (e *Executor) correlate(args map[string]string) string {
	col1 := strings.TrimSpace(args["column1"])
	col2 := strings.TrimSpace(args["column2"])

	i1 := e.sheet.ColumnIndex(col1)
	if i1 < 0 {
		return columnError(col1, e.sheet)
	}
	i2 := e.sheet.ColumnIndex(col2)
	if i2 < 0 {
		return columnError(col2, e.sheet)
	}
	for _, ci := range []int{i1, i2} {
		if col := e.sheet.Columns[ci]; col.Type != store.TypeNumeric {
			return marshalResult(map[string]any{
				"error": fmt.Sprintf("column %q is not numeric", col.Name),
				"type":  string(col.Type),
			})
		}
	}

	var xs, ys []float64
	for _, row := range e.sheet.Rows {
		a, b := row[i1], row[i2]
		if a.Kind != store.KindNumber || b.Kind != store.KindNumber {
			continue
		}
		xs = append(xs, a.Number)
		ys = append(ys, b.Number)
	}

	corr, ok := stats.Pearson(xs, ys)
	if !ok {
		return marshalResult(map[string]any{
			"error": fmt.Sprintf("correlation between %q and %q is undefined: need at least two paired values with variance", col1, col2),
		})
	}

	strength := "strong"
	if math.Abs(corr) < 0.3 {
		strength = "weak"
	} else if math.Abs(corr) < 0.7 {
		strength = "moderate"
	}
	direction := "positive"
	if corr < 0 {
		direction = "negative"
	}

	log.Printf("Correlation between %s and %s: %.4f", col1, col2, corr)
	return marshalResult(map[string]any{
		"column1":                 col1,
		"column2":                 col2,
		"correlation_coefficient": round4(corr),
		"interpretation":          fmt.Sprintf("%s %s correlation", strength, direction),
		"rows_analyzed":           len(xs),
	})
}

func (e *Executor) trend(args map[string]string) string {
	dateColumn := strings.TrimSpace(args["date_column"])
	valueColumn := strings.TrimSpace(args["value_column"])
	groupColumn := strings.TrimSpace(args["group_column"])

	di := e.sheet.ColumnIndex(dateColumn)
	if di < 0 {
		return columnError(dateColumn, e.sheet)
	}
	vi := e.sheet.ColumnIndex(valueColumn)
	if vi < 0 {
		return columnError(valueColumn, e.sheet)
	}
	gi := -1
	if groupColumn != "" {
		if gi = e.sheet.ColumnIndex(groupColumn); gi < 0 {
			return columnError(groupColumn, e.sheet)
		}
	}
	if e.sheet.Columns[vi].Type != store.TypeNumeric {
		return marshalResult(map[string]any{
			"error": fmt.Sprintf("value column %q is not numeric", valueColumn),
			"type":  string(e.sheet.Columns[vi].Type),
		})
	}

	var points []trendPoint
	for _, row := range e.sheet.Rows {
		when, ok := cellDate(row[di])
		if !ok || row[vi].Kind != store.KindNumber {
			continue
		}
		p := trendPoint{when: when, value: row[vi].Number}
		if gi >= 0 {
			p.group = row[gi].String()
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return marshalResult(map[string]any{
			"error": fmt.Sprintf("no rows with a valid date in %q and value in %q", dateColumn, valueColumn),
		})
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].when < points[j].when })

	if gi < 0 {
		block := trendBlock(points)
		block["date_column"] = dateColumn
		block["value_column"] = valueColumn
		return marshalResult(block)
	}

	byGroup := make(map[string][]trendPoint)
	var order []string
	for _, p := range points {
		if _, ok := byGroup[p.group]; !ok {
			order = append(order, p.group)
		}
		byGroup[p.group] = append(byGroup[p.group], p)
	}
	trends := make(map[string]map[string]any, len(order))
	for _, g := range order {
		trends[g] = trendBlock(byGroup[g])
	}
	return marshalResult(map[string]any{
		"date_column":  dateColumn,
		"value_column": valueColumn,
		"grouped_by":   groupColumn,
		"trends":       trends,
	})
}

func (e *Executor) columnInfo(ctx context.Context, args map[string]string) string {
	columnName := strings.TrimSpace(args["column_name"])
	k := 10
	if columnName != "" {
		k = 5
	}
	fragments, err := e.index.ColumnInfo(ctx, e.datasetID, columnName, k)
	if err != nil {
		return fmt.Sprintf("Error retrieving column info: %v", err)
	}
	if len(fragments) == 0 {
		return "No column information found in metadata."
	}
	return joinFragments(fragments)
}

func (e *Executor) querySchema(ctx context.Context, args map[string]string) string {
	question := strings.TrimSpace(args["question"])
	if question == "" {
		return "query_schema needs a question about the dataset structure."
	}
	fragments, err := e.index.Query(ctx, e.datasetID, question, 5, nil)
	if err != nil {
		return fmt.Sprintf("Error querying schema: %v", err)
	}
	if len(fragments) == 0 {
		return "No relevant schema information found."
	}
	return joinFragments(fragments)
}

type trendPoint struct {
	when  int64
	value float64
	group string
}

// trendBlock summarizes date-sorted points. A zero first value reports
// 0 percent change, not a division fault.
func trendBlock(points []trendPoint) map[string]any {
	first := points[0].value
	last := points[len(points)-1].value
	change := last - first
	pct := 0.0
	if first != 0 {
		pct = round2(change / first * 100)
	}
	direction := "flat"
	if change > 0 {
		direction = "increasing"
	} else if change < 0 {
		direction = "decreasing"
	}
	return map[string]any{
		"first_value":     first,
		"last_value":      last,
		"change":          change,
		"percent_change":  pct,
		"trend_direction": direction,
	}
}

func cellDate(c store.Cell) (int64, bool) {
	switch c.Kind {
	case store.KindTime:
		return c.Time.Unix(), true
	case store.KindText:
		if t, ok := ingest.ParseDate(c.Text); ok {
			return t.Unix(), true
		}
	case store.KindNumber:
		// Plain numbers (e.g. year columns) sort by value.
		return int64(c.Number), true
	}
	return 0, false
}

func joinFragments(fragments []index.Fragment) string {
	parts := make([]string, len(fragments))
	for i, f := range fragments {
		parts[i] = f.Text
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func rowsToMaps(sheet *store.Sheet, rows [][]store.Cell) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(sheet.Columns))
		for j, col := range sheet.Columns {
			m[col.Name] = row[j].Value()
		}
		out[i] = m
	}
	return out
}

func collectNumbers(rows [][]store.Cell, ci int) []float64 {
	var out []float64
	for _, row := range rows {
		if c := row[ci]; c.Kind == store.KindNumber {
			out = append(out, c.Number)
		}
	}
	return out
}

func columnError(name string, sheet *store.Sheet) string {
	return marshalResult(map[string]any{
		"error":             fmt.Sprintf("column %q not found", name),
		"available_columns": sheet.ColumnNames(),
	})
}

func filterError(err error) string {
	return marshalResult(map[string]any{
		"error":      err.Error(),
		"suggestion": "Check column names and filter syntax. Use exact column names.",
	})
}

func marshalResult(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to render result: %v"}`, err)
	}
	return string(data)
}

func parseIntArg(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n <= 0 {
		return def
	}
	return n
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
