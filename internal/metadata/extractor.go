// Package metadata inspects sheets and emits the descriptive fragments
// that feed the semantic index. Fragment text is rendered as prose, not
// raw number dumps, because retrieval keys off textual similarity.
package metadata

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/sheetmind/excel-analyst/internal/index"
	"github.com/sheetmind/excel-analyst/internal/stats"
	"github.com/sheetmind/excel-analyst/internal/store"
)

const (
	// Categorical columns with at most this many distinct values get
	// them enumerated in the fragment text.
	uniqueListThreshold = 50
	maxListedUniques    = 20
	maxSampleValues     = 10
)

// Profile is the derived description of one column. It lives only long
// enough to render a fragment; the index is the long-term home.
type Profile struct {
	Name        string
	Type        store.ColumnType
	Category    string // numeric | temporal | categorical
	NullCount   int
	NullPercent float64
	Label       string
}

// Extract emits, per sheet: one sheet-summary fragment, one column-info
// fragment per column, and at most one relationship-note fragment when
// productive group/aggregate or trend combinations exist.
func Extract(sheets []*store.Sheet, datasetID string) []index.Fragment {
	var fragments []index.Fragment
	for _, sheet := range sheets {
		fragments = append(fragments, sheetSummary(sheet, datasetID))
		for ci := range sheet.Columns {
			fragments = append(fragments, columnInfo(sheet, ci, datasetID))
		}
		if note := relationshipNote(sheet); note != "" {
			fragments = append(fragments, index.Fragment{
				Text: note,
				Tags: index.Tags{
					Kind:      index.KindRelationship,
					DatasetID: datasetID,
					SheetName: sheet.Name,
				},
			})
		}
	}
	log.Printf("Built %d metadata fragments for dataset %s", len(fragments), datasetID)
	return fragments
}

func sheetSummary(sheet *store.Sheet, datasetID string) index.Fragment {
	text := fmt.Sprintf(
		"Sheet Name: %s\nTotal Rows: %d\nTotal Columns: %d\nColumn Names: %s\n\nThis sheet contains %d records with %d attributes.",
		sheet.Name, len(sheet.Rows), len(sheet.Columns),
		strings.Join(sheet.ColumnNames(), ", "),
		len(sheet.Rows), len(sheet.Columns),
	)
	return index.Fragment{
		Text: text,
		Tags: index.Tags{
			Kind:      index.KindSheetSummary,
			DatasetID: datasetID,
			SheetName: sheet.Name,
		},
	}
}

func columnInfo(sheet *store.Sheet, ci int, datasetID string) index.Fragment {
	col := sheet.Columns[ci]
	p := profileColumn(sheet, ci)

	var b strings.Builder
	fmt.Fprintf(&b, "Column Name: %s\n", col.Name)
	fmt.Fprintf(&b, "Sheet: %s\n", sheet.Name)
	fmt.Fprintf(&b, "Data Type: %s (%s)\n", col.Type, p.Category)
	fmt.Fprintf(&b, "Description: %s\n", p.Label)
	fmt.Fprintf(&b, "Null Values: %d (%.1f%%)\n", p.NullCount, p.NullPercent)

	switch p.Category {
	case "numeric":
		values := numericValues(sheet, ci)
		if len(values) > 0 {
			min, _ := stats.Min(values)
			max, _ := stats.Max(values)
			mean, _ := stats.Mean(values)
			median, _ := stats.Median(values)
			b.WriteString("Statistics:\n")
			fmt.Fprintf(&b, "  - Min: %g\n", min)
			fmt.Fprintf(&b, "  - Max: %g\n", max)
			fmt.Fprintf(&b, "  - Mean: %g\n", mean)
			fmt.Fprintf(&b, "  - Median: %g\n", median)
			if sd, ok := stats.StdDev(values); ok {
				fmt.Fprintf(&b, "  - Std Dev: %g\n", sd)
			} else {
				b.WriteString("  - Std Dev: undefined (fewer than two values)\n")
			}
		}
		fmt.Fprintf(&b, "Sample Values: %s", strings.Join(sampleValues(sheet, ci, 5), ", "))
	case "temporal":
		if min, max, ok := timeRange(sheet, ci); ok {
			b.WriteString("Date Range:\n")
			fmt.Fprintf(&b, "  - From: %s\n", min.Format("2006-01-02"))
			fmt.Fprintf(&b, "  - To: %s", max.Format("2006-01-02"))
		}
	default:
		uniques := uniqueTexts(sheet, ci)
		fmt.Fprintf(&b, "Unique Count: %d\n", len(uniques))
		if len(uniques) <= uniqueListThreshold {
			listed := uniques
			if len(listed) > maxListedUniques {
				listed = listed[:maxListedUniques]
			}
			fmt.Fprintf(&b, "Unique Values: %s", strings.Join(listed, ", "))
		} else {
			fmt.Fprintf(&b, "Sample Values: %s", strings.Join(sampleValues(sheet, ci, maxSampleValues), ", "))
		}
	}

	return index.Fragment{
		Text: b.String(),
		Tags: index.Tags{
			Kind:       index.KindColumnInfo,
			DatasetID:  datasetID,
			SheetName:  sheet.Name,
			ColumnName: col.Name,
			Category:   p.Category,
		},
	}
}

func profileColumn(sheet *store.Sheet, ci int) Profile {
	col := sheet.Columns[ci]
	nulls := 0
	for _, row := range sheet.Rows {
		if row[ci].IsNull() {
			nulls++
		}
	}
	pct := 0.0
	if len(sheet.Rows) > 0 {
		pct = float64(nulls) / float64(len(sheet.Rows)) * 100
	}
	return Profile{
		Name:        col.Name,
		Type:        col.Type,
		Category:    category(col.Type),
		NullCount:   nulls,
		NullPercent: pct,
		Label:       inferLabel(col.Name, col.Type),
	}
}

func category(t store.ColumnType) string {
	switch t {
	case store.TypeNumeric:
		return "numeric"
	case store.TypeTemporal:
		return "temporal"
	default:
		return "categorical"
	}
}

// inferLabel guesses a short semantic description from the column name.
// The check order matters: identifier-like names win over everything,
// temporal names over keyword buckets, and the column type is only a
// fallback. The label is informational; actions never gate on it.
func inferLabel(name string, colType store.ColumnType) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "id"):
		return "Identifier or unique key"
	case strings.Contains(lower, "date") || strings.Contains(lower, "time"):
		return "Temporal data (date/time)"
	case strings.Contains(lower, "name"):
		return "Name or label"
	case strings.Contains(lower, "price") || strings.Contains(lower, "cost") || strings.Contains(lower, "amount"):
		return "Monetary value"
	case strings.Contains(lower, "sales") || strings.Contains(lower, "revenue"):
		return "Sales or revenue metric"
	case strings.Contains(lower, "count") || strings.Contains(lower, "quantity") || strings.Contains(lower, "qty"):
		return "Count or quantity metric"
	case strings.Contains(lower, "percent") || strings.Contains(lower, "rate"):
		return "Percentage or rate metric"
	case strings.Contains(lower, "region") || strings.Contains(lower, "location") || strings.Contains(lower, "city"):
		return "Geographic or location data"
	case strings.Contains(lower, "category") || strings.Contains(lower, "type"):
		return "Classification or category"
	case strings.Contains(lower, "status"):
		return "Status indicator"
	case colType == store.TypeNumeric:
		return "Numeric metric or measurement"
	case colType == store.TypeTemporal:
		return "Date or timestamp"
	default:
		return "Categorical or text data"
	}
}

// relationshipNote suggests productive action combinations, always
// naming actual columns so the agent can use them verbatim.
func relationshipNote(sheet *store.Sheet) string {
	var categorical, numeric, temporal []string
	for _, col := range sheet.Columns {
		switch col.Type {
		case store.TypeNumeric:
			numeric = append(numeric, col.Name)
		case store.TypeTemporal:
			temporal = append(temporal, col.Name)
		default:
			categorical = append(categorical, col.Name)
		}
	}

	var notes []string
	if len(categorical) > 0 && len(numeric) > 0 {
		notes = append(notes, fmt.Sprintf(
			"Sheet '%s' contains data that can be grouped by %s and aggregated on %s.",
			sheet.Name, strings.Join(head(categorical, 3), ", "), strings.Join(head(numeric, 3), ", ")))
	}
	if len(temporal) > 0 && len(numeric) > 0 {
		notes = append(notes, fmt.Sprintf(
			"Time series analysis is possible using %s with metrics like %s.",
			temporal[0], strings.Join(head(numeric, 3), ", ")))
	}
	return strings.Join(notes, "\n")
}

func head(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func numericValues(sheet *store.Sheet, ci int) []float64 {
	var out []float64
	for _, row := range sheet.Rows {
		if c := row[ci]; c.Kind == store.KindNumber {
			out = append(out, c.Number)
		}
	}
	return out
}

func timeRange(sheet *store.Sheet, ci int) (time.Time, time.Time, bool) {
	var min, max time.Time
	found := false
	for _, row := range sheet.Rows {
		c := row[ci]
		if c.Kind != store.KindTime {
			continue
		}
		if !found {
			min, max = c.Time, c.Time
			found = true
			continue
		}
		if c.Time.Before(min) {
			min = c.Time
		}
		if c.Time.After(max) {
			max = c.Time
		}
	}
	return min, max, found
}

func uniqueTexts(sheet *store.Sheet, ci int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range sheet.Rows {
		c := row[ci]
		if c.IsNull() {
			continue
		}
		s := c.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func sampleValues(sheet *store.Sheet, ci int, n int) []string {
	var out []string
	for _, row := range sheet.Rows {
		if len(out) >= n {
			break
		}
		if c := row[ci]; !c.IsNull() {
			out = append(out, c.String())
		}
	}
	return out
}
