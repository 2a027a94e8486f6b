package agent

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sheetmind/excel-analyst/internal/ingest"
	"github.com/sheetmind/excel-analyst/internal/store"
)

// Filter expressions are comparisons over columns joined with and/or,
// e.g. `region == 'North' and sales > 1000`. The comparison operators
// are == != > >= < <=; `and` binds tighter than `or`. Null cells never
// match a comparison. Compile errors name the available columns so the
// agent can self-correct from the observation alone.

type rowPredicate func(row []store.Cell) bool

type filterToken struct {
	kind string // ident, op, number, string, and, or
	text string
}

func tokenizeFilter(expr string) ([]filterToken, error) {
	var tokens []filterToken
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(expr) && expr[j] != quote {
				j++
			}
			if j >= len(expr) {
				return nil, fmt.Errorf("unterminated string literal in filter %q", expr)
			}
			tokens = append(tokens, filterToken{kind: "string", text: expr[i+1 : j]})
			i = j + 1
		case strings.HasPrefix(expr[i:], "==") || strings.HasPrefix(expr[i:], "!=") ||
			strings.HasPrefix(expr[i:], ">=") || strings.HasPrefix(expr[i:], "<="):
			tokens = append(tokens, filterToken{kind: "op", text: expr[i : i+2]})
			i += 2
		case c == '>' || c == '<':
			tokens = append(tokens, filterToken{kind: "op", text: string(c)})
			i++
		case c == '=':
			return nil, fmt.Errorf("single '=' is not a valid operator, use '=='")
		default:
			j := i
			for j < len(expr) && !strings.ContainsRune(" \t\n'\"=!<>", rune(expr[j])) {
				j++
			}
			word := expr[i:j]
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, filterToken{kind: "and", text: word})
			case "or":
				tokens = append(tokens, filterToken{kind: "or", text: word})
			default:
				if _, err := strconv.ParseFloat(word, 64); err == nil {
					tokens = append(tokens, filterToken{kind: "number", text: word})
				} else {
					tokens = append(tokens, filterToken{kind: "ident", text: word})
				}
			}
			i = j
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty filter expression")
	}
	return tokens, nil
}

type filterParser struct {
	tokens []filterToken
	pos    int
	sheet  *store.Sheet
}

// compileFilter builds a row predicate for the expression against the
// sheet's columns.
func compileFilter(expr string, sheet *store.Sheet) (rowPredicate, error) {
	tokens, err := tokenizeFilter(expr)
	if err != nil {
		return nil, err
	}
	p := &filterParser{tokens: tokens, sheet: sheet}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q in filter expression", p.tokens[p.pos].text)
	}
	return pred, nil
}

func (p *filterParser) parseOr() (rowPredicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.pos < len(p.tokens) && p.tokens[p.pos].kind == "or" {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(row []store.Cell) bool { return l(row) || r(row) }
	}
	return left, nil
}

func (p *filterParser) parseAnd() (rowPredicate, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.pos < len(p.tokens) && p.tokens[p.pos].kind == "and" {
		p.pos++
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(row []store.Cell) bool { return l(row) && r(row) }
	}
	return left, nil
}

func (p *filterParser) parseComparison() (rowPredicate, error) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != "ident" {
		return nil, fmt.Errorf("expected a column name in filter expression")
	}
	colName := p.tokens[p.pos].text
	p.pos++

	ci := p.sheet.ColumnIndex(colName)
	if ci < 0 {
		return nil, fmt.Errorf("unknown column %q (available columns: %s)",
			colName, strings.Join(p.sheet.ColumnNames(), ", "))
	}

	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != "op" {
		return nil, fmt.Errorf("expected a comparison operator after column %q", colName)
	}
	op := p.tokens[p.pos].text
	p.pos++

	if p.pos >= len(p.tokens) {
		return nil, fmt.Errorf("missing literal after %q %s", colName, op)
	}
	lit := p.tokens[p.pos]
	if lit.kind != "string" && lit.kind != "number" && lit.kind != "ident" {
		return nil, fmt.Errorf("invalid literal %q in filter expression", lit.text)
	}
	p.pos++

	return buildComparison(p.sheet.Columns[ci], ci, op, lit)
}

func buildComparison(col store.Column, ci int, op string, lit filterToken) (rowPredicate, error) {
	switch col.Type {
	case store.TypeNumeric:
		target, err := strconv.ParseFloat(strings.ReplaceAll(lit.text, ",", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("column %q is numeric but %q is not a number", col.Name, lit.text)
		}
		return func(row []store.Cell) bool {
			c := row[ci]
			if c.Kind != store.KindNumber {
				return false
			}
			return compareFloats(c.Number, target, op)
		}, nil

	case store.TypeTemporal:
		target, ok := ingest.ParseDate(lit.text)
		if !ok {
			return nil, fmt.Errorf("column %q is temporal but %q is not a recognized date", col.Name, lit.text)
		}
		return func(row []store.Cell) bool {
			c := row[ci]
			if c.Kind != store.KindTime {
				return false
			}
			return compareTimes(c.Time, target, op)
		}, nil

	default:
		target := lit.text
		return func(row []store.Cell) bool {
			c := row[ci]
			if c.IsNull() {
				return false
			}
			return compareStrings(c.String(), target, op)
		}, nil
	}
}

func compareFloats(a, b float64, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case "<=":
		return a <= b
	}
	return false
}

func compareTimes(a, b time.Time, op string) bool {
	switch op {
	case "==":
		return a.Equal(b)
	case "!=":
		return !a.Equal(b)
	case ">":
		return a.After(b)
	case ">=":
		return a.After(b) || a.Equal(b)
	case "<":
		return a.Before(b)
	case "<=":
		return a.Before(b) || a.Equal(b)
	}
	return false
}

func compareStrings(a, b, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case "<=":
		return a <= b
	}
	return false
}

// applyFilter returns the rows matching the expression.
func applyFilter(sheet *store.Sheet, expr string) ([][]store.Cell, error) {
	pred, err := compileFilter(expr, sheet)
	if err != nil {
		return nil, err
	}
	var out [][]store.Cell
	for _, row := range sheet.Rows {
		if pred(row) {
			out = append(out, row)
		}
	}
	return out, nil
}
