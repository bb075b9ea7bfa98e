package domain

import (
	"math"
	"strconv"
	"strings"
)

// Series is one field's numeric values in row order. Values that could
// not be coerced to a number are NaN.
type Series []float64

// Count returns the number of finite values.
func (s Series) Count() int {
	n := 0
	for _, v := range s {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			n++
		}
	}
	return n
}

// Frame is a column-addressable, intent-resolved view over one payload
// table. Frames are built once by the intent resolver and read-only
// afterwards, so they are safe to share across rule evaluations.
type Frame struct {
	domain string
	table  string
	order  []string
	cols   map[string][]any
	rows   int
}

// NewFrame builds a frame from columns in insertion order. Columns of
// uneven length are padded with nil to the longest.
func NewFrame(domain, table string, order []string, cols map[string][]any) *Frame {
	rows := 0
	for _, c := range cols {
		if len(c) > rows {
			rows = len(c)
		}
	}
	for name, c := range cols {
		for len(c) < rows {
			c = append(c, nil)
		}
		cols[name] = c
	}
	return &Frame{domain: domain, table: table, order: order, cols: cols, rows: rows}
}

// FrameFromTable builds a frame directly from a table's rows, preserving
// first-seen column order.
func FrameFromTable(domain string, t *Table) *Frame {
	var order []string
	cols := make(map[string][]any)
	for _, row := range t.Rows {
		for k := range row {
			if _, seen := cols[k]; !seen {
				order = append(order, k)
				cols[k] = make([]any, 0, len(t.Rows))
			}
		}
	}
	// second pass keeps row alignment for late-appearing columns
	for i, row := range t.Rows {
		for _, name := range order {
			col := cols[name]
			for len(col) < i {
				col = append(col, nil)
			}
			if v, ok := row[name]; ok {
				col = append(col, v)
			} else {
				col = append(col, nil)
			}
			cols[name] = col
		}
	}
	return NewFrame(domain, t.Name, order, cols)
}

// Domain returns the owning domain name.
func (f *Frame) Domain() string { return f.domain }

// TableName returns the source table name.
func (f *Frame) TableName() string { return f.table }

// Len returns the row count.
func (f *Frame) Len() int { return f.rows }

// Fields returns the column names in insertion order.
func (f *Frame) Fields() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Has reports whether the column exists.
func (f *Frame) Has(field string) bool {
	_, ok := f.cols[field]
	return ok
}

// AddAlias exposes an existing column under an intent name without
// copying values. Used only during resolution, before the frame is shared.
func (f *Frame) AddAlias(intent, source string) {
	if _, exists := f.cols[intent]; exists {
		return
	}
	col, ok := f.cols[source]
	if !ok {
		return
	}
	f.order = append(f.order, intent)
	f.cols[intent] = col
}

// AddColumn inserts a synthesized column. Resolution-time only.
func (f *Frame) AddColumn(name string, values []any) {
	if _, exists := f.cols[name]; exists {
		return
	}
	f.order = append(f.order, name)
	f.cols[name] = values
	if len(values) > f.rows {
		f.rows = len(values)
	}
}

// Numeric returns the column coerced to a numeric series. The second
// result is false when the column is absent or has no finite values.
func (f *Frame) Numeric(field string) (Series, bool) {
	col, ok := f.cols[field]
	if !ok {
		return nil, false
	}
	s := make(Series, len(col))
	for i, v := range col {
		s[i] = toFloat(v)
	}
	return s, s.Count() > 0
}

// Strings returns the column rendered as strings; nils become "".
func (f *Frame) Strings(field string) ([]string, bool) {
	col, ok := f.cols[field]
	if !ok {
		return nil, false
	}
	out := make([]string, len(col))
	for i, v := range col {
		out[i] = toString(v)
	}
	return out, true
}

// TextColumn returns the cells that are raw strings, and true only when
// the column holds at least one. Columns of numbers or booleans are not
// text, even though Strings would render them.
func (f *Frame) TextColumn(field string) ([]string, bool) {
	col, ok := f.cols[field]
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(col))
	for _, v := range col {
		if s, isStr := v.(string); isStr {
			out = append(out, s)
		}
	}
	return out, len(out) > 0
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		t := strings.TrimSpace(strings.ReplaceAll(x, ",", ""))
		if t == "" {
			return math.NaN()
		}
		if strings.HasSuffix(t, "%") {
			if p, err := strconv.ParseFloat(strings.TrimSuffix(t, "%"), 64); err == nil {
				return p / 100
			}
		}
		if p, err := strconv.ParseFloat(t, 64); err == nil {
			return p
		}
	}
	return math.NaN()
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}
