package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/intent"
)

// Violation pinpoints one schema breach in a payload.
type Violation struct {
	Table    string `json:"table"`
	Field    string `json:"field,omitempty"`
	Row      int    `json:"row"` // -1 for table-level violations
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (v Violation) String() string {
	loc := v.Table
	if v.Field != "" {
		loc += "." + v.Field
	}
	if v.Row >= 0 {
		loc += fmt.Sprintf("[%d]", v.Row)
	}
	return fmt.Sprintf("%s: expected %s, got %s", loc, v.Expected, v.Actual)
}

// ValidationError carries every violation found in one payload. A
// payload is accepted whole or rejected whole.
type ValidationError struct {
	Domain     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload for domain %s has %d schema violations", e.Domain, len(e.Violations))
}

// Validator checks payloads against a schema set.
type Validator struct {
	schemas *SchemaSet
}

// NewValidator wraps a loaded schema set.
func NewValidator(schemas *SchemaSet) *Validator {
	return &Validator{schemas: schemas}
}

// Validate checks one payload. Domains without a declared schema pass
// through untouched; rules still guard themselves via Requires.
func (v *Validator) Validate(p *domain.Payload) error {
	if p == nil || p.Domain == "" {
		return fmt.Errorf("payload domain is required")
	}
	if len(p.Tables) == 0 {
		return &ValidationError{Domain: p.Domain, Violations: []Violation{{
			Table: "", Row: -1, Expected: "at least one table", Actual: "none",
		}}}
	}
	schema, ok := v.schemas.Schema(p.Domain)
	if !ok {
		return nil
	}

	var violations []Violation
	for i := range schema.Tables {
		ts := &schema.Tables[i]
		var match *domain.Table
		for j := range p.Tables {
			if p.Tables[j].Name == ts.Name {
				match = &p.Tables[j]
				break
			}
		}
		if match == nil {
			if ts.Required {
				violations = append(violations, Violation{
					Table: ts.Name, Row: -1,
					Expected: "table present", Actual: "missing",
				})
			}
			continue
		}
		violations = append(violations, checkTable(ts, match)...)
	}
	if len(violations) > 0 {
		return &ValidationError{Domain: p.Domain, Violations: violations}
	}
	return nil
}

func checkTable(ts *TableSpec, t *domain.Table) []Violation {
	var out []Violation
	if len(t.Rows) < ts.MinRows {
		out = append(out, Violation{
			Table: ts.Name, Row: -1,
			Expected: fmt.Sprintf("at least %d rows", ts.MinRows),
			Actual:   strconv.Itoa(len(t.Rows)),
		})
	}
	for i := range ts.Fields {
		out = append(out, checkField(ts.Name, &ts.Fields[i], t)...)
	}
	return out
}

func checkField(table string, fs *FieldSpec, t *domain.Table) []Violation {
	var out []Violation
	present := false
	for _, row := range t.Rows {
		if _, ok := row[fs.Name]; ok {
			present = true
			break
		}
	}
	if !present {
		if fs.Required {
			out = append(out, Violation{
				Table: table, Field: fs.Name, Row: -1,
				Expected: "field present", Actual: "missing",
			})
		}
		return out
	}

	for i, row := range t.Rows {
		raw, ok := row[fs.Name]
		if !ok || raw == nil {
			if fs.Required {
				out = append(out, Violation{
					Table: table, Field: fs.Name, Row: i,
					Expected: fs.Type, Actual: "null",
				})
			}
			continue
		}
		num, isNum := asNumber(raw)
		switch fs.Type {
		case "number":
			if !isNum {
				out = append(out, Violation{
					Table: table, Field: fs.Name, Row: i,
					Expected: "number", Actual: describe(raw),
				})
				continue
			}
			if fs.program != nil {
				ok, err := evalConstraint(fs, num, row)
				if err != nil {
					out = append(out, Violation{
						Table: table, Field: fs.Name, Row: i,
						Expected: fs.Constraint, Actual: "evaluation error: " + err.Error(),
					})
				} else if !ok {
					out = append(out, Violation{
						Table: table, Field: fs.Name, Row: i,
						Expected: fs.Constraint, Actual: describe(raw),
					})
				}
			}
		case "bool":
			if _, isBool := raw.(bool); !isBool {
				out = append(out, Violation{
					Table: table, Field: fs.Name, Row: i,
					Expected: "bool", Actual: describe(raw),
				})
			}
		case "period":
			s, isStr := raw.(string)
			if !isStr || strings.TrimSpace(s) == "" {
				out = append(out, Violation{
					Table: table, Field: fs.Name, Row: i,
					Expected: "period label", Actual: describe(raw),
				})
			}
		case "string":
			if _, isStr := raw.(string); !isStr {
				out = append(out, Violation{
					Table: table, Field: fs.Name, Row: i,
					Expected: "string", Actual: describe(raw),
				})
			}
		}
	}
	return out
}

func evalConstraint(fs *FieldSpec, value float64, row domain.Row) (bool, error) {
	out, _, err := fs.program.Eval(map[string]any{
		"value": value,
		"row":   map[string]any(row),
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("constraint produced %T", out.Value())
	}
	return b, nil
}

// asNumber accepts native numbers and numeric strings the same way the
// frame coercion does, so validation and evaluation agree.
func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		t := strings.TrimSpace(strings.ReplaceAll(x, ",", ""))
		if strings.HasSuffix(t, "%") {
			if p, err := strconv.ParseFloat(strings.TrimSuffix(t, "%"), 64); err == nil {
				return p / 100, true
			}
		}
		if p, err := strconv.ParseFloat(t, 64); err == nil {
			return p, true
		}
	}
	return 0, false
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		if len(x) > 40 {
			x = x[:40] + "…"
		}
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v (%T)", v, v)
	}
}

// Resolve validates then intent-resolves a payload in one step. This is
// the only path payloads take into the engine.
func (v *Validator) Resolve(p *domain.Payload) (*domain.FrameSet, error) {
	if err := v.Validate(p); err != nil {
		return nil, err
	}
	return intent.Resolve(p), nil
}
