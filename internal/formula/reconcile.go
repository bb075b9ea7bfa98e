package formula

import (
	"fmt"
	"math"

	"github.com/opensource-finance/merlin/internal/domain"
)

// sumReconciliation checks that a total column equals the sum of its
// part columns within a relative tolerance, row by row.
//
// Params: total (field), parts ([]field), tolerance (relative, default 0.01).
func sumReconciliation(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	totalField, ok := rule.ParamString("total")
	if !ok {
		return failResult(domain.Evidence{"error": "missing param total"})
	}
	parts := rule.ParamStrings("parts")
	if len(parts) == 0 {
		return failResult(domain.Evidence{"error": "missing param parts"})
	}
	tol := rule.ParamFloat("tolerance", 0.01)

	total, ok := numericSeries(f, totalField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + totalField})
	}
	partSeries := make([]domain.Series, 0, len(parts))
	for _, p := range parts {
		s, ok := numericSeries(f, p)
		if !ok {
			return warnResult(domain.Evidence{"note": "column missing: " + p})
		}
		partSeries = append(partSeries, s)
	}

	var worstAbs, worstRel float64
	var worstRow int = -1
	rows := 0
	for i, t := range total {
		if math.IsNaN(t) {
			continue
		}
		var partSum float64
		valid := true
		for _, s := range partSeries {
			if i >= len(s) || math.IsNaN(s[i]) {
				valid = false
				break
			}
			partSum += s[i]
		}
		if !valid {
			continue
		}
		rows++
		abs := math.Abs(t - partSum)
		rel := abs / math.Max(math.Abs(t), eps)
		if rel > worstRel {
			worstRel, worstAbs, worstRow = rel, abs, i
		}
	}
	if rows == 0 {
		return warnResult(domain.Evidence{"note": "no comparable rows"})
	}
	ev := domain.Evidence{
		"rows_checked": rows,
		"max_abs_err":  round4(worstAbs),
		"max_rel_err":  round4(worstRel),
	}
	if worstRel > tol {
		ev["worst_row"] = worstRow
		ev["tolerance"] = tol
		return failResult(ev)
	}
	return passResult(ev)
}

// equation checks left ≈ Σ right per row, with absolute or relative
// tolerance. Generalizes balance-sheet style identities such as
// assets = liabilities + equity.
//
// Params: left (field), right ([]field), tolerance, mode (abs|relative).
func equation(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	leftField, ok := rule.ParamString("left")
	if !ok {
		return failResult(domain.Evidence{"error": "missing param left"})
	}
	rights := rule.ParamStrings("right")
	if len(rights) == 0 {
		return failResult(domain.Evidence{"error": "missing param right"})
	}
	mode, _ := rule.ParamString("mode")
	if mode == "" {
		mode = "relative"
	}
	tol := rule.ParamFloat("tolerance", 0.01)

	left, ok := numericSeries(f, leftField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + leftField})
	}
	rightSeries := make([]domain.Series, 0, len(rights))
	for _, r := range rights {
		s, ok := numericSeries(f, r)
		if !ok {
			return warnResult(domain.Evidence{"note": "column missing: " + r})
		}
		rightSeries = append(rightSeries, s)
	}

	var worstErr float64
	var worstRow = -1
	rows := 0
	for i, l := range left {
		if math.IsNaN(l) {
			continue
		}
		var rs float64
		valid := true
		for _, s := range rightSeries {
			if i >= len(s) || math.IsNaN(s[i]) {
				valid = false
				break
			}
			rs += s[i]
		}
		if !valid {
			continue
		}
		rows++
		e := math.Abs(l - rs)
		if mode == "relative" {
			e = e / math.Max(math.Abs(l), eps)
		}
		if e > worstErr {
			worstErr, worstRow = e, i
		}
	}
	if rows == 0 {
		return warnResult(domain.Evidence{"note": "no comparable rows"})
	}
	ev := domain.Evidence{
		"rows_checked": rows,
		"max_err":      round4(worstErr),
		"mode":         mode,
	}
	if worstErr > tol {
		ev["worst_row"] = worstRow
		ev["tolerance"] = tol
		return failResult(ev)
	}
	return passResult(ev)
}

// headcountFlow checks that the period-over-period headcount delta is
// explained by hires minus exits (plus optional transfers).
//
// Params: headcount, hires, exits, transfers (optional), tolerance
// (absolute heads, default 0.5).
func headcountFlow(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	hcField, ok1 := rule.ParamString("headcount")
	hiresField, ok2 := rule.ParamString("hires")
	exitsField, ok3 := rule.ParamString("exits")
	if !ok1 || !ok2 || !ok3 {
		return failResult(domain.Evidence{"error": "headcount, hires and exits params are required"})
	}
	tol := rule.ParamFloat("tolerance", 0.5)

	hc, ok := numericSeries(f, hcField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + hcField})
	}
	hires, ok := numericSeries(f, hiresField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + hiresField})
	}
	exits, ok := numericSeries(f, exitsField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + exitsField})
	}
	var transfers domain.Series
	if tf, ok := rule.ParamString("transfers"); ok {
		transfers, _ = numericSeries(f, tf)
	}

	if len(hc) < 2 {
		return warnResult(domain.Evidence{"note": "insufficient periods"})
	}
	n := min(len(hc), len(hires), len(exits))
	var worst float64
	var worstRow = -1
	checked := 0
	for i := 1; i < n; i++ {
		if math.IsNaN(hc[i]) || math.IsNaN(hc[i-1]) || math.IsNaN(hires[i]) || math.IsNaN(exits[i]) {
			continue
		}
		expected := hires[i] - exits[i]
		if transfers != nil && i < len(transfers) && !math.IsNaN(transfers[i]) {
			expected += transfers[i]
		}
		checked++
		gap := math.Abs((hc[i] - hc[i-1]) - expected)
		if gap > worst {
			worst, worstRow = gap, i
		}
	}
	if checked == 0 {
		return warnResult(domain.Evidence{"note": "no comparable periods"})
	}
	ev := domain.Evidence{
		"periods_checked": checked,
		"max_gap":         round4(worst),
	}
	if worst > tol {
		ev["worst_period"] = worstRow
		ev["tolerance"] = tol
		return failResult(ev)
	}
	return passResult(ev)
}

// periodAlignment checks that the named tables of a payload carry the
// same ordered period labels.
//
// Params: period_field (default "period"), tables ([]table, default all).
func periodAlignment(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	periodField, _ := rule.ParamString("period_field")
	if periodField == "" {
		periodField = "period"
	}
	tables := rule.ParamStrings("tables")
	if len(tables) == 0 {
		tables = fs.Tables()
	}
	if len(tables) < 2 {
		return skippedResult("fewer than two tables to align")
	}

	var ref []string
	var refTable string
	for _, name := range tables {
		f, ok := fs.Frame(name)
		if !ok {
			return warnResult(domain.Evidence{"note": "table missing: " + name})
		}
		periods, ok := f.Strings(periodField)
		if !ok {
			return warnResult(domain.Evidence{"note": fmt.Sprintf("table %s has no %s column", name, periodField)})
		}
		if ref == nil {
			ref, refTable = periods, name
			continue
		}
		if len(periods) != len(ref) {
			return failResult(domain.Evidence{
				"table":        name,
				"against":      refTable,
				"period_count": len(periods),
				"expected":     len(ref),
			})
		}
		for i := range periods {
			if periods[i] != ref[i] {
				return failResult(domain.Evidence{
					"table":    name,
					"against":  refTable,
					"position": i,
					"got":      periods[i],
					"expected": ref[i],
				})
			}
		}
	}
	return passResult(domain.Evidence{"tables_checked": len(tables), "periods": len(ref)})
}
