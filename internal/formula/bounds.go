package formula

import (
	"math"

	"github.com/opensource-finance/merlin/internal/domain"
)

// ratioBounds checks that numerator/denominator stays inside [min, max]
// for every row.
//
// Params: numerator, denominator (fields), min, max, soft (bool).
func ratioBounds(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	numField, ok1 := rule.ParamString("numerator")
	denField, ok2 := rule.ParamString("denominator")
	if !ok1 || !ok2 {
		return failResult(domain.Evidence{"error": "numerator and denominator params are required"})
	}
	lo := rule.ParamFloat("min", math.Inf(-1))
	hi := rule.ParamFloat("max", math.Inf(1))
	soft := rule.ParamBool("soft", false)

	num, ok := numericSeries(f, numField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + numField})
	}
	den, ok := numericSeries(f, denField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + denField})
	}

	n := min(len(num), len(den))
	minRatio, maxRatio := math.Inf(1), math.Inf(-1)
	violations, checked := 0, 0
	for i := 0; i < n; i++ {
		if math.IsNaN(num[i]) || math.IsNaN(den[i]) || math.Abs(den[i]) < eps {
			continue
		}
		checked++
		r := num[i] / den[i]
		minRatio = math.Min(minRatio, r)
		maxRatio = math.Max(maxRatio, r)
		if r < lo || r > hi {
			violations++
		}
	}
	if checked == 0 {
		return warnResult(domain.Evidence{"note": "no comparable rows"})
	}
	ev := domain.Evidence{
		"rows_checked": checked,
		"min_ratio":    round4(minRatio),
		"max_ratio":    round4(maxRatio),
		"violations":   violations,
	}
	return classify(violations == 0, soft, ev)
}

// valueBounds checks a single column against [min, max].
//
// Params: field, min, max, soft (bool).
func valueBounds(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	field, ok := rule.ParamString("field")
	if !ok {
		return failResult(domain.Evidence{"error": "missing param field"})
	}
	lo := rule.ParamFloat("min", math.Inf(-1))
	hi := rule.ParamFloat("max", math.Inf(1))
	soft := rule.ParamBool("soft", false)

	s, ok := numericSeries(f, field)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + field})
	}
	vals := finite(s)
	if len(vals) == 0 {
		return warnResult(domain.Evidence{"note": "no numeric values"})
	}
	violations := 0
	lowest, highest := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lowest = math.Min(lowest, v)
		highest = math.Max(highest, v)
		if v < lo || v > hi {
			violations++
		}
	}
	ev := domain.Evidence{
		"rows_checked": len(vals),
		"min":          round4(lowest),
		"max":          round4(highest),
		"violations":   violations,
	}
	return classify(violations == 0, soft, ev)
}

// nonNegative checks that the named columns (default: every numeric
// column) carry no negative values.
//
// Params: fields ([]field, optional).
func nonNegative(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	fields := rule.ParamStrings("fields")
	if len(fields) == 0 {
		for _, name := range f.Fields() {
			if _, ok := f.Numeric(name); ok {
				fields = append(fields, name)
			}
		}
	}
	if len(fields) == 0 {
		return warnResult(domain.Evidence{"note": "no numeric columns"})
	}
	negatives := 0
	var offenders []string
	for _, name := range fields {
		s, ok := numericSeries(f, name)
		if !ok {
			continue
		}
		for _, v := range finite(s) {
			if v < 0 {
				negatives++
				if len(offenders) == 0 || offenders[len(offenders)-1] != name {
					offenders = append(offenders, name)
				}
			}
		}
	}
	ev := domain.Evidence{
		"fields_checked": len(fields),
		"negative_cells": negatives,
	}
	if negatives > 0 {
		ev["offending_fields"] = offenders
		return failResult(ev)
	}
	return passResult(ev)
}

// attritionRateBounds checks exits/headcount per period against a band,
// optionally annualized.
//
// Params: exits, headcount (fields), min, max (rates), annualize
// (bool), periods_per_year (default 12).
func attritionRateBounds(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	exitsField, ok1 := rule.ParamString("exits")
	hcField, ok2 := rule.ParamString("headcount")
	if !ok1 || !ok2 {
		return failResult(domain.Evidence{"error": "exits and headcount params are required"})
	}
	lo := rule.ParamFloat("min", 0)
	hi := rule.ParamFloat("max", math.Inf(1))
	annualize := rule.ParamBool("annualize", false)
	perYear := rule.ParamFloat("periods_per_year", 12)

	exits, ok := numericSeries(f, exitsField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + exitsField})
	}
	hc, ok := numericSeries(f, hcField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + hcField})
	}

	n := min(len(exits), len(hc))
	violations, checked := 0, 0
	maxRate := math.Inf(-1)
	for i := 0; i < n; i++ {
		if math.IsNaN(exits[i]) || math.IsNaN(hc[i]) || hc[i] < eps {
			continue
		}
		checked++
		rate := exits[i] / hc[i]
		if annualize {
			rate *= perYear
		}
		maxRate = math.Max(maxRate, rate)
		if rate < lo || rate > hi {
			violations++
		}
	}
	if checked == 0 {
		return warnResult(domain.Evidence{"note": "no comparable periods"})
	}
	ev := domain.Evidence{
		"periods_checked": checked,
		"max_rate":        round4(maxRate),
		"violations":      violations,
	}
	if violations > 0 {
		ev["min"] = lo
		ev["max"] = hi
		return failResult(ev)
	}
	return passResult(ev)
}
