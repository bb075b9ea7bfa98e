package formula

import (
	"fmt"
	"math"

	"github.com/opensource-finance/merlin/internal/domain"
)

// leg identifies one domain/field series a cross formula reads, with an
// optional trend direction and change threshold.
type leg struct {
	Domain    string
	Table     string
	Field     string
	Direction string
	Threshold float64
}

func legsParam(rule *domain.RuleDefinition, key string) []leg {
	raw, ok := rule.Params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]leg, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		l := leg{Threshold: 0.05}
		if v, ok := m["domain"].(string); ok {
			l.Domain = v
		}
		if v, ok := m["table"].(string); ok {
			l.Table = v
		}
		if v, ok := m["field"].(string); ok {
			l.Field = v
		}
		if v, ok := m["direction"].(string); ok {
			l.Direction = v
		}
		switch v := m["threshold"].(type) {
		case float64:
			l.Threshold = v
		case int:
			l.Threshold = float64(v)
		}
		out = append(out, l)
	}
	return out
}

// legSeries pulls the leg's numeric series out of the session facts.
// A nil series means the accompanying result should be returned as-is.
func legSeries(facts *domain.FactSet, l leg) (domain.Series, Result) {
	f, ok := facts.DomainFrame(l.Domain, l.Table)
	if !ok {
		return nil, skippedResult("domain not present: " + l.Domain)
	}
	s, ok := f.Numeric(l.Field)
	if !ok {
		return nil, skippedResult(fmt.Sprintf("%s: column missing: %s", l.Domain, l.Field))
	}
	return s, Result{}
}

// crossCorrelationSign counts periods where every leg moves the way it
// should not, and fails when the joint pattern repeats.
//
// A leg with direction "up" contributes when its period change exceeds
// its threshold; "down" when the change falls below the negated
// threshold. Two legs both "up" with fields like attrition and spend
// express "these must not rise together".
//
// Params: legs ([{domain, table, field, direction, threshold}]),
// fail_periods (default 2), warn_periods (default 1).
func crossCorrelationSign(facts *domain.FactSet, rule *domain.RuleDefinition) Result {
	legs := legsParam(rule, "legs")
	if len(legs) < 2 {
		return failResult(domain.Evidence{"error": "at least two legs are required"})
	}
	failAt := int(rule.ParamFloat("fail_periods", 2))
	warnAt := int(rule.ParamFloat("warn_periods", 1))

	changes := make([]domain.Series, 0, len(legs))
	n := math.MaxInt
	for _, l := range legs {
		s, skip := legSeries(facts, l)
		if s == nil {
			return skip
		}
		c := pctChanges(s)
		if len(c) < n {
			n = len(c)
		}
		changes = append(changes, c)
	}
	if n < 1 {
		return skippedResult("insufficient periods")
	}

	joint := 0
	for i := 0; i < n; i++ {
		all := true
		for j, l := range legs {
			c := changes[j][i]
			if math.IsNaN(c) {
				all = false
				break
			}
			switch l.Direction {
			case "down":
				if c > -l.Threshold {
					all = false
				}
			default: // up
				if c < l.Threshold {
					all = false
				}
			}
			if !all {
				break
			}
		}
		if all {
			joint++
		}
	}
	ev := domain.Evidence{
		"periods_compared": n,
		"joint_periods":    joint,
	}
	if joint >= failAt {
		return failResult(ev)
	}
	if joint >= warnAt {
		return warnResult(ev)
	}
	return passResult(ev)
}

// crossTrendCorrelation checks the Pearson correlation between two
// series from different domains against a band.
//
// Params: legs (two {domain, table, field}), min_corr, max_corr.
func crossTrendCorrelation(facts *domain.FactSet, rule *domain.RuleDefinition) Result {
	legs := legsParam(rule, "legs")
	if len(legs) != 2 {
		return failResult(domain.Evidence{"error": "exactly two legs are required"})
	}
	minCorr := rule.ParamFloat("min_corr", -1)
	maxCorr := rule.ParamFloat("max_corr", 1)

	left, skip := legSeries(facts, legs[0])
	if left == nil {
		return skip
	}
	right, skip := legSeries(facts, legs[1])
	if right == nil {
		return skip
	}
	n := min(len(left), len(right))
	if n < 3 {
		return warnResult(domain.Evidence{"note": "insufficient points", "points": n})
	}
	r := pearson(left[:n], right[:n])
	if math.IsNaN(r) {
		return warnResult(domain.Evidence{"note": "correlation undefined", "points": n})
	}
	ev := domain.Evidence{
		"points":      n,
		"correlation": round4(r),
	}
	if r < minCorr || r > maxCorr {
		ev["min_corr"] = minCorr
		ev["max_corr"] = maxCorr
		return failResult(ev)
	}
	return passResult(ev)
}

// crossTotalReconciliation compares an aggregate of one domain's series
// against another's. Mode "not_exceed" tolerates left falling short of
// right but never exceeding it; mode "equal" requires both to match.
//
// Params: legs (two {domain, table, field}), agg (sum|mean, default
// sum), mode (equal|not_exceed, default equal), tolerance (relative,
// default 0.02).
func crossTotalReconciliation(facts *domain.FactSet, rule *domain.RuleDefinition) Result {
	legs := legsParam(rule, "legs")
	if len(legs) != 2 {
		return failResult(domain.Evidence{"error": "exactly two legs are required"})
	}
	agg, _ := rule.ParamString("agg")
	if agg == "" {
		agg = "sum"
	}
	mode, _ := rule.ParamString("mode")
	if mode == "" {
		mode = "equal"
	}
	tol := rule.ParamFloat("tolerance", 0.02)

	aggregate := func(s domain.Series) float64 {
		vals := finite(s)
		if len(vals) == 0 {
			return math.NaN()
		}
		if agg == "mean" {
			return mean(vals)
		}
		return sum(vals)
	}

	leftSeries, skip := legSeries(facts, legs[0])
	if leftSeries == nil {
		return skip
	}
	rightSeries, skip := legSeries(facts, legs[1])
	if rightSeries == nil {
		return skip
	}
	left, right := aggregate(leftSeries), aggregate(rightSeries)
	if math.IsNaN(left) || math.IsNaN(right) {
		return warnResult(domain.Evidence{"note": "no numeric values"})
	}

	bound := tol * math.Max(math.Abs(right), eps)
	ev := domain.Evidence{
		"left":  round4(left),
		"right": round4(right),
		"agg":   agg,
		"mode":  mode,
	}
	var ok bool
	switch mode {
	case "not_exceed":
		ok = left <= right+bound
	default:
		ok = math.Abs(left-right) <= bound
	}
	if !ok {
		ev["tolerance"] = tol
		return failResult(ev)
	}
	return passResult(ev)
}

// crossFunnelConsistency checks that funnel stages shrink: per period,
// each stage must not exceed the one before it (beyond tolerance).
// Stages typically span domains, e.g. marketing leads feeding sales
// orders.
//
// Params: legs ([{domain, table, field}] in funnel order, 2+),
// tolerance (relative, default 0.0), max_violation_ratio (default 0).
func crossFunnelConsistency(facts *domain.FactSet, rule *domain.RuleDefinition) Result {
	legs := legsParam(rule, "legs")
	if len(legs) < 2 {
		return failResult(domain.Evidence{"error": "at least two legs are required"})
	}
	tol := rule.ParamFloat("tolerance", 0)
	maxRatio := rule.ParamFloat("max_violation_ratio", 0)

	series := make([]domain.Series, 0, len(legs))
	n := math.MaxInt
	for _, l := range legs {
		s, skip := legSeries(facts, l)
		if s == nil {
			return skip
		}
		if len(s) < n {
			n = len(s)
		}
		series = append(series, s)
	}
	if n == 0 {
		return skippedResult("no overlapping periods")
	}

	violations, checked := 0, 0
	for i := 0; i < n; i++ {
		valid := true
		for _, s := range series {
			if math.IsNaN(s[i]) {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}
		checked++
		for j := 1; j < len(series); j++ {
			upper := series[j-1][i] * (1 + tol)
			if series[j][i] > upper+eps {
				violations++
				break
			}
		}
	}
	if checked == 0 {
		return warnResult(domain.Evidence{"note": "no comparable periods"})
	}
	ev := domain.Evidence{
		"periods_checked": checked,
		"violations":      violations,
	}
	if float64(violations) > maxRatio*float64(checked) {
		return failResult(ev)
	}
	return passResult(ev)
}

// crossFlowConsistency checks a stock-and-flow identity across domains:
// the change in a stock series should match inflow minus outflow.
// Mismatches soft-warn because the series often come from systems with
// different cutoffs.
//
// Params: legs (three {domain, table, field}: stock, inflow, outflow),
// tolerance_pct (of stock, default 0.05).
func crossFlowConsistency(facts *domain.FactSet, rule *domain.RuleDefinition) Result {
	legs := legsParam(rule, "legs")
	if len(legs) != 3 {
		return failResult(domain.Evidence{"error": "exactly three legs are required: stock, inflow, outflow"})
	}
	tol := rule.ParamFloat("tolerance_pct", 0.05)

	stock, skip := legSeries(facts, legs[0])
	if stock == nil {
		return skip
	}
	inflow, skip := legSeries(facts, legs[1])
	if inflow == nil {
		return skip
	}
	outflow, skip := legSeries(facts, legs[2])
	if outflow == nil {
		return skip
	}

	n := min(len(stock), len(inflow), len(outflow))
	if n < 2 {
		return skippedResult("insufficient periods")
	}
	var worst float64
	checked := 0
	for i := 1; i < n; i++ {
		if math.IsNaN(stock[i]) || math.IsNaN(stock[i-1]) || math.IsNaN(inflow[i]) || math.IsNaN(outflow[i]) {
			continue
		}
		checked++
		gap := math.Abs((stock[i] - stock[i-1]) - (inflow[i] - outflow[i]))
		rel := gap / math.Max(math.Abs(stock[i]), eps)
		worst = math.Max(worst, rel)
	}
	if checked == 0 {
		return warnResult(domain.Evidence{"note": "no comparable periods"})
	}
	ev := domain.Evidence{
		"periods_checked": checked,
		"max_gap_pct":     round4(worst),
	}
	if worst > tol {
		ev["tolerance_pct"] = tol
		return warnResult(ev)
	}
	return passResult(ev)
}
