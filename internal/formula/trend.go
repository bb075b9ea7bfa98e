package formula

import (
	"math"

	"github.com/opensource-finance/merlin/internal/domain"
)

// monotonicSequence checks that a column moves in one direction,
// tolerating regressions up to a fractional allowance.
//
// Params: field, direction (non_decreasing|non_increasing, default
// non_decreasing), max_regression (fraction of prior value, default 0).
func monotonicSequence(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	field, ok := rule.ParamString("field")
	if !ok {
		return failResult(domain.Evidence{"error": "missing param field"})
	}
	direction, _ := rule.ParamString("direction")
	if direction == "" {
		direction = "non_decreasing"
	}
	allowance := rule.ParamFloat("max_regression", 0)

	s, ok := numericSeries(f, field)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + field})
	}
	vals := finite(s)
	if len(vals) < 2 {
		return warnResult(domain.Evidence{"note": "insufficient periods"})
	}

	violations := 0
	var worstDrop float64
	for i := 1; i < len(vals); i++ {
		delta := vals[i] - vals[i-1]
		if direction == "non_increasing" {
			delta = -delta
		}
		if delta >= 0 {
			continue
		}
		drop := -delta / math.Max(math.Abs(vals[i-1]), eps)
		worstDrop = math.Max(worstDrop, drop)
		if drop > allowance {
			violations++
		}
	}
	ev := domain.Evidence{
		"periods_checked": len(vals) - 1,
		"direction":       direction,
		"violations":      violations,
		"worst_drop":      round4(worstDrop),
	}
	if violations > 0 {
		return failResult(ev)
	}
	return passResult(ev)
}

// varianceThreshold checks the coefficient of variation of a column
// against a band. Too little variance suggests fabricated data, too
// much suggests noise.
//
// Params: field, min_cv, max_cv.
func varianceThreshold(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	field, ok := rule.ParamString("field")
	if !ok {
		return failResult(domain.Evidence{"error": "missing param field"})
	}
	minCV := rule.ParamFloat("min_cv", 0)
	maxCV := rule.ParamFloat("max_cv", math.Inf(1))

	s, ok := numericSeries(f, field)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + field})
	}
	vals := finite(s)
	if len(vals) < 3 {
		return warnResult(domain.Evidence{"note": "insufficient periods"})
	}
	m := mean(vals)
	if math.Abs(m) < eps {
		return warnResult(domain.Evidence{"note": "mean near zero"})
	}
	cv := stddev(vals) / math.Abs(m)
	ev := domain.Evidence{
		"periods": len(vals),
		"cv":      round4(cv),
	}
	if cv < minCV || cv > maxCV {
		ev["min_cv"] = minCV
		if !math.IsInf(maxCV, 1) {
			ev["max_cv"] = maxCV
		}
		return failResult(ev)
	}
	return passResult(ev)
}

// flatline warns when a column repeats the same value for too many
// consecutive periods. Identical reported figures month after month
// are a classic fabrication tell, so this soft-warns rather than fails.
//
// Params: field, min_consecutive (default 3).
func flatline(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	field, ok := rule.ParamString("field")
	if !ok {
		return failResult(domain.Evidence{"error": "missing param field"})
	}
	minRun := int(rule.ParamFloat("min_consecutive", 3))

	s, ok := numericSeries(f, field)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + field})
	}
	vals := finite(s)
	if len(vals) < 2 {
		return warnResult(domain.Evidence{"note": "insufficient periods"})
	}

	longest, run := 1, 1
	for i := 1; i < len(vals); i++ {
		if math.Abs(vals[i]-vals[i-1]) < eps {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	ev := domain.Evidence{
		"periods":     len(vals),
		"longest_run": longest,
	}
	if longest >= minRun {
		ev["min_consecutive"] = minRun
		return warnResult(ev)
	}
	return passResult(ev)
}

// outlierSigma flags values further than sigma standard deviations from
// the column mean.
//
// Params: field, sigma (default 3), soft (bool).
func outlierSigma(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	field, ok := rule.ParamString("field")
	if !ok {
		return failResult(domain.Evidence{"error": "missing param field"})
	}
	sigma := rule.ParamFloat("sigma", 3)
	soft := rule.ParamBool("soft", false)

	s, ok := numericSeries(f, field)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + field})
	}
	vals := finite(s)
	if len(vals) < 4 {
		return warnResult(domain.Evidence{"note": "insufficient periods"})
	}
	m, sd := mean(vals), stddev(vals)
	if sd < eps {
		return passResult(domain.Evidence{"periods": len(vals), "max_z": 0.0})
	}
	outliers := 0
	var maxZ float64
	for _, v := range vals {
		z := math.Abs(v-m) / sd
		maxZ = math.Max(maxZ, z)
		if z > sigma {
			outliers++
		}
	}
	ev := domain.Evidence{
		"periods":  len(vals),
		"max_z":    round4(maxZ),
		"outliers": outliers,
	}
	if outliers > 0 {
		ev["sigma"] = sigma
	}
	return classify(outliers == 0, soft, ev)
}

// pctChangeMin fails when no period-over-period change reaches the
// minimum magnitude: a series that barely moves looks manufactured.
//
// Params: field, min_abs_pct (default 0.001).
func pctChangeMin(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	field, ok := rule.ParamString("field")
	if !ok {
		return failResult(domain.Evidence{"error": "missing param field"})
	}
	minPct := rule.ParamFloat("min_abs_pct", 0.001)

	s, ok := numericSeries(f, field)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + field})
	}
	changes := finite(pctChanges(finite(s)))
	if len(changes) == 0 {
		return warnResult(domain.Evidence{"note": "insufficient periods"})
	}
	var maxAbs float64
	for _, c := range changes {
		maxAbs = math.Max(maxAbs, math.Abs(c))
	}
	ev := domain.Evidence{
		"changes":     len(changes),
		"max_abs_pct": round4(maxAbs),
	}
	if maxAbs < minPct {
		ev["min_abs_pct"] = minPct
		return failResult(ev)
	}
	return passResult(ev)
}

// deviationFromRollingMean flags points that deviate from the trailing
// window mean by more than a fraction.
//
// Params: field, window (default 3), max_dev_pct (default 0.5), soft.
func deviationFromRollingMean(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	field, ok := rule.ParamString("field")
	if !ok {
		return failResult(domain.Evidence{"error": "missing param field"})
	}
	window := int(rule.ParamFloat("window", 3))
	if window < 2 {
		window = 2
	}
	maxDev := rule.ParamFloat("max_dev_pct", 0.5)
	soft := rule.ParamBool("soft", true)

	s, ok := numericSeries(f, field)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + field})
	}
	vals := finite(s)
	if len(vals) <= window {
		return warnResult(domain.Evidence{"note": "insufficient periods"})
	}

	violations := 0
	var worst float64
	for i := window; i < len(vals); i++ {
		m := mean(vals[i-window : i])
		if math.Abs(m) < eps {
			continue
		}
		dev := math.Abs(vals[i]-m) / math.Abs(m)
		worst = math.Max(worst, dev)
		if dev > maxDev {
			violations++
		}
	}
	ev := domain.Evidence{
		"window":     window,
		"max_dev":    round4(worst),
		"violations": violations,
	}
	if violations > 0 {
		ev["max_dev_pct"] = maxDev
	}
	return classify(violations == 0, soft, ev)
}
