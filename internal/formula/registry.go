// Package formula implements the closed registry of named check
// formulas. All business math lives here; rule documents only bind
// parameters to a formula name.
package formula

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Result is a single formula evaluation outcome before it is attached
// to a rule.
type Result struct {
	Status   domain.Status
	Score    float64
	Evidence domain.Evidence
}

// Func evaluates one single-domain formula against a payload's frames.
type Func func(fs *domain.FrameSet, rule *domain.RuleDefinition) Result

// CrossFunc evaluates one cross-domain formula against the session's
// accumulated facts.
type CrossFunc func(facts *domain.FactSet, rule *domain.RuleDefinition) Result

var registry = map[string]Func{
	"sum_reconciliation":          sumReconciliation,
	"equation":                    equation,
	"ratio_bounds":                ratioBounds,
	"value_bounds":                valueBounds,
	"non_negative":                nonNegative,
	"monotonic_sequence":          monotonicSequence,
	"variance_threshold":          varianceThreshold,
	"flatline":                    flatline,
	"outlier_sigma":               outlierSigma,
	"pct_change_min":              pctChangeMin,
	"deviation_from_rolling_mean": deviationFromRollingMean,
	"correlation_threshold":       correlationThreshold,
	"duplicate_values":            duplicateValues,
	"pii_scan":                    piiScan,
	"period_alignment":            periodAlignment,
	"headcount_flow":              headcountFlow,
	"attrition_rate_bounds":       attritionRateBounds,
}

var crossRegistry = map[string]CrossFunc{
	"cross_correlation_sign":      crossCorrelationSign,
	"cross_trend_correlation":     crossTrendCorrelation,
	"cross_total_reconciliation":  crossTotalReconciliation,
	"cross_funnel_consistency":    crossFunnelConsistency,
	"cross_flow_consistency":      crossFlowConsistency,
}

// Known reports whether the named single-domain formula exists.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// KnownCross reports whether the named cross-domain formula exists.
func KnownCross(name string) bool {
	_, ok := crossRegistry[name]
	return ok
}

// Names returns all registered single-domain formula names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run evaluates a single-domain formula. A panic inside a formula is
// converted into a fail result carrying the diagnostic, never a crash.
func Run(fs *domain.FrameSet, rule *domain.RuleDefinition) (res Result) {
	fn, ok := registry[rule.Formula]
	if !ok {
		return failResult(domain.Evidence{"error": fmt.Sprintf("unknown formula %q", rule.Formula)})
	}
	defer func() {
		if r := recover(); r != nil {
			res = failResult(domain.Evidence{"error": fmt.Sprintf("formula %s panicked: %v", rule.Formula, r)})
		}
	}()
	return fn(fs, rule)
}

// RunCross evaluates a cross-domain formula with the same fault
// containment as Run.
func RunCross(facts *domain.FactSet, rule *domain.RuleDefinition) (res Result) {
	fn, ok := crossRegistry[rule.Formula]
	if !ok {
		return failResult(domain.Evidence{"error": fmt.Sprintf("unknown cross formula %q", rule.Formula)})
	}
	defer func() {
		if r := recover(); r != nil {
			res = failResult(domain.Evidence{"error": fmt.Sprintf("formula %s panicked: %v", rule.Formula, r)})
		}
	}()
	return fn(facts, rule)
}

func passResult(ev domain.Evidence) Result {
	return Result{Status: domain.StatusPass, Score: domain.ScorePass, Evidence: ev}
}

func warnResult(ev domain.Evidence) Result {
	return Result{Status: domain.StatusWarn, Score: domain.ScoreWarn, Evidence: ev}
}

func failResult(ev domain.Evidence) Result {
	return Result{Status: domain.StatusFail, Score: domain.ScoreFail, Evidence: ev}
}

func skippedResult(reason string) Result {
	return Result{Status: domain.StatusSkipped, Score: 0, Evidence: domain.Evidence{"reason": reason}}
}

// classify maps a boolean check to pass/fail, or pass/warn for
// soft-warning formulas.
func classify(ok, soft bool, ev domain.Evidence) Result {
	if ok {
		return passResult(ev)
	}
	if soft {
		return warnResult(ev)
	}
	return failResult(ev)
}
