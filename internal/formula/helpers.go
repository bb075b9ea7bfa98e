package formula

import (
	"math"

	"github.com/opensource-finance/merlin/internal/domain"
)

const eps = 1e-9

func round4(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*10000) / 10000
}

// finite filters out NaN and infinities.
func finite(s domain.Series) domain.Series {
	out := make(domain.Series, 0, len(s))
	for _, v := range s {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func sum(s domain.Series) float64 {
	var t float64
	for _, v := range s {
		t += v
	}
	return t
}

func mean(s domain.Series) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return sum(s) / float64(len(s))
}

// stddev is the population standard deviation.
func stddev(s domain.Series) float64 {
	if len(s) < 2 {
		return 0
	}
	m := mean(s)
	var ss float64
	for _, v := range s {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(s)))
}

// pearson returns the correlation coefficient, or NaN when either
// series is constant or the lengths disagree.
func pearson(a, b domain.Series) float64 {
	n := min(len(a), len(b))
	if n < 2 {
		return math.NaN()
	}
	a, b = a[:n], b[:n]
	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va < eps || vb < eps {
		return math.NaN()
	}
	return cov / math.Sqrt(va*vb)
}

// pctChanges returns period-over-period fractional changes. A change
// against a near-zero base is reported as NaN rather than exploding.
func pctChanges(s domain.Series) domain.Series {
	if len(s) < 2 {
		return nil
	}
	out := make(domain.Series, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		base := math.Abs(s[i-1])
		if base < eps {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, (s[i]-s[i-1])/base)
	}
	return out
}

// numericSeries loads a named column as a cleaned numeric series.
func numericSeries(f *domain.Frame, field string) (domain.Series, bool) {
	s, ok := f.Numeric(field)
	if !ok {
		return nil, false
	}
	return s, true
}

// resolveFrame picks the frame a rule's table parameter points at.
func resolveFrame(fs *domain.FrameSet, rule *domain.RuleDefinition) (*domain.Frame, bool) {
	return fs.Frame(rule.Table)
}
