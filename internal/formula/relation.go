package formula

import (
	"math"
	"regexp"
	"strings"

	"github.com/opensource-finance/merlin/internal/domain"
)

// correlationThreshold checks the Pearson correlation of two columns
// against a band. Fewer than three overlapping points soft-warns
// instead of failing.
//
// Params: left, right (fields), min_corr, max_corr.
func correlationThreshold(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	leftField, ok1 := rule.ParamString("left")
	rightField, ok2 := rule.ParamString("right")
	if !ok1 || !ok2 {
		return failResult(domain.Evidence{"error": "left and right params are required"})
	}
	minCorr := rule.ParamFloat("min_corr", -1)
	maxCorr := rule.ParamFloat("max_corr", 1)

	left, ok := numericSeries(f, leftField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + leftField})
	}
	right, ok := numericSeries(f, rightField)
	if !ok {
		return warnResult(domain.Evidence{"note": "column missing: " + rightField})
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

// duplicateValues warns when the named column subset repeats the same
// combination across rows.
//
// Params: fields ([]field).
func duplicateValues(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	fields := rule.ParamStrings("fields")
	if len(fields) == 0 {
		return failResult(domain.Evidence{"error": "missing param fields"})
	}

	cols := make([][]string, 0, len(fields))
	for _, name := range fields {
		vals, ok := f.Strings(name)
		if !ok {
			return warnResult(domain.Evidence{"note": "column missing: " + name})
		}
		cols = append(cols, vals)
	}

	seen := make(map[string]int, f.Len())
	duplicates := 0
	for i := 0; i < f.Len(); i++ {
		var sb strings.Builder
		for _, col := range cols {
			if i < len(col) {
				sb.WriteString(col[i])
			}
			sb.WriteByte('\x1f')
		}
		key := sb.String()
		seen[key]++
		if seen[key] > 1 {
			duplicates++
		}
	}
	ev := domain.Evidence{
		"rows_checked":   f.Len(),
		"duplicate_rows": duplicates,
	}
	if duplicates > 0 {
		ev["fields"] = fields
		return warnResult(ev)
	}
	return passResult(ev)
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{8,}\d`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// piiScan fails when free-text columns carry emails, phone numbers or
// SSN-shaped strings. Aggregated business data should never include
// person-level identifiers. Only cells that are raw strings are
// scanned; numeric columns render to digit runs that would false-match
// the phone pattern.
//
// Params: fields ([]field, default every text column).
func piiScan(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
	f, ok := resolveFrame(fs, rule)
	if !ok {
		return skippedResult("table not present")
	}
	fields := rule.ParamStrings("fields")
	if len(fields) == 0 {
		fields = f.Fields()
	}

	hits := 0
	scanned := 0
	kinds := map[string]int{}
	for _, name := range fields {
		vals, ok := f.TextColumn(name)
		if !ok {
			continue
		}
		scanned++
		for _, v := range vals {
			if emailPattern.MatchString(v) {
				hits++
				kinds["email"]++
			}
			if phonePattern.MatchString(v) {
				hits++
				kinds["phone"]++
			}
			if ssnPattern.MatchString(v) {
				hits++
				kinds["ssn"]++
			}
		}
	}
	ev := domain.Evidence{
		"fields_scanned": scanned,
		"hits":           hits,
	}
	if hits > 0 {
		ev["kinds"] = kinds
		return failResult(ev)
	}
	return passResult(ev)
}
