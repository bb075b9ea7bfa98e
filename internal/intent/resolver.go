package intent

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/opensource-finance/merlin/internal/domain"
)

// canon lowercases and strips spaces and underscores for tolerant
// column matching.
func canon(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "_", "")
}

// Resolve builds intent-resolved frames for every table in the payload.
// Resolution only adds alias views and synthesized columns; raw payload
// values are never rewritten.
func Resolve(p *domain.Payload) *domain.FrameSet {
	order := p.TableNames()
	frames := make(map[string]*domain.Frame, len(order))
	for _, name := range order {
		t, _ := p.Table(name)
		f := domain.FrameFromTable(p.Domain, t)
		resolveFrame(f, p.Domain)
		frames[name] = f
	}
	return domain.NewFrameSet(p.Domain, order, frames)
}

func resolveFrame(f *domain.Frame, domainName string) {
	applyAliases(f, genericAliases)
	if aliases, ok := domainAliases[domainName]; ok {
		applyAliases(f, aliases)
	}
	synthesizePeriod(f)
	synthesizeOutputPerEmployee(f)
	normalizePeriods(f)
}

// applyAliases exposes the first matching candidate column under each
// intent name. An intent column already present in the data wins.
func applyAliases(f *domain.Frame, aliases map[string][]string) {
	lookup := make(map[string]string, len(f.Fields()))
	for _, c := range f.Fields() {
		key := canon(c)
		if _, seen := lookup[key]; !seen {
			lookup[key] = c
		}
	}
	// deterministic intent order so frames come out identical run to run
	intents := make([]string, 0, len(aliases))
	for intent := range aliases {
		intents = append(intents, intent)
	}
	sort.Strings(intents)
	for _, intent := range intents {
		if f.Has(intent) {
			continue
		}
		for _, cand := range aliases[intent] {
			if src, ok := lookup[canon(cand)]; ok {
				f.AddAlias(intent, src)
				break
			}
		}
	}
}

// synthesizePeriod fabricates a period column when none resolved: the
// first column if its values are unique, else the 1-based row index.
func synthesizePeriod(f *domain.Frame) {
	if f.Has("period_like") {
		return
	}
	fields := f.Fields()
	if len(fields) > 0 {
		if vals, ok := f.Strings(fields[0]); ok {
			seen := make(map[string]bool, len(vals))
			unique := true
			for _, v := range vals {
				if seen[v] {
					unique = false
					break
				}
				seen[v] = true
			}
			if unique && len(vals) > 0 {
				col := make([]any, len(vals))
				for i, v := range vals {
					col[i] = v
				}
				f.AddColumn("period_like", col)
				return
			}
		}
	}
	col := make([]any, f.Len())
	for i := range col {
		col[i] = strconv.Itoa(i + 1)
	}
	f.AddColumn("period_like", col)
}

// synthesizeOutputPerEmployee derives revenue per head when both
// ingredients resolved but the ratio itself did not.
func synthesizeOutputPerEmployee(f *domain.Frame) {
	if f.Has("output_per_employee") {
		return
	}
	rev, okR := f.Numeric("total_revenue_like")
	hc, okH := f.Numeric("headcount_total_like")
	if !okR || !okH {
		return
	}
	n := len(rev)
	if len(hc) < n {
		n = len(hc)
	}
	col := make([]any, n)
	for i := 0; i < n; i++ {
		den := hc[i]
		if den < 1e-9 {
			den = 1e-9
		}
		col[i] = rev[i] / den
	}
	f.AddColumn("output_per_employee", col)
}

// normalizePeriods rewrites the period column into canonical YYYY-MM
// (or YYYY-MM-DD) strings so grouping and cross-domain joins line up.
func normalizePeriods(f *domain.Frame) {
	vals, ok := f.Strings("period_like")
	if !ok {
		return
	}
	col := make([]any, len(vals))
	for i, v := range vals {
		col[i] = NormalizePeriod(v)
	}
	f.AddColumn("period_normalized", col)
}

// NormalizePeriod canonicalizes one period label. Accepted shapes:
// YYYY-MM, YYYY/MM, YYYYMM, YYYYMMDD, YYYY-MM-DD, YYYY-Qn. Anything
// else is returned trimmed but untouched.
func NormalizePeriod(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "/", "-")

	upper := strings.ToUpper(s)
	if i := strings.Index(upper, "Q"); i > 0 && len(upper) >= i+2 {
		year := strings.TrimSuffix(upper[:i], "-")
		if q, err := strconv.Atoi(upper[i+1:]); err == nil && q >= 1 && q <= 4 && len(year) == 4 {
			return fmt.Sprintf("%s-%02d", year, (q-1)*3+1)
		}
	}

	digits := strings.ReplaceAll(s, "-", "")
	if isDigits(digits) {
		switch len(digits) {
		case 6: // YYYYMM
			return digits[:4] + "-" + digits[4:]
		case 8: // YYYYMMDD
			return digits[:4] + "-" + digits[4:6] + "-" + digits[6:]
		}
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Missing returns the rule's required intents that are absent or carry
// no numeric values in the frame the rule reads.
func Missing(fs *domain.FrameSet, rule *domain.RuleDefinition) []string {
	f, ok := fs.Frame(rule.Table)
	if !ok {
		return []string{"table:" + rule.Table}
	}
	var missing []string
	for _, field := range rule.Requires {
		if !f.Has(field) {
			missing = append(missing, field)
			continue
		}
		if s, ok := f.Numeric(field); !ok || s.Count() == 0 {
			// string intents (periods, channels) only need presence
			if strs, ok := f.Strings(field); ok && hasNonEmpty(strs) {
				continue
			}
			missing = append(missing, field)
		}
	}
	return missing
}

func hasNonEmpty(vals []string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}
