package formula

import (
	"testing"

	"github.com/opensource-finance/merlin/internal/domain"
)

func frameSet(t *testing.T, domainName, table string, cols map[string][]any) *domain.FrameSet {
	t.Helper()
	order := make([]string, 0, len(cols))
	for name := range cols {
		order = append(order, name)
	}
	f := domain.NewFrame(domainName, table, order, cols)
	return domain.NewFrameSet(domainName, []string{table}, map[string]*domain.Frame{table: f})
}

func rule(formula string, params map[string]any) *domain.RuleDefinition {
	return &domain.RuleDefinition{
		ID:      "test-rule",
		Domain:  "finance",
		Formula: formula,
		Params:  params,
		Enabled: true,
	}
}

func TestRunUnknownFormula(t *testing.T) {
	fs := frameSet(t, "finance", "pnl", map[string][]any{"revenue": {1.0}})
	res := Run(fs, rule("no_such_formula", nil))
	if res.Status != domain.StatusFail {
		t.Errorf("expected fail for unknown formula, got %s", res.Status)
	}
}

func TestSumReconciliation(t *testing.T) {
	tests := []struct {
		name   string
		cols   map[string][]any
		params map[string]any
		want   domain.Status
	}{
		{
			name: "balanced",
			cols: map[string][]any{
				"revenue":      {100.0, 200.0},
				"product_rev":  {60.0, 120.0},
				"services_rev": {40.0, 80.0},
			},
			params: map[string]any{"total": "revenue", "parts": []any{"product_rev", "services_rev"}},
			want:   domain.StatusPass,
		},
		{
			name: "off by ten percent",
			cols: map[string][]any{
				"revenue":      {100.0},
				"product_rev":  {60.0},
				"services_rev": {50.0},
			},
			params: map[string]any{"total": "revenue", "parts": []any{"product_rev", "services_rev"}},
			want:   domain.StatusFail,
		},
		{
			name: "within loose tolerance",
			cols: map[string][]any{
				"revenue":      {100.0},
				"product_rev":  {60.0},
				"services_rev": {45.0},
			},
			params: map[string]any{"total": "revenue", "parts": []any{"product_rev", "services_rev"}, "tolerance": 0.1},
			want:   domain.StatusPass,
		},
		{
			name:   "missing column soft warns",
			cols:   map[string][]any{"revenue": {100.0}},
			params: map[string]any{"total": "revenue", "parts": []any{"product_rev"}},
			want:   domain.StatusWarn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := frameSet(t, "finance", "pnl", tt.cols)
			res := Run(fs, rule("sum_reconciliation", tt.params))
			if res.Status != tt.want {
				t.Errorf("status = %s, want %s (evidence %v)", res.Status, tt.want, res.Evidence)
			}
		})
	}
}

func TestEquationBalanceSheet(t *testing.T) {
	fs := frameSet(t, "finance", "balance_sheet", map[string][]any{
		"assets":      {500.0, 520.0},
		"liabilities": {300.0, 310.0},
		"equity":      {200.0, 150.0}, // second period off by 60
	})
	res := Run(fs, rule("equation", map[string]any{
		"left":      "assets",
		"right":     []any{"liabilities", "equity"},
		"tolerance": 0.01,
	}))
	if res.Status != domain.StatusFail {
		t.Fatalf("expected fail, got %s (evidence %v)", res.Status, res.Evidence)
	}
	if res.Score != domain.ScoreFail {
		t.Errorf("score = %v, want %v", res.Score, domain.ScoreFail)
	}
	if res.Evidence["worst_row"] != 1 {
		t.Errorf("worst_row = %v, want 1", res.Evidence["worst_row"])
	}
}

func TestValueBounds(t *testing.T) {
	tests := []struct {
		name   string
		vals   []any
		params map[string]any
		want   domain.Status
	}{
		{"inside", []any{0.2, 0.5, 0.9}, map[string]any{"field": "margin", "min": 0.0, "max": 1.0}, domain.StatusPass},
		{"above max", []any{0.2, 1.5}, map[string]any{"field": "margin", "min": 0.0, "max": 1.0}, domain.StatusFail},
		{"soft warns", []any{-0.1}, map[string]any{"field": "margin", "min": 0.0, "soft": true}, domain.StatusWarn},
		{"string coercion", []any{"45%", "50%"}, map[string]any{"field": "margin", "min": 0.0, "max": 1.0}, domain.StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := frameSet(t, "finance", "pnl", map[string][]any{"margin": tt.vals})
			res := Run(fs, rule("value_bounds", tt.params))
			if res.Status != tt.want {
				t.Errorf("status = %s, want %s (evidence %v)", res.Status, tt.want, res.Evidence)
			}
		})
	}
}

func TestNonNegative(t *testing.T) {
	fs := frameSet(t, "hr", "headcount", map[string][]any{
		"period":    {"2026-01", "2026-02"},
		"headcount": {120.0, 118.0},
		"hires":     {4.0, -2.0},
	})
	res := Run(fs, rule("non_negative", nil))
	if res.Status != domain.StatusFail {
		t.Fatalf("expected fail, got %s (evidence %v)", res.Status, res.Evidence)
	}
	if res.Evidence["negative_cells"] != 1 {
		t.Errorf("negative_cells = %v, want 1", res.Evidence["negative_cells"])
	}
}

func TestFlatlineWarnsOnIdenticalPeriods(t *testing.T) {
	fs := frameSet(t, "hr", "headcount", map[string][]any{
		"headcount": {120.0, 120.0, 120.0, 120.0, 120.0, 120.0},
	})
	res := Run(fs, rule("flatline", map[string]any{"field": "headcount"}))
	if res.Status != domain.StatusWarn {
		t.Fatalf("expected warn, got %s (evidence %v)", res.Status, res.Evidence)
	}
	if res.Score != domain.ScoreWarn {
		t.Errorf("score = %v, want %v", res.Score, domain.ScoreWarn)
	}
	if res.Evidence["longest_run"] != 6 {
		t.Errorf("longest_run = %v, want 6", res.Evidence["longest_run"])
	}
}

func TestFlatlinePassesOnVariedSeries(t *testing.T) {
	fs := frameSet(t, "hr", "headcount", map[string][]any{
		"headcount": {120.0, 122.0, 121.0, 125.0},
	})
	res := Run(fs, rule("flatline", map[string]any{"field": "headcount"}))
	if res.Status != domain.StatusPass {
		t.Errorf("expected pass, got %s (evidence %v)", res.Status, res.Evidence)
	}
}

func TestMonotonicSequence(t *testing.T) {
	tests := []struct {
		name   string
		vals   []any
		params map[string]any
		want   domain.Status
	}{
		{"strictly growing", []any{10.0, 12.0, 15.0}, map[string]any{"field": "arr"}, domain.StatusPass},
		{"regression", []any{10.0, 12.0, 8.0}, map[string]any{"field": "arr"}, domain.StatusFail},
		{"regression within allowance", []any{10.0, 12.0, 11.5}, map[string]any{"field": "arr", "max_regression": 0.05}, domain.StatusPass},
		{"non increasing", []any{10.0, 8.0, 5.0}, map[string]any{"field": "arr", "direction": "non_increasing"}, domain.StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := frameSet(t, "finance", "pnl", map[string][]any{"arr": tt.vals})
			res := Run(fs, rule("monotonic_sequence", tt.params))
			if res.Status != tt.want {
				t.Errorf("status = %s, want %s (evidence %v)", res.Status, tt.want, res.Evidence)
			}
		})
	}
}

func TestOutlierSigma(t *testing.T) {
	fs := frameSet(t, "marketing", "spend", map[string][]any{
		"spend": {100.0, 102.0, 98.0, 101.0, 99.0, 100.0, 100.0, 5000.0},
	})
	res := Run(fs, rule("outlier_sigma", map[string]any{"field": "spend", "sigma": 2.0}))
	if res.Status != domain.StatusFail {
		t.Fatalf("expected fail, got %s (evidence %v)", res.Status, res.Evidence)
	}
	if res.Evidence["outliers"] != 1 {
		t.Errorf("outliers = %v, want 1", res.Evidence["outliers"])
	}
}

func TestCorrelationThreshold(t *testing.T) {
	t.Run("strong positive passes", func(t *testing.T) {
		fs := frameSet(t, "marketing", "funnel", map[string][]any{
			"spend": {100.0, 200.0, 300.0, 400.0},
			"leads": {10.0, 21.0, 29.0, 41.0},
		})
		res := Run(fs, rule("correlation_threshold", map[string]any{
			"left": "spend", "right": "leads", "min_corr": 0.8,
		}))
		if res.Status != domain.StatusPass {
			t.Errorf("expected pass, got %s (evidence %v)", res.Status, res.Evidence)
		}
	})
	t.Run("insufficient points soft warns", func(t *testing.T) {
		fs := frameSet(t, "marketing", "funnel", map[string][]any{
			"spend": {100.0, 200.0},
			"leads": {10.0, 21.0},
		})
		res := Run(fs, rule("correlation_threshold", map[string]any{
			"left": "spend", "right": "leads", "min_corr": 0.8,
		}))
		if res.Status != domain.StatusWarn {
			t.Errorf("expected warn, got %s (evidence %v)", res.Status, res.Evidence)
		}
	})
}

func TestPIIScan(t *testing.T) {
	t.Run("EmailInFreeText", func(t *testing.T) {
		fs := frameSet(t, "hr", "notes", map[string][]any{
			"comment": {"all good", "contact jane.doe@example.com for detail"},
		})
		res := Run(fs, rule("pii_scan", nil))
		if res.Status != domain.StatusFail {
			t.Fatalf("expected fail, got %s (evidence %v)", res.Status, res.Evidence)
		}
	})

	t.Run("NumericColumnsAreNotText", func(t *testing.T) {
		// a ten-digit amount rendered to a string would look like a
		// phone number; raw numerics must never reach the patterns
		fs := frameSet(t, "product", "feedback", map[string][]any{
			"comment":        {"all good", "ship it"},
			"revenue_impact": {1234567890.0, 9876543210.0},
		})
		res := Run(fs, rule("pii_scan", nil))
		if res.Status != domain.StatusPass {
			t.Fatalf("expected pass, got %s (evidence %v)", res.Status, res.Evidence)
		}
		if got := res.Evidence["fields_scanned"]; got != 1 {
			t.Errorf("fields_scanned = %v, want 1", got)
		}
	})

	t.Run("PhoneInFreeText", func(t *testing.T) {
		fs := frameSet(t, "product", "feedback", map[string][]any{
			"comment": {"call me at +1 415 555 0100 anytime"},
		})
		res := Run(fs, rule("pii_scan", nil))
		if res.Status != domain.StatusFail {
			t.Fatalf("expected fail, got %s (evidence %v)", res.Status, res.Evidence)
		}
	})
}

func TestPeriodAlignment(t *testing.T) {
	pnl := domain.NewFrame("finance", "pnl", []string{"period", "revenue"}, map[string][]any{
		"period":  {"2026-01", "2026-02"},
		"revenue": {100.0, 110.0},
	})
	cash := domain.NewFrame("finance", "cashflow", []string{"period", "inflow"}, map[string][]any{
		"period": {"2026-01", "2026-03"},
		"inflow": {90.0, 95.0},
	})
	fs := domain.NewFrameSet("finance", []string{"pnl", "cashflow"}, map[string]*domain.Frame{
		"pnl": pnl, "cashflow": cash,
	})
	res := Run(fs, rule("period_alignment", nil))
	if res.Status != domain.StatusFail {
		t.Fatalf("expected fail, got %s (evidence %v)", res.Status, res.Evidence)
	}
	if res.Evidence["position"] != 1 {
		t.Errorf("position = %v, want 1", res.Evidence["position"])
	}
}

func TestHeadcountFlow(t *testing.T) {
	t.Run("consistent", func(t *testing.T) {
		fs := frameSet(t, "hr", "headcount", map[string][]any{
			"headcount": {100.0, 104.0, 102.0},
			"hires":     {0.0, 6.0, 1.0},
			"exits":     {0.0, 2.0, 3.0},
		})
		res := Run(fs, rule("headcount_flow", map[string]any{
			"headcount": "headcount", "hires": "hires", "exits": "exits",
		}))
		if res.Status != domain.StatusPass {
			t.Errorf("expected pass, got %s (evidence %v)", res.Status, res.Evidence)
		}
	})
	t.Run("unexplained delta", func(t *testing.T) {
		fs := frameSet(t, "hr", "headcount", map[string][]any{
			"headcount": {100.0, 120.0},
			"hires":     {0.0, 5.0},
			"exits":     {0.0, 2.0},
		})
		res := Run(fs, rule("headcount_flow", map[string]any{
			"headcount": "headcount", "hires": "hires", "exits": "exits",
		}))
		if res.Status != domain.StatusFail {
			t.Errorf("expected fail, got %s (evidence %v)", res.Status, res.Evidence)
		}
	})
}

func TestAttritionRateBounds(t *testing.T) {
	fs := frameSet(t, "hr", "headcount", map[string][]any{
		"headcount": {100.0, 100.0, 100.0},
		"exits":     {2.0, 3.0, 15.0},
	})
	res := Run(fs, rule("attrition_rate_bounds", map[string]any{
		"exits": "exits", "headcount": "headcount", "max": 0.05,
	}))
	if res.Status != domain.StatusFail {
		t.Fatalf("expected fail, got %s (evidence %v)", res.Status, res.Evidence)
	}
	if res.Evidence["violations"] != 1 {
		t.Errorf("violations = %v, want 1", res.Evidence["violations"])
	}
}

func TestDuplicateValues(t *testing.T) {
	fs := frameSet(t, "ops", "vendors", map[string][]any{
		"vendor":  {"acme", "globex", "acme"},
		"invoice": {"inv-1", "inv-2", "inv-1"},
	})
	res := Run(fs, rule("duplicate_values", map[string]any{
		"fields": []any{"vendor", "invoice"},
	}))
	if res.Status != domain.StatusWarn {
		t.Fatalf("expected warn, got %s (evidence %v)", res.Status, res.Evidence)
	}
	if res.Evidence["duplicate_rows"] != 1 {
		t.Errorf("duplicate_rows = %v, want 1", res.Evidence["duplicate_rows"])
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	registry["panicky"] = func(fs *domain.FrameSet, rule *domain.RuleDefinition) Result {
		panic("boom")
	}
	defer delete(registry, "panicky")

	fs := frameSet(t, "finance", "pnl", map[string][]any{"revenue": {1.0}})
	res := Run(fs, rule("panicky", nil))
	if res.Status != domain.StatusFail {
		t.Fatalf("expected fail after panic, got %s", res.Status)
	}
	if _, ok := res.Evidence["error"]; !ok {
		t.Error("expected error evidence after panic")
	}
}
