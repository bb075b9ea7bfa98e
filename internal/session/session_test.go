package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/merlin/internal/bus"
	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/catalog"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/engine"
	"github.com/opensource-finance/merlin/internal/ingest"
	"github.com/opensource-finance/merlin/internal/insight"
	"github.com/opensource-finance/merlin/internal/score"
)

const balanceRule = `id: cfo-balance-identity
domain: cfo
title: Balance sheet identity holds
severity: critical
formula: equation
table: balance_sheet
params:
  left: assets
  right: [liabilities, equity]
  mode: abs
  tolerance: 0.5
weight: 10
`

const flatlineRule = `id: cfo-revenue-flatline
domain: cfo
title: Revenue shows natural variation
severity: warning
formula: flatline
table: pnl
params:
  field: revenue_like
  min_consecutive: 3
requires: [revenue_like]
weight: 10
`

const attritionOutputRule = `id: cross-attrition-output
domain: cross
title: Rising exits with falling output
severity: critical
formula: cross_correlation_sign
requires_domains: [chro, cpo]
params:
  fail_periods: 2
  legs:
    - domain: chro
      table: hr
      field: exits
      direction: up
      threshold: 0.05
    - domain: cpo
      table: product
      field: output_units
      direction: down
      threshold: 0.02
weight: 20
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeRules(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, body := range docs {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return dir
}

func newTestService(t *testing.T, docs map[string]string) (*Service, *catalog.Provider, string) {
	t.Helper()

	dir := writeRules(t, docs)
	provider, err := catalog.NewProvider(func() (*catalog.Catalogue, error) {
		return catalog.LoadDir(dir)
	})
	if err != nil {
		t.Fatalf("failed to load catalogue: %v", err)
	}

	logger := testLogger()
	svc := NewService(
		provider,
		ingest.NewValidator(nil),
		engine.NewEvaluator(4, logger),
		score.NewScorer(score.DefaultWeights()),
		insight.NewGenerator(insight.DefaultTemplates(), logger),
		NewRegistry(cache.NewLRUStore(100), time.Minute),
		bus.NewChannelBus(16),
		logger,
	)
	return svc, provider, dir
}

func balancedCFO() *domain.Payload {
	return &domain.Payload{
		Domain: "cfo",
		Tables: []domain.Table{
			{Name: "balance_sheet", Rows: []domain.Row{
				{"period": "2024-01", "assets": 100.0, "liabilities": 60.0, "equity": 40.0},
				{"period": "2024-02", "assets": 110.0, "liabilities": 65.0, "equity": 45.0},
			}},
		},
	}
}

func brokenCFO() *domain.Payload {
	p := balancedCFO()
	p.Tables[0].Rows[1]["assets"] = 150.0
	return p
}

func risingExitsCHRO() *domain.Payload {
	return &domain.Payload{
		Domain: "chro",
		Tables: []domain.Table{
			{Name: "hr", Rows: []domain.Row{
				{"period": "2024-01", "exits": 5.0},
				{"period": "2024-02", "exits": 8.0},
				{"period": "2024-03", "exits": 12.0},
				{"period": "2024-04", "exits": 18.0},
			}},
		},
	}
}

func fallingOutputCPO() *domain.Payload {
	return &domain.Payload{
		Domain: "cpo",
		Tables: []domain.Table{
			{Name: "product", Rows: []domain.Row{
				{"period": "2024-01", "output_units": 100.0},
				{"period": "2024-02", "output_units": 95.0},
				{"period": "2024-03", "output_units": 88.0},
				{"period": "2024-04", "output_units": 80.0},
			}},
		},
	}
}

func TestAssessVetoesOnCriticalFailure(t *testing.T) {
	svc, _, _ := newTestService(t, map[string]string{"cfo/balance.yaml": balanceRule})
	ctx := context.Background()

	var blocked atomic.Bool
	_, err := svc.bus.Subscribe(ctx, domain.TopicReportBlocked, func(ctx context.Context, msg *domain.Message) error {
		blocked.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	report, err := svc.Assess(ctx, []*domain.Payload{brokenCFO()})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	if !report.Breakdown.Vetoed {
		t.Error("expected a critical failure to veto the score")
	}
	if report.Breakdown.Label != domain.LabelBlocked {
		t.Errorf("expected label %q, got %q", domain.LabelBlocked, report.Breakdown.Label)
	}
	if len(report.Breakdown.VetoRuleIDs) != 1 || report.Breakdown.VetoRuleIDs[0] != "cfo-balance-identity" {
		t.Errorf("unexpected veto rules: %v", report.Breakdown.VetoRuleIDs)
	}
	if len(report.Insights) == 0 {
		t.Error("expected an insight for the failed rule")
	}

	// Channel delivery is asynchronous.
	deadline := time.Now().Add(time.Second)
	for !blocked.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !blocked.Load() {
		t.Error("expected a report.blocked event on the bus")
	}
}

func TestAssessWarnsOnFlatRevenue(t *testing.T) {
	svc, _, _ := newTestService(t, map[string]string{
		"cfo/balance.yaml":  balanceRule,
		"cfo/flatline.yaml": flatlineRule,
	})

	p := balancedCFO()
	var rows []domain.Row
	for _, period := range []string{"2024-01", "2024-02", "2024-03", "2024-04", "2024-05", "2024-06"} {
		rows = append(rows, domain.Row{"period": period, "revenue": 5000.0})
	}
	p.Tables = append(p.Tables, domain.Table{Name: "pnl", Rows: rows})

	report, err := svc.Assess(context.Background(), []*domain.Payload{p})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	if report.Breakdown.Vetoed {
		t.Error("a warn outcome must not veto")
	}
	if report.Breakdown.Label != domain.LabelAuthentic {
		t.Errorf("expected label %q, got %q", domain.LabelAuthentic, report.Breakdown.Label)
	}
	// warning weight 10 * severity scale 1.0 * warn factor 0.4
	if report.Breakdown.Score != 96 {
		t.Errorf("expected score 96, got %v", report.Breakdown.Score)
	}
	if report.Metadata.RulesEvaluated != 2 {
		t.Errorf("expected 2 evaluated rules, got %d", report.Metadata.RulesEvaluated)
	}

	var flat *domain.Outcome
	for _, o := range report.AllOutcomes() {
		if o.RuleID == "cfo-revenue-flatline" {
			flat = &o
			break
		}
	}
	if flat == nil {
		t.Fatal("flatline outcome missing from report")
	}
	if flat.Status != domain.StatusWarn {
		t.Errorf("expected warn, got %s", flat.Status)
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t, map[string]string{"cross/attrition.yaml": attritionOutputRule})
	ctx := context.Background()

	st, err := svc.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := svc.Submit(ctx, st.ID, risingExitsCHRO()); err != nil {
		t.Fatalf("Submit(chro) failed: %v", err)
	}
	if _, err := svc.Submit(ctx, st.ID, fallingOutputCPO()); err != nil {
		t.Fatalf("Submit(cpo) failed: %v", err)
	}

	report, err := svc.Finalize(ctx, st.ID)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if len(report.Cross) != 1 {
		t.Fatalf("expected 1 cross outcome, got %d", len(report.Cross))
	}
	crossOut := report.Cross[0]
	if crossOut.Status != domain.StatusFail {
		t.Errorf("expected joint attrition/output pattern to fail, got %s", crossOut.Status)
	}
	if report.Breakdown.Label != domain.LabelBlocked {
		t.Errorf("expected Blocked from critical cross failure, got %q", report.Breakdown.Label)
	}
	if report.Metadata.CrossEvaluated != 1 {
		t.Errorf("expected 1 cross rule evaluated, got %d", report.Metadata.CrossEvaluated)
	}

	// Finalize closes the session.
	if _, err := svc.Finalize(ctx, st.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after finalize, got %v", err)
	}
}

func TestSessionCrossSkipsOnMissingDomain(t *testing.T) {
	svc, _, _ := newTestService(t, map[string]string{"cross/attrition.yaml": attritionOutputRule})
	ctx := context.Background()

	st, err := svc.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := svc.Submit(ctx, st.ID, risingExitsCHRO()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	report, err := svc.Finalize(ctx, st.ID)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if len(report.Cross) != 1 {
		t.Fatalf("expected 1 cross outcome, got %d", len(report.Cross))
	}
	if report.Cross[0].Status != domain.StatusSkipped {
		t.Errorf("expected skipped with cpo absent, got %s", report.Cross[0].Status)
	}
	if report.Breakdown.Label != domain.LabelAuthentic {
		t.Errorf("a skipped cross rule must not penalize, got %q", report.Breakdown.Label)
	}
}

func TestAssessIsDeterministic(t *testing.T) {
	svc, _, _ := newTestService(t, map[string]string{
		"cfo/balance.yaml":     balanceRule,
		"cross/attrition.yaml": attritionOutputRule,
	})
	ctx := context.Background()

	payloads := func() []*domain.Payload {
		return []*domain.Payload{brokenCFO(), risingExitsCHRO(), fallingOutputCPO()}
	}

	first, err := svc.Assess(ctx, payloads())
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		next, err := svc.Assess(ctx, payloads())
		if err != nil {
			t.Fatalf("Assess run %d failed: %v", i, err)
		}
		if next.Breakdown.Score != first.Breakdown.Score {
			t.Fatalf("run %d: score %v != %v", i, next.Breakdown.Score, first.Breakdown.Score)
		}
		a, b := first.AllOutcomes(), next.AllOutcomes()
		if len(a) != len(b) {
			t.Fatalf("run %d: outcome count %d != %d", i, len(b), len(a))
		}
		for j := range a {
			if a[j].RuleID != b[j].RuleID || a[j].Status != b[j].Status {
				t.Fatalf("run %d: outcome %d diverged: %s/%s vs %s/%s",
					i, j, a[j].RuleID, a[j].Status, b[j].RuleID, b[j].Status)
			}
		}
	}
}

func TestAssessRejectsDuplicateDomain(t *testing.T) {
	svc, _, _ := newTestService(t, map[string]string{"cfo/balance.yaml": balanceRule})

	_, err := svc.Assess(context.Background(), []*domain.Payload{balancedCFO(), balancedCFO()})
	if err == nil {
		t.Error("expected error for duplicate domain payloads")
	}
}

func TestFinalizeReEvaluatesAfterReload(t *testing.T) {
	svc, provider, dir := newTestService(t, map[string]string{"cfo/balance.yaml": balanceRule})
	ctx := context.Background()

	st, err := svc.Open(ctx)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	outcomes, err := svc.Submit(ctx, st.ID, brokenCFO())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if outcomes[0].Status != domain.StatusFail {
		t.Fatalf("expected fail before reload, got %s", outcomes[0].Status)
	}

	// Loosen the tolerance so the same payload passes, then hot reload.
	relaxed := `id: cfo-balance-identity
domain: cfo
title: Balance sheet identity holds
severity: critical
formula: equation
table: balance_sheet
params:
  left: assets
  right: [liabilities, equity]
  mode: abs
  tolerance: 1000
weight: 10
`
	if err := os.WriteFile(filepath.Join(dir, "cfo", "balance.yaml"), []byte(relaxed), 0o644); err != nil {
		t.Fatalf("rewrite rule: %v", err)
	}
	if _, err := provider.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	report, err := svc.Finalize(ctx, st.ID)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if report.Metadata.CatalogueVersion != provider.Current().Version() {
		t.Error("report should carry the reloaded catalogue version")
	}
	if report.Breakdown.Vetoed {
		t.Error("relaxed rule should pass after re-evaluation")
	}
	for _, o := range report.AllOutcomes() {
		if o.RuleID == "cfo-balance-identity" && o.Status != domain.StatusPass {
			t.Errorf("expected pass after reload, got %s", o.Status)
		}
	}
}
