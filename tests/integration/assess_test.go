//go:build integration
// +build integration

// Package integration exercises the complete assessment pipeline against
// the rule catalogue, schemas and scoring configuration shipped in the
// repository, exactly as `merlin serve` would load them.
//
// Run with: go test -tags=integration -v ./tests/integration/...
package integration

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/catalog"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/engine"
	"github.com/opensource-finance/merlin/internal/ingest"
	"github.com/opensource-finance/merlin/internal/insight"
	"github.com/opensource-finance/merlin/internal/score"
	"github.com/opensource-finance/merlin/internal/session"
)

func newShippedService(t *testing.T) *session.Service {
	t.Helper()

	provider, err := catalog.NewProvider(func() (*catalog.Catalogue, error) {
		return catalog.LoadDir("../../rules")
	})
	if err != nil {
		t.Fatalf("shipped rule catalogue failed to load: %v", err)
	}

	schemas, err := ingest.LoadSchemas("../../schemas")
	if err != nil {
		t.Fatalf("shipped schemas failed to load: %v", err)
	}

	weights, err := score.LoadWeights("../../config/weights.yaml")
	if err != nil {
		t.Fatalf("shipped weights failed to load: %v", err)
	}

	templates, err := insight.LoadTemplates("../../config/insight_templates.yaml")
	if err != nil {
		t.Fatalf("shipped insight templates failed to load: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return session.NewService(
		provider,
		ingest.NewValidator(schemas),
		engine.NewEvaluator(8, logger),
		score.NewScorer(weights),
		insight.NewGenerator(templates, logger),
		session.NewRegistry(cache.NewLRUStore(16), time.Minute),
		nil,
		logger,
	)
}

func cleanPayloads() []*domain.Payload {
	pnl := []domain.Row{}
	hr := []domain.Row{}
	hc := 80.0
	for i, period := range []string{"2024-01", "2024-02", "2024-03", "2024-04", "2024-05", "2024-06"} {
		rev := 100000.0 + float64(i)*2500
		pnl = append(pnl, domain.Row{
			"period":           period,
			"revenue":          rev,
			"product_revenue":  rev * 0.7,
			"services_revenue": rev * 0.3,
			"gross_profit":     rev * 0.55,
		})
		hires, exits := 4.0, 2.0
		if i > 0 {
			hc += hires - exits
		}
		hr = append(hr, domain.Row{
			"period":    period,
			"headcount": hc,
			"hires":     hires,
			"exits":     exits,
		})
	}
	return []*domain.Payload{
		{Domain: "cfo", Tables: []domain.Table{{Name: "pnl", Rows: pnl}}},
		{Domain: "chro", Tables: []domain.Table{{Name: "hr", Rows: hr}}},
	}
}

func TestShippedCatalogueCleanData(t *testing.T) {
	svc := newShippedService(t)

	report, err := svc.Assess(context.Background(), cleanPayloads())
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	if report.Breakdown.Vetoed {
		t.Errorf("clean data must not be vetoed: %v", report.Breakdown.VetoRuleIDs)
	}
	if report.Breakdown.Label != domain.LabelAuthentic {
		t.Errorf("expected %q for clean data, got %q (score %v)",
			domain.LabelAuthentic, report.Breakdown.Label, report.Breakdown.Score)
	}

	for _, o := range report.AllOutcomes() {
		if o.Status == domain.StatusFail {
			t.Errorf("unexpected failure on clean data: %s (%v)", o.RuleID, o.Evidence)
		}
	}
}

func TestShippedCatalogueFlatHeadcountWarns(t *testing.T) {
	svc := newShippedService(t)

	payloads := cleanPayloads()
	// Freeze headcount across every period, with hires and exits
	// balanced so the stock/flow identity still reconciles.
	for i := range payloads[1].Tables[0].Rows {
		payloads[1].Tables[0].Rows[i]["headcount"] = 80.0
		payloads[1].Tables[0].Rows[i]["hires"] = 2.0
		payloads[1].Tables[0].Rows[i]["exits"] = 2.0
	}

	report, err := svc.Assess(context.Background(), payloads)
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	if report.Breakdown.Vetoed {
		t.Errorf("flat headcount must not veto: %v", report.Breakdown.VetoRuleIDs)
	}

	var warned bool
	for _, o := range report.AllOutcomes() {
		if o.RuleID == "chro-headcount-flatline" {
			if o.Status != domain.StatusWarn {
				t.Errorf("chro-headcount-flatline = %s, want warn (evidence %v)", o.Status, o.Evidence)
			}
			warned = true
		}
	}
	if !warned {
		t.Error("expected a chro-headcount-flatline outcome")
	}
}

func TestShippedCatalogueFabricatedData(t *testing.T) {
	svc := newShippedService(t)

	payloads := cleanPayloads()
	// Break the segment reconciliation in every period.
	for i := range payloads[0].Tables[0].Rows {
		payloads[0].Tables[0].Rows[i]["product_revenue"] = 1.0
	}

	report, err := svc.Assess(context.Background(), payloads)
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	if !report.Breakdown.Vetoed {
		t.Fatal("broken reconciliation must veto the report")
	}
	if report.Breakdown.Label != domain.LabelBlocked {
		t.Errorf("expected %q, got %q", domain.LabelBlocked, report.Breakdown.Label)
	}

	var found bool
	for _, in := range report.Insights {
		if in.RuleID == "cfo-revenue-reconciliation" {
			found = true
			if in.Text == "" {
				t.Error("insight text should not be empty")
			}
		}
	}
	if !found {
		t.Error("expected an insight for the reconciliation failure")
	}
}

func TestShippedCatalogueSchemaRejection(t *testing.T) {
	svc := newShippedService(t)

	payloads := cleanPayloads()
	payloads[0].Tables[0].Rows[2]["revenue"] = -500.0

	_, err := svc.Assess(context.Background(), payloads)
	if err == nil {
		t.Fatal("negative revenue must be rejected by the cfo schema")
	}
	var ve *ingest.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if ve.Domain != "cfo" {
		t.Errorf("expected cfo validation error, got %s", ve.Domain)
	}
}
