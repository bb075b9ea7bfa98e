// Package engine evaluates a domain's catalogue rules against an
// intent-resolved payload.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/merlin/internal/catalog"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/formula"
	"github.com/opensource-finance/merlin/internal/intent"
)

// Evaluator runs single-domain rules. It holds no per-run state, so one
// evaluator serves every session concurrently.
type Evaluator struct {
	maxWorkers int
	logger     *slog.Logger
}

// NewEvaluator creates an evaluator with the given parallelism.
func NewEvaluator(maxWorkers int, logger *slog.Logger) *Evaluator {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Evaluator{maxWorkers: maxWorkers, logger: logger}
}

// EvaluateDomain runs every enabled rule for the frame set's domain
// against it. Results come back in catalogue insertion order regardless
// of evaluation parallelism. Rules whose Requires intents are missing
// yield skipped outcomes; formula faults yield fail outcomes. The run
// itself only aborts on context cancellation.
func (e *Evaluator) EvaluateDomain(ctx context.Context, c *catalog.Catalogue, fs *domain.FrameSet) ([]domain.Outcome, error) {
	rules := c.DomainRules(fs.Domain())
	if len(rules) == 0 {
		return nil, nil
	}

	outcomes := make([]domain.Outcome, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(idx int, r *domain.RuleDefinition) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[idx] = e.evaluateRule(fs, r)
		}(i, rule)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (e *Evaluator) evaluateRule(fs *domain.FrameSet, rule *domain.RuleDefinition) domain.Outcome {
	start := time.Now()

	if missing := intent.Missing(fs, rule); len(missing) > 0 {
		return domain.Skipped(rule, missing)
	}

	res := formula.Run(fs, rule)
	out := domain.Outcome{
		RuleID:     rule.ID,
		Domain:     rule.Domain,
		Title:      rule.Title,
		Severity:   rule.Severity,
		Status:     res.Status,
		Score:      res.Score,
		Evidence:   res.Evidence,
		MessageKey: rule.MessageKey,
		Formula:    rule.Formula,
		Weight:     rule.Weight,
	}
	if out.Status == domain.StatusFail || out.Status == domain.StatusWarn {
		e.logger.Debug("rule flagged",
			"rule_id", rule.ID,
			"domain", rule.Domain,
			"status", out.Status,
			"elapsed_ms", time.Since(start).Milliseconds())
	}
	return out
}

// EvaluateCross runs the catalogue's cross rules against accumulated
// session facts. Rules whose required domains have not arrived yield
// skipped outcomes with the absent domains in evidence.
func (e *Evaluator) EvaluateCross(ctx context.Context, c *catalog.Catalogue, facts *domain.FactSet) ([]domain.Outcome, error) {
	rules := c.CrossRules()
	if len(rules) == 0 {
		return nil, nil
	}

	outcomes := make([]domain.Outcome, len(rules))
	for i, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcomes[i] = e.evaluateCrossRule(facts, rule)
	}
	return outcomes, nil
}

func (e *Evaluator) evaluateCrossRule(facts *domain.FactSet, rule *domain.RuleDefinition) domain.Outcome {
	var absent []string
	for _, d := range rule.RequiresDomains {
		if !facts.HasDomain(d) {
			absent = append(absent, d)
		}
	}
	if len(absent) > 0 {
		return domain.Skipped(rule, absent)
	}

	res := formula.RunCross(facts, rule)
	return domain.Outcome{
		RuleID:     rule.ID,
		Domain:     rule.Domain,
		Title:      rule.Title,
		Severity:   rule.Severity,
		Status:     res.Status,
		Score:      res.Score,
		Evidence:   res.Evidence,
		MessageKey: rule.MessageKey,
		Formula:    rule.Formula,
		Weight:     rule.Weight,
	}
}
