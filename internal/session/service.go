// Package session orchestrates assessment sessions: payload ingestion,
// per-domain evaluation, cross-domain correlation, scoring and insight
// generation, assembled into one report.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/merlin/internal/catalog"
	"github.com/opensource-finance/merlin/internal/cross"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/engine"
	"github.com/opensource-finance/merlin/internal/ingest"
	"github.com/opensource-finance/merlin/internal/insight"
	"github.com/opensource-finance/merlin/internal/score"
)

var tracer = otel.Tracer("merlin-session")

// EngineVersion is stamped into report metadata so stored reports can be
// traced back to the code that produced them.
const EngineVersion = "1.0.0"

// Service runs the assessment pipeline. All stages read from an
// immutable catalogue snapshot, so concurrent sessions and hot reloads
// never interleave.
type Service struct {
	provider  *catalog.Provider
	validator *ingest.Validator
	evaluator *engine.Evaluator
	scorer    *score.Scorer
	insights  *insight.Generator
	registry  *Registry
	bus       domain.EventBus
	logger    *slog.Logger
}

// NewService wires the pipeline stages together. bus may be nil when no
// eventing is wanted.
func NewService(
	provider *catalog.Provider,
	validator *ingest.Validator,
	evaluator *engine.Evaluator,
	scorer *score.Scorer,
	insights *insight.Generator,
	registry *Registry,
	bus domain.EventBus,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:  provider,
		validator: validator,
		evaluator: evaluator,
		scorer:    scorer,
		insights:  insights,
		registry:  registry,
		bus:       bus,
		logger:    logger,
	}
}

// Open creates a new empty session and returns its state.
func (s *Service) Open(ctx context.Context) (*State, error) {
	st := newState(uuid.New().String())
	st.CatalogueVersion = s.provider.Current().Version()

	if err := s.registry.Save(ctx, st); err != nil {
		return nil, err
	}

	s.logger.Info("session opened",
		"session_id", st.ID,
		"catalogue_version", st.CatalogueVersion,
	)
	return st, nil
}

// Submit validates one domain payload, evaluates that domain's rules and
// stores both in the session. Submitting a domain again replaces its
// earlier payload and outcomes.
func (s *Service) Submit(ctx context.Context, sessionID string, p *domain.Payload) ([]domain.Outcome, error) {
	ctx, span := tracer.Start(ctx, "session.submit")
	defer span.End()

	if p == nil || p.Domain == "" {
		return nil, fmt.Errorf("payload domain is required")
	}
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("payload.domain", p.Domain),
	)

	st, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cat := s.provider.Current()

	ingestStart := time.Now()
	fs, err := s.validator.Resolve(p)
	if err != nil {
		return nil, err
	}
	st.IngestMs += time.Since(ingestStart).Milliseconds()

	evalStart := time.Now()
	outcomes, err := s.evaluator.EvaluateDomain(ctx, cat, fs)
	if err != nil {
		return nil, err
	}
	st.EvaluateMs += time.Since(evalStart).Milliseconds()

	st.Payloads[p.Domain] = p
	st.Outcomes[p.Domain] = outcomes
	st.CatalogueVersion = cat.Version()

	if err := s.registry.Save(ctx, st); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.TopicDomainEvaluated, map[string]any{
		"sessionId":        sessionID,
		"domain":           p.Domain,
		"catalogueVersion": cat.Version(),
		"outcomes":         len(outcomes),
	})

	s.logger.Info("domain evaluated",
		"session_id", sessionID,
		"domain", p.Domain,
		"outcomes", len(outcomes),
	)
	return outcomes, nil
}

// Finalize runs cross-domain rules over everything the session has
// accumulated, scores the combined outcomes and closes the session.
func (s *Service) Finalize(ctx context.Context, sessionID string) (*domain.Report, error) {
	ctx, span := tracer.Start(ctx, "session.finalize")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	st, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(st.Payloads) == 0 {
		return nil, fmt.Errorf("session %s has no submitted payloads", sessionID)
	}

	cat := s.provider.Current()
	stale := cat.Version() != st.CatalogueVersion

	t := timings{ingestMs: st.IngestMs, evaluateMs: st.EvaluateMs}
	start := time.Now()

	// Frames are rebuilt from the raw payloads; cached outcomes are kept
	// unless the catalogue changed underneath the session.
	store := cross.NewStore()
	for _, name := range sortedDomains(st.Payloads) {
		p := st.Payloads[name]
		ingestStart := time.Now()
		fs, err := s.validator.Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("payload for %s no longer resolves: %w", name, err)
		}
		t.ingestMs += time.Since(ingestStart).Milliseconds()

		outcomes := st.Outcomes[name]
		if stale {
			evalStart := time.Now()
			outcomes, err = s.evaluator.EvaluateDomain(ctx, cat, fs)
			if err != nil {
				return nil, err
			}
			t.evaluateMs += time.Since(evalStart).Milliseconds()
		}
		store.Put(fs, outcomes)
	}

	report, err := s.conclude(ctx, sessionID, cat, store, &t, start)
	if err != nil {
		return nil, err
	}

	if err := s.registry.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to delete finalized session",
			"session_id", sessionID,
			"error", err,
		)
	}
	return report, nil
}

// Assess runs the whole pipeline over a set of domain payloads in one
// call, without touching the session registry. Domains are evaluated in
// parallel; the report is deterministic regardless of completion order.
func (s *Service) Assess(ctx context.Context, payloads []*domain.Payload) (*domain.Report, error) {
	ctx, span := tracer.Start(ctx, "session.assess")
	defer span.End()

	if len(payloads) == 0 {
		return nil, fmt.Errorf("at least one payload is required")
	}
	seen := make(map[string]bool, len(payloads))
	for _, p := range payloads {
		if p == nil || p.Domain == "" {
			return nil, fmt.Errorf("payload domain is required")
		}
		if seen[p.Domain] {
			return nil, fmt.Errorf("duplicate payload for domain %s", p.Domain)
		}
		seen[p.Domain] = true
	}

	sessionID := uuid.New().String()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("payload.count", len(payloads)),
	)

	cat := s.provider.Current()
	start := time.Now()
	var t timings

	store := cross.NewStore()
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range payloads {
		g.Go(func() error {
			fs, err := s.validator.Resolve(p)
			if err != nil {
				return err
			}
			outcomes, err := s.evaluator.EvaluateDomain(gctx, cat, fs)
			if err != nil {
				return err
			}
			store.Put(fs, outcomes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	t.evaluateMs = time.Since(start).Milliseconds()

	return s.conclude(ctx, sessionID, cat, store, &t, start)
}

type timings struct {
	ingestMs   int64
	evaluateMs int64
	crossMs    int64
	scoreMs    int64
}

// conclude runs the shared tail of the pipeline: cross rules, scoring,
// insights, report assembly and event publication.
func (s *Service) conclude(ctx context.Context, sessionID string, cat *catalog.Catalogue, store *cross.Store, t *timings, start time.Time) (*domain.Report, error) {
	crossStart := time.Now()
	facts := store.Snapshot()
	crossOutcomes, err := s.evaluator.EvaluateCross(ctx, cat, facts)
	if err != nil {
		return nil, err
	}
	t.crossMs = time.Since(crossStart).Milliseconds()

	report := &domain.Report{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Cross:     crossOutcomes,
	}
	for _, name := range store.Domains() {
		report.Domains = append(report.Domains, domain.DomainReport{
			Domain:   name,
			Outcomes: facts.Outcomes[name],
		})
	}

	scoreStart := time.Now()
	all := report.AllOutcomes()
	report.Breakdown = s.scorer.Score(all)
	report.Insights = s.insights.Generate(all)
	t.scoreMs = time.Since(scoreStart).Milliseconds()

	var evaluated, skipped int
	for _, d := range report.Domains {
		for _, o := range d.Outcomes {
			if o.Status == domain.StatusSkipped {
				skipped++
			} else {
				evaluated++
			}
		}
	}
	var crossEvaluated int
	for _, o := range crossOutcomes {
		if o.Status != domain.StatusSkipped {
			crossEvaluated++
		}
	}

	report.Metadata = domain.ReportMetadata{
		SessionID:        sessionID,
		CatalogueVersion: cat.Version(),
		EngineVersion:    EngineVersion,
		IngestMs:         t.ingestMs,
		EvaluateMs:       t.evaluateMs,
		CrossMs:          t.crossMs,
		ScoreMs:          t.scoreMs,
		TotalMs:          time.Since(start).Milliseconds(),
		RulesEvaluated:   evaluated,
		RulesSkipped:     skipped,
		CrossEvaluated:   crossEvaluated,
	}

	topic := domain.TopicReportReady
	if report.Breakdown.Label == domain.LabelBlocked {
		topic = domain.TopicReportBlocked
	}
	s.publish(ctx, topic, report)

	s.logger.Info("report assembled",
		"session_id", sessionID,
		"score", report.Breakdown.Score,
		"label", report.Breakdown.Label,
		"domains", len(report.Domains),
		"duration_ms", report.Metadata.TotalMs,
	)
	return report, nil
}

// publish sends an event without failing the pipeline on bus errors.
func (s *Service) publish(ctx context.Context, topic string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		s.logger.Error("failed to publish event", "topic", topic, "error", err)
	}
}

// sortedDomains returns map keys in a stable order.
func sortedDomains(m map[string]*domain.Payload) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
