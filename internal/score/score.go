// Package score turns rule outcomes into a bounded score and a
// human-facing label.
package score

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Weights is the externally-tuned scoring policy. Nothing in here is
// hard-coded so operations can re-tune without a deploy.
type Weights struct {
	MaxScore float64 `yaml:"max_score"`
	MinScore float64 `yaml:"min_score"`

	// SeverityScale multiplies a rule's weight per severity.
	SeverityScale map[domain.Severity]float64 `yaml:"severity_scale"`

	// WarnFactor discounts warn outcomes relative to fails.
	WarnFactor float64 `yaml:"warn_factor"`

	// Breakpoints map score ranges to labels: scores at or above
	// Authentic get the authentic label, at or above Attention the
	// needs-attention label, below that blocked.
	Breakpoints struct {
		Authentic float64 `yaml:"authentic"`
		Attention float64 `yaml:"attention"`
	} `yaml:"breakpoints"`
}

// DefaultWeights mirrors the shipped config/weights.yaml.
func DefaultWeights() *Weights {
	w := &Weights{
		MaxScore: 100,
		MinScore: 0,
		SeverityScale: map[domain.Severity]float64{
			domain.SeverityCritical: 2.0,
			domain.SeverityWarning:  1.0,
			domain.SeverityInfo:     0.5,
		},
		WarnFactor: 0.4,
	}
	w.Breakpoints.Authentic = 80
	w.Breakpoints.Attention = 50
	return w
}

// LoadWeights reads and validates a weights document.
func LoadWeights(path string) (*Weights, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	w := DefaultWeights()
	if err := yaml.Unmarshal(raw, w); err != nil {
		return nil, fmt.Errorf("%s: invalid yaml: %w", path, err)
	}
	if err := w.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

func (w *Weights) validate() error {
	if w.MaxScore <= w.MinScore {
		return fmt.Errorf("max_score must exceed min_score")
	}
	if w.WarnFactor < 0 || w.WarnFactor > 1 {
		return fmt.Errorf("warn_factor must be in [0, 1]")
	}
	if w.Breakpoints.Authentic < w.Breakpoints.Attention {
		return fmt.Errorf("authentic breakpoint must not be below attention breakpoint")
	}
	for _, sev := range []domain.Severity{domain.SeverityCritical, domain.SeverityWarning, domain.SeverityInfo} {
		if _, ok := w.SeverityScale[sev]; !ok {
			return fmt.Errorf("severity_scale missing %s", sev)
		}
	}
	return nil
}

// Scorer applies a weights policy to outcomes.
type Scorer struct {
	weights *Weights
}

// NewScorer wraps a validated weights policy.
func NewScorer(weights *Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Score walks the outcomes in the order given (catalogue order, so the
// breakdown is reproducible), deducting for every fail and warn.
// Skipped outcomes never deduct. Any critical fail vetoes the label to
// Blocked no matter the numeric score.
func (s *Scorer) Score(outcomes []domain.Outcome) domain.ScoreBreakdown {
	w := s.weights
	breakdown := domain.ScoreBreakdown{Score: w.MaxScore}

	for _, out := range outcomes {
		var penalty float64
		switch out.Status {
		case domain.StatusFail:
			penalty = out.Weight * w.SeverityScale[out.Severity]
			if out.Severity == domain.SeverityCritical {
				breakdown.Vetoed = true
				breakdown.VetoRuleIDs = append(breakdown.VetoRuleIDs, out.RuleID)
			}
		case domain.StatusWarn:
			penalty = out.Weight * w.SeverityScale[out.Severity] * w.WarnFactor
		default:
			continue
		}
		if penalty == 0 {
			continue
		}
		breakdown.Score -= penalty
		breakdown.Deductions = append(breakdown.Deductions, domain.Deduction{
			RuleID:   out.RuleID,
			Domain:   out.Domain,
			Severity: out.Severity,
			Status:   out.Status,
			Penalty:  penalty,
		})
	}

	if breakdown.Score < w.MinScore {
		breakdown.Score = w.MinScore
	}
	if breakdown.Score > w.MaxScore {
		breakdown.Score = w.MaxScore
	}
	breakdown.Label = s.label(breakdown)
	return breakdown
}

func (s *Scorer) label(b domain.ScoreBreakdown) string {
	if b.Vetoed {
		return domain.LabelBlocked
	}
	switch {
	case b.Score >= s.weights.Breakpoints.Authentic:
		return domain.LabelAuthentic
	case b.Score >= s.weights.Breakpoints.Attention:
		return domain.LabelAttention
	default:
		return domain.LabelBlocked
	}
}
