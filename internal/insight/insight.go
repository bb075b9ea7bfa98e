// Package insight renders narrative explanations for non-passing
// outcomes from an external template catalogue.
package insight

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Templates holds the narrative catalogue. Lookup order for an outcome:
// message key (or rule ID), then formula kind, then severity fallback.
type Templates struct {
	// Rules maps a rule ID or message key to a template body.
	Rules map[string]string `yaml:"rules"`

	// Formulas maps a formula kind to a template body.
	Formulas map[string]string `yaml:"formulas"`

	// Severities is the last-resort fallback per severity.
	Severities map[string]string `yaml:"severities"`
}

// DefaultTemplates is used when no template document is configured.
// Deliberately generic; deployments ship their own catalogue.
func DefaultTemplates() *Templates {
	return &Templates{
		Severities: map[string]string{
			"critical": "{{.Title}} failed a critical check.",
			"warning":  "{{.Title}} looks inconsistent and needs review.",
			"info":     "{{.Title}} was flagged for information.",
		},
	}
}

// LoadTemplates reads a template document and parses every body so
// malformed templates surface at load time, not render time.
func LoadTemplates(path string) (*Templates, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}
	var t Templates
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%s: invalid yaml: %w", path, err)
	}
	for section, bodies := range map[string]map[string]string{
		"rules": t.Rules, "formulas": t.Formulas, "severities": t.Severities,
	} {
		for key, body := range bodies {
			if _, err := parse(body); err != nil {
				return nil, fmt.Errorf("%s: %s.%s: %w", path, section, key, err)
			}
		}
	}
	return &t, nil
}

func parse(body string) (*template.Template, error) {
	return template.New("insight").Option("missingkey=zero").Parse(body)
}

// context is what a template body sees.
type context struct {
	RuleID   string
	Title    string
	Domain   string
	Severity string
	Status   string
	Formula  string
	Evidence domain.Evidence
}

// Generator renders insights for every non-passing outcome. Rendering
// never fails a report: a broken or missing template degrades to the
// outcome title.
type Generator struct {
	templates *Templates
	logger    *slog.Logger
}

// NewGenerator wraps a template catalogue.
func NewGenerator(templates *Templates, logger *slog.Logger) *Generator {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Generator{templates: templates, logger: logger}
}

// Generate renders one insight per fail or warn outcome, in outcome
// order. Pass and skipped outcomes produce nothing.
func (g *Generator) Generate(outcomes []domain.Outcome) []domain.Insight {
	var insights []domain.Insight
	for i := range outcomes {
		out := &outcomes[i]
		if out.Status != domain.StatusFail && out.Status != domain.StatusWarn {
			continue
		}
		insights = append(insights, domain.Insight{
			RuleID:   out.RuleID,
			Severity: out.Severity,
			Text:     g.render(out),
			Evidence: out.Evidence,
		})
	}
	return insights
}

func (g *Generator) render(out *domain.Outcome) string {
	body, ok := g.lookup(out)
	if !ok {
		return out.Title
	}
	tpl, err := parse(body)
	if err != nil {
		g.logger.Warn("invalid insight template", "rule_id", out.RuleID, "error", err)
		return out.Title
	}
	var sb strings.Builder
	err = tpl.Execute(&sb, context{
		RuleID:   out.RuleID,
		Title:    out.Title,
		Domain:   out.Domain,
		Severity: string(out.Severity),
		Status:   string(out.Status),
		Formula:  out.Formula,
		Evidence: out.Evidence,
	})
	if err != nil {
		g.logger.Warn("insight template render failed", "rule_id", out.RuleID, "error", err)
		return out.Title
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return out.Title
	}
	return text
}

func (g *Generator) lookup(out *domain.Outcome) (string, bool) {
	key := out.MessageKey
	if key == "" {
		key = out.RuleID
	}
	if body, ok := g.templates.Rules[key]; ok {
		return body, true
	}
	if body, ok := g.templates.Rules[out.RuleID]; ok {
		return body, true
	}
	if body, ok := g.templates.Formulas[out.Formula]; ok {
		return body, true
	}
	body, ok := g.templates.Severities[string(out.Severity)]
	return body, ok
}
