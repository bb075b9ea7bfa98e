// Package domain defines the core types and interfaces for Merlin.
package domain

// Severity classifies how much a rule outcome matters.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Valid reports whether s is one of the three recognized severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// RuleDefinition is one declarative check bound to a registry formula.
// Definitions are immutable once loaded; the catalogue owns them.
type RuleDefinition struct {
	ID     string `json:"id" yaml:"id"`
	Domain string `json:"domain" yaml:"domain"`
	Title  string `json:"title" yaml:"title"`

	Severity Severity `json:"severity" yaml:"severity"`

	// Formula names the registry entry that evaluates this rule.
	Formula string `json:"formula" yaml:"formula"`

	// Table names the payload table the formula reads.
	// Empty means the payload's first table.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`

	// Params carries formula parameters (bounds, tolerances, field names).
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// Requires lists intent fields that must be present and evaluable;
	// when unsatisfied the rule yields a skipped outcome.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`

	// RequiresDomains lists the domains a cross rule reads from.
	// Empty for single-domain rules.
	RequiresDomains []string `json:"requiresDomains,omitempty" yaml:"requires_domains,omitempty"`

	// Weight is the score penalty base for non-passing outcomes.
	Weight float64 `json:"weight" yaml:"weight"`

	// MessageKey selects an insight template; falls back to the formula kind.
	MessageKey string `json:"messageKey,omitempty" yaml:"message_key,omitempty"`

	Enabled bool `json:"enabled" yaml:"enabled"`

	// SourcePath is the document this rule was loaded from, kept for
	// load-error attribution and audit output.
	SourcePath string `json:"-" yaml:"-"`
}

// Cross reports whether the rule joins data from more than one domain.
func (r *RuleDefinition) Cross() bool {
	return len(r.RequiresDomains) > 0
}

// ParamString returns a string parameter and whether it was present.
func (r *RuleDefinition) ParamString(key string) (string, bool) {
	v, ok := r.Params[key].(string)
	return v, ok && v != ""
}

// ParamFloat returns a numeric parameter, or def when absent.
// YAML decodes numbers as int or float64 depending on the literal.
func (r *RuleDefinition) ParamFloat(key string, def float64) float64 {
	switch v := r.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// ParamBool returns a boolean parameter, or def when absent.
func (r *RuleDefinition) ParamBool(key string, def bool) bool {
	if v, ok := r.Params[key].(bool); ok {
		return v
	}
	return def
}

// ParamStrings returns a string-list parameter, or nil when absent.
func (r *RuleDefinition) ParamStrings(key string) []string {
	raw, ok := r.Params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
