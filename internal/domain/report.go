package domain

import "time"

// Labels surfaced to the caller. Breakpoints between them come from the
// scoring configuration; the only hard-coded path is the critical veto.
const (
	LabelAuthentic = "Authentic enough"
	LabelAttention = "Needs attention"
	LabelBlocked   = "Blocked"
)

// Deduction records one non-passing outcome's contribution to the score.
type Deduction struct {
	RuleID   string   `json:"ruleId"`
	Domain   string   `json:"domain"`
	Severity Severity `json:"severity"`
	Status   Status   `json:"status"`
	Penalty  float64  `json:"penalty"`
}

// ScoreBreakdown is the aggregated verdict over all outcomes.
type ScoreBreakdown struct {
	Score      float64     `json:"score"`
	Label      string      `json:"label"`
	Deductions []Deduction `json:"deductions,omitempty"`

	// Vetoed is set when a critical failure forced the Blocked label
	// regardless of the numeric score.
	Vetoed bool `json:"vetoed"`

	// VetoRuleIDs lists the critical failures behind the veto.
	VetoRuleIDs []string `json:"vetoRuleIds,omitempty"`
}

// Insight is a rendered narrative explanation for one non-passing outcome.
type Insight struct {
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
	Evidence Evidence `json:"evidence,omitempty"`
}

// DomainReport groups one domain's outcomes, including skipped ones so
// catalogue coverage stays auditable.
type DomainReport struct {
	Domain   string    `json:"domain"`
	Outcomes []Outcome `json:"outcomes"`
}

// ReportMetadata carries processing information for audit and debugging.
type ReportMetadata struct {
	SessionID        string `json:"sessionId"`
	CatalogueVersion string `json:"catalogueVersion"`
	EngineVersion    string `json:"engineVersion"`
	IngestMs         int64  `json:"ingestMs"`
	EvaluateMs       int64  `json:"evaluateMs"`
	CrossMs          int64  `json:"crossMs"`
	ScoreMs          int64  `json:"scoreMs"`
	TotalMs          int64  `json:"totalMs"`
	RulesEvaluated   int    `json:"rulesEvaluated"`
	RulesSkipped     int    `json:"rulesSkipped"`
	CrossEvaluated   int    `json:"crossEvaluated"`
}

// Report is the complete structured result of one assessment session.
// The caller always receives either a full report or a structured
// load/validation error, never a partial result.
type Report struct {
	SessionID string         `json:"sessionId"`
	Timestamp time.Time      `json:"timestamp"`
	Domains   []DomainReport `json:"domains"`
	Cross     []Outcome      `json:"cross"`
	Breakdown ScoreBreakdown `json:"breakdown"`
	Insights  []Insight      `json:"insights"`
	Metadata  ReportMetadata `json:"metadata"`
}

// AllOutcomes returns every outcome in report order: domains first, in
// the order they appear, then cross outcomes.
func (r *Report) AllOutcomes() []Outcome {
	var out []Outcome
	for _, d := range r.Domains {
		out = append(out, d.Outcomes...)
	}
	out = append(out, r.Cross...)
	return out
}
