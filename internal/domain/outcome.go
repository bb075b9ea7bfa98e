package domain

// Status is the classification of one rule evaluation.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarn    Status = "warn"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
)

// statusRank orders statuses worst-first for aggregation. Skipped ranks
// above pass so it never drags an aggregate down.
var statusRank = map[Status]int{
	StatusFail:    0,
	StatusWarn:    1,
	StatusPass:    2,
	StatusSkipped: 3,
}

// Worse returns the lower-ranked of two statuses.
func Worse(a, b Status) Status {
	if statusRank[a] <= statusRank[b] {
		return a
	}
	return b
}

// Fixed formula-level scores per status, carried from the source rule
// catalogue. The 0-100 report score is derived by the scorer, not here.
const (
	ScorePass = 1.0
	ScoreWarn = 0.6
	ScoreFail = 0.0
)

// StatusScore maps a status to its formula-level score.
func StatusScore(s Status) float64 {
	switch s {
	case StatusPass, StatusSkipped:
		return ScorePass
	case StatusWarn:
		return ScoreWarn
	}
	return ScoreFail
}

// Evidence holds the values a formula extracted or computed while
// classifying an outcome. Keys are formula-defined; values must be
// JSON-encodable.
type Evidence map[string]any

// Outcome is the result of evaluating one rule once. Outcomes are
// created once per evaluation pass and never overwritten; a re-run
// produces a fresh set.
type Outcome struct {
	RuleID   string   `json:"ruleId"`
	Domain   string   `json:"domain"`
	Title    string   `json:"title"`
	Severity Severity `json:"severity"`
	Status   Status   `json:"status"`
	Score    float64  `json:"score"`
	Evidence Evidence `json:"evidence,omitempty"`

	// MessageKey is carried from the rule for insight template lookup.
	MessageKey string `json:"messageKey,omitempty"`

	// Formula is the registry kind that produced this outcome, used as
	// the template fallback key.
	Formula string `json:"formula,omitempty"`

	Weight float64 `json:"weight"`
}

// Skipped builds a skipped outcome for a rule whose applicability
// predicate failed. Missing fields are recorded for coverage audit.
func Skipped(rule *RuleDefinition, missing []string) Outcome {
	ev := Evidence{}
	if len(missing) > 0 {
		ev["missing_fields"] = missing
	}
	return Outcome{
		RuleID:     rule.ID,
		Domain:     rule.Domain,
		Title:      rule.Title,
		Severity:   rule.Severity,
		Status:     StatusSkipped,
		Score:      ScorePass,
		Evidence:   ev,
		MessageKey: rule.MessageKey,
		Formula:    rule.Formula,
		Weight:     rule.Weight,
	}
}
