// Package risk defines the risk assessment model shared across the pipeline.
//
// A transaction's risk is expressed as a score in [0.0, 1.0] plus a
// recommended action. The scoring provider produces the initial result;
// the escalation policy may raise it afterwards. Transactions whose final
// score crosses NotifyThreshold are flagged for administrators.
package risk

// Action is the recommended handling for a scored transaction.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionReview Action = "review"
	ActionBlock  Action = "block"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionAllow, ActionReview, ActionBlock:
		return true
	}
	return false
}

// Thresholds for risk handling.
const (
	// NotifyThreshold is the final score at and above which a
	// transaction is flagged and an admin notification is emitted.
	NotifyThreshold = 0.7

	// JurisdictionFloor is the minimum score applied when a high-risk
	// jurisdiction is involved.
	JurisdictionFloor = 0.8
)

// HighRiskCountries are jurisdictions that trigger automatic escalation,
// in the order they appear in prompt text.
var HighRiskCountries = []string{"RU", "IR", "KP", "VE", "MM"}

var highRisk = func() map[string]bool {
	m := make(map[string]bool, len(HighRiskCountries))
	for _, cc := range HighRiskCountries {
		m[cc] = true
	}
	return m
}()

// IsHighRisk reports whether a country code is in the high-risk set.
func IsHighRisk(country string) bool {
	return highRisk[country]
}

// Result is a risk assessment for a single transaction.
//
// Produced fresh per transaction by the scorer. Only the escalation
// policy mutates it afterwards (score floor, one appended factor, and a
// possible action override).
type Result struct {
	RiskScore         float64  `json:"risk_score"`
	RiskFactors       []string `json:"risk_factors"`
	Reasoning         string   `json:"reasoning"`
	RecommendedAction Action   `json:"recommended_action"`
}

// Clamp bounds a score to [0, 1].
func Clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
