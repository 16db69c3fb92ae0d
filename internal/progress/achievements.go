package progress

import "github.com/MrWong99/parley/pkg/scenario"

// Achievement is a one-time award for a completed scenario.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// ScenarioID ties the award to one scenario; empty means any.
	ScenarioID string `json:"scenarioId,omitempty"`

	// MinScore is the overall score required. A zero MinScore means
	// "strictly more than zero".
	MinScore float64 `json:"minScore"`
}

// Earned reports whether the scorecard for s meets the award condition.
func (a Achievement) Earned(card scenario.Scorecard, s *scenario.Scenario) bool {
	if a.ScenarioID != "" && (s == nil || s.ID != a.ScenarioID) {
		return false
	}
	if a.MinScore == 0 {
		return card.OverallScore > 0
	}
	return card.OverallScore >= a.MinScore
}

// Achievements is the built-in award list in display order.
var Achievements = []Achievement{
	{ID: "first-steps", Name: "First Steps", Description: "Complete your first practice scenario."},
	{ID: "customer-champ", Name: "De-escalation Expert", Description: `Ace the "Unhappy Customer" scenario with a high score.`, ScenarioID: "customer-support-1", MinScore: 85},
	{ID: "interview-ace", Name: "Interview Ace", Description: "Impress the hiring manager in the job interview.", ScenarioID: "job-interview-1", MinScore: 90},
	{ID: "negotiator", Name: "Salary Sensei", Description: "Successfully negotiate a better salary.", ScenarioID: "negotiation-1", MinScore: 80},
	{ID: "feedback-guru", Name: "Feedback Guru", Description: "Handle the difficult feedback scenario with grace.", ScenarioID: "feedback-delivery-1", MinScore: 75},
	{ID: "high-scorer", Name: "High Scorer", Description: "Achieve a score of 95 or higher in any scenario.", MinScore: 95},
}
