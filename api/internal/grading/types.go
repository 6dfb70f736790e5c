package grading

// --- RUBRIC -----------------------------------------------------------------

type RubricCriterion struct {
	QuestionRef string  `json:"question_ref,omitempty"`
	Description string  `json:"description"`
	Points      float64 `json:"points"`
}

// RubricSection: Points равен сумме баллов критериев, если хоть у одного
// критерия баллы указаны явно.
type RubricSection struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Points   float64           `json:"points"`
	Criteria []RubricCriterion `json:"criteria"`
}

// Rubric: бареме. Partial выставляется у заглушки, которую пользователь
// должен дописать руками.
type Rubric struct {
	Total    float64         `json:"total"`
	Sections []RubricSection `json:"sections"`
	Partial  bool            `json:"partial,omitempty"`
}

// --- GRADING ----------------------------------------------------------------

type GradedQuestion struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	AwardedPoints float64  `json:"awarded_points"`
	MaxPoints     float64  `json:"max_points"`
	Justification string   `json:"justification"`
	Mistakes      []string `json:"mistakes"`
}

type GradingResult struct {
	AwardedTotal      float64          `json:"awarded_total"`
	MaxTotal          float64          `json:"max_total"`
	Questions         []GradedQuestion `json:"questions"`
	ImprovementPoints []string         `json:"improvement_points"`
	Comment           string           `json:"comment"`
}
