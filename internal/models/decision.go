// internal/models/decision.go
package models

// DecisionStatus is the terminal outcome of an application.
type DecisionStatus string

const (
	DecisionApproved       DecisionStatus = "APPROVED"
	DecisionRejected       DecisionStatus = "REJECTED"
	DecisionReviewRequired DecisionStatus = "REVIEW_REQUIRED"
	DecisionMissingDocs    DecisionStatus = "MISSING_DOCS"
)

// RuleOutcome is the interpreter verdict for a single rule.
type RuleOutcome string

const (
	RuleSatisfied        RuleOutcome = "satisfied"
	RuleNotSatisfied     RuleOutcome = "not-satisfied"
	RuleInsufficientData RuleOutcome = "insufficient-data"
)

// RuleEvaluation records how one retrieved rule was judged against the profile.
type RuleEvaluation struct {
	RuleID     string      `json:"ruleId"`
	RuleText   string      `json:"ruleText"`
	Outcome    RuleOutcome `json:"outcome"`
	Reasoning  string      `json:"reasoning,omitempty"`
	Required   bool        `json:"required"`
	Confidence float64     `json:"confidence"`
}

// Citation ties decision reasoning to source rulebook text. Excerpt is taken
// verbatim from the retrieved chunk.
type Citation struct {
	ChunkID string `json:"chunkId"`
	Page    int    `json:"page"`
	Section string `json:"section,omitempty"`
	Excerpt string `json:"excerpt"`
}

// Decision is the final admission decision with traceable reasoning.
type Decision struct {
	Status           DecisionStatus   `json:"status"`
	Confidence       float64          `json:"confidence"`
	Reasoning        string           `json:"reasoning"`
	AppliedRules     []RuleEvaluation `json:"appliedRules"`
	Citations        []Citation       `json:"citations"`
	MissingDocuments []DocumentType   `json:"missingDocuments,omitempty"`
}
