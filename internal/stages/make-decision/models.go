// internal/stages/make-decision/models.go
package makedecision

import "admissions-pipeline/internal/models"

type Input struct {
	Classified []models.ClassifiedDocument `json:"classified"`
	Profile    *models.ApplicantProfile    `json:"profile"`
}

type Output struct {
	Decision *models.Decision `json:"decision"`
}

// RuleVerdict is one interpreter judgement of a rule against a profile.
type RuleVerdict struct {
	Outcome    models.RuleOutcome `json:"outcome"`
	Reasoning  string             `json:"reasoning"`
	Confidence float64            `json:"confidence"`
}
