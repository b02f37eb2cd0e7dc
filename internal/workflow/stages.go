// internal/workflow/stages.go
package workflow

import (
	"context"

	"admissions-pipeline/internal/models"
	"admissions-pipeline/internal/ruleindex"
)

// The orchestrator drives three typed stage capabilities. Each one may fail or
// report low confidence; any reasoning backend can stand behind these
// contracts.

// Classifier labels uploaded documents from the fixed vocabulary.
type Classifier interface {
	Classify(ctx context.Context, docs []models.Document) ([]models.ClassifiedDocument, error)
}

// Extractor builds the structured applicant profile from classified documents.
type Extractor interface {
	Extract(ctx context.Context, targetProgram, entity string, classified []models.ClassifiedDocument) (*models.ApplicantProfile, error)
}

// DecisionMaker produces the cited admission decision for a profile.
type DecisionMaker interface {
	Decide(ctx context.Context, classified []models.ClassifiedDocument, profile *models.ApplicantProfile) (*models.Decision, error)
}

// RuleQuerier serves rulebook similarity queries independent of any
// application.
type RuleQuerier interface {
	Query(ctx context.Context, text string, k int) ([]ruleindex.ScoredChunk, error)
}
