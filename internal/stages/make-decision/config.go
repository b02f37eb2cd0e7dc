// internal/stages/make-decision/config.go
package makedecision

import "admissions-pipeline/internal/models"

// Aggregation policies for combining per-rule verdicts.
const (
	PolicyStrictAnd  = "strict-and"
	PolicyAnyPathway = "any-pathway"
)

type Config struct {
	// ReviewThreshold routes low-confidence decisions to a human.
	ReviewThreshold float64
	// RetrievalK is how many rulebook chunks are retrieved per decision.
	RetrievalK int
	// AggregationPolicy is "strict-and" or "any-pathway".
	AggregationPolicy string
}

func LoadConfig() *Config {
	return &Config{
		ReviewThreshold:   0.8,
		RetrievalK:        5,
		AggregationPolicy: PolicyStrictAnd,
	}
}

// requiredDocuments lists the document types each legal entity demands before
// a decision may be attempted.
var requiredDocuments = map[string][]models.DocumentType{
	"DE": {models.DocumentTypeTranscript, models.DocumentTypeQualification},
	"UK": {models.DocumentTypeTranscript, models.DocumentTypeQualification},
	"CA": {models.DocumentTypeTranscript},
}

// RequiredDocuments resolves the entity's document checklist, defaulting to
// the strictest set for unknown entities.
func RequiredDocuments(entity string) []models.DocumentType {
	if docs, ok := requiredDocuments[entity]; ok {
		return docs
	}
	return requiredDocuments["DE"]
}
