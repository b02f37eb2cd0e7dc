// internal/stages/extract-data/config.go
package extractdata

import "admissions-pipeline/internal/models"

type Config struct {
	// GenericConfidenceCap bounds confidence for the best-effort "other" path.
	GenericConfidenceCap float64
}

func LoadConfig() *Config {
	return &Config{
		GenericConfidenceCap: 0.3,
	}
}

// templateFields is the full field set each extraction template can populate,
// per document type. The populated ratio is measured against it.
var templateFields = map[models.DocumentType][]string{
	models.DocumentTypeTranscript:      {"institution_name", "final_grade", "graduation_date", "student_number", "degree_type"},
	models.DocumentTypeQualification:   {"qualification_type", "overall_grade", "graduation_year", "school_name", "candidate_number"},
	models.DocumentTypeWorkCertificate: {"company_name", "duration_months", "position_title", "start_date"},
	models.DocumentTypeCV:              {"email", "phone", "name"},
	models.DocumentTypeOther:           {"dates", "institutions", "possible_grade"},
}

// criticalFields boost extraction confidence when present, per document type.
var criticalFields = map[models.DocumentType][]string{
	models.DocumentTypeTranscript:      {"institution_name", "graduation_date", "final_grade"},
	models.DocumentTypeQualification:   {"qualification_type", "overall_grade", "graduation_year"},
	models.DocumentTypeWorkCertificate: {"company_name", "duration_months"},
	models.DocumentTypeCV:              {"name", "email"},
}
