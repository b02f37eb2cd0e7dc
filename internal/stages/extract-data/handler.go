// internal/stages/extract-data/handler.go
package extractdata

import (
	"context"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/models"
)

const StageName = "extract-data"

// Handler implements the extractor stage: per-document template extraction
// followed by profile assembly. Templates are a reference implementation of
// the extraction capability; any other engine can stand behind the contract.
type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

// Extract satisfies the workflow Extractor contract.
func (h *Handler) Extract(ctx context.Context, targetProgram, entity string, classified []models.ClassifiedDocument) (*models.ApplicantProfile, error) {
	out, err := h.Execute(ctx, &Input{
		TargetProgram: targetProgram,
		Entity:        entity,
		Classified:    classified,
	})
	if err != nil {
		return nil, err
	}
	return out.Profile, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewStageTimeoutError(StageName)
	}

	extractions := make([]models.ExtractedData, 0, len(input.Classified))
	for _, doc := range input.Classified {
		data := h.extractOne(doc)
		h.logger.Debug("document extracted", map[string]interface{}{
			"file":       doc.Document.Filename,
			"label":      string(doc.DocumentType),
			"fields":     len(data.Fields),
			"confidence": data.Confidence,
		})
		extractions = append(extractions, data)
	}

	profile := h.buildProfile(input.TargetProgram, input.Entity, extractions)

	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	return &Output{Profile: profile}, nil
}

// extractOne runs the template matching the classifier label. Unknown labels
// take the generic path with confidence capped low.
func (h *Handler) extractOne(doc models.ClassifiedDocument) models.ExtractedData {
	var fields map[string]interface{}
	generic := false

	switch doc.DocumentType {
	case models.DocumentTypeTranscript:
		fields = extractTranscript(doc.Document.Text)
	case models.DocumentTypeQualification:
		fields = extractQualification(doc.Document.Text)
	case models.DocumentTypeWorkCertificate:
		fields = extractWorkCertificate(doc.Document.Text)
	case models.DocumentTypeCV:
		fields = extractCV(doc.Document.Text)
	default:
		fields = extractGeneric(doc.Document.Text)
		generic = true
	}

	confidence := h.extractionConfidence(doc.DocumentType, fields)
	if generic && confidence > h.config.GenericConfidenceCap {
		confidence = h.config.GenericConfidenceCap
	}

	return models.ExtractedData{
		DocumentType: doc.DocumentType,
		SourceFile:   doc.Document.Filename,
		Fields:       fields,
		Confidence:   confidence,
	}
}

// extractionConfidence blends the populated-field ratio against the template's
// full field set with the critical-field ratio, half weight each. Critical
// fields are the ones the decision stage actually reads.
func (h *Handler) extractionConfidence(docType models.DocumentType, fields map[string]interface{}) float64 {
	template := templateFields[docType]
	if len(template) == 0 {
		template = templateFields[models.DocumentTypeOther]
	}

	// Subtype extras like total_points can push the count past the template.
	populated := float64(len(fields)) / float64(len(template))
	if populated > 1.0 {
		populated = 1.0
	}

	critical := criticalFields[docType]
	if len(critical) == 0 {
		return populated
	}

	criticalHits := 0
	for _, name := range critical {
		if _, ok := fields[name]; ok {
			criticalHits++
		}
	}
	criticalRatio := float64(criticalHits) / float64(len(critical))

	return 0.5*populated + 0.5*criticalRatio
}

// buildProfile merges per-document extractions into the applicant profile the
// decision stage consumes. The best-graded qualification wins the normalized
// grade slot.
func (h *Handler) buildProfile(targetProgram, entity string, extractions []models.ExtractedData) *models.ApplicantProfile {
	profile := &models.ApplicantProfile{
		TargetProgram:  targetProgram,
		Entity:         entity,
		Qualifications: []models.Qualification{},
		WorkExperience: []models.WorkExperience{},
		Identifiers:    map[string]string{},
		Dates:          map[string]string{},
		Extractions:    extractions,
	}

	for _, ex := range extractions {
		switch ex.DocumentType {
		case models.DocumentTypeTranscript:
			q := models.Qualification{
				Kind:       "university_degree",
				Fields:     ex.Fields,
				Confidence: ex.Confidence,
			}
			profile.Qualifications = append(profile.Qualifications, q)
			h.takeGrade(profile, ex.Fields, "final_grade", "university_degree")
			copyString(ex.Fields, "student_number", profile.Identifiers)
			copyString(ex.Fields, "graduation_date", profile.Dates)

		case models.DocumentTypeQualification:
			subtype, _ := ex.Fields["qualification_type"].(string)
			q := models.Qualification{
				Kind:       "secondary_education",
				Subtype:    subtype,
				Fields:     ex.Fields,
				Confidence: ex.Confidence,
			}
			profile.Qualifications = append(profile.Qualifications, q)
			if subtype != "" && profile.QualificationType == nil {
				profile.QualificationType = &subtype
			}
			h.takeGrade(profile, ex.Fields, "overall_grade", subtype)
			copyString(ex.Fields, "candidate_number", profile.Identifiers)

		case models.DocumentTypeWorkCertificate:
			w := models.WorkExperience{}
			if company, ok := ex.Fields["company_name"].(string); ok {
				w.Company = company
			}
			if position, ok := ex.Fields["position_title"].(string); ok {
				w.Position = position
			}
			if months, ok := ex.Fields["duration_months"].(int); ok {
				w.DurationMonths = &months
			}
			profile.WorkExperience = append(profile.WorkExperience, w)

		case models.DocumentTypeCV:
			if profile.PersonalInfo == nil {
				profile.PersonalInfo = map[string]interface{}{}
			}
			for k, v := range ex.Fields {
				profile.PersonalInfo[k] = v
			}
		}
	}

	profile.MissingFields = missingProfileFields(profile)
	return profile
}

// takeGrade installs a normalized grade from fields[key], keeping the better
// (lower) grade when more than one qualification carries one.
func (h *Handler) takeGrade(profile *models.ApplicantProfile, fields map[string]interface{}, key, qualType string) {
	grade, ok := fields[key].(float64)
	if !ok {
		return
	}
	if profile.NormalizedGrade == nil || grade < *profile.NormalizedGrade {
		profile.NormalizedGrade = &grade
		if qualType != "" && qualType != "university_degree" {
			profile.QualificationType = &qualType
		}
	}
}

func missingProfileFields(profile *models.ApplicantProfile) []string {
	var missing []string
	if profile.QualificationType == nil {
		missing = append(missing, "qualification_type")
	}
	if profile.NormalizedGrade == nil {
		missing = append(missing, "normalized_grade")
	}
	if len(profile.Qualifications) == 0 {
		missing = append(missing, "qualifications")
	}
	return missing
}

func copyString(fields map[string]interface{}, key string, into map[string]string) {
	if v, ok := fields[key].(string); ok && v != "" {
		into[key] = v
	}
}
