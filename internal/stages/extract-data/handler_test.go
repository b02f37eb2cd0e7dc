// internal/stages/extract-data/handler_test.go
package extractdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{GenericConfidenceCap: 0.3}
}

func classified(filename, text string, docType models.DocumentType) models.ClassifiedDocument {
	return models.ClassifiedDocument{
		Document: models.Document{
			ID:          "DOC-test",
			Filename:    filename,
			ContentType: "application/pdf",
			Text:        text,
		},
		DocumentType: docType,
		Confidence:   0.9,
	}
}

const abiturText = `Zeugnis der Allgemeinen Hochschulreife
Gymnasium Musterstadt
Gesamtnote: 1,58
2021`

const transcriptText = `Universität Musterstadt
Bachelor of Science
Final Grade: 1.7
Graduation Date: 2024-07-15
Student Number: 1234567`

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_AbiturProfile(t *testing.T) {
	handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{
		TargetProgram: "Finanzmanagement",
		Entity:        "DE",
		Classified: []models.ClassifiedDocument{
			classified("zeugnis.pdf", abiturText, models.DocumentTypeQualification),
			classified("transcript.pdf", transcriptText, models.DocumentTypeTranscript),
		},
	})

	require.NoError(t, err)
	profile := output.Profile

	assert.Equal(t, "Finanzmanagement", profile.TargetProgram)
	assert.Equal(t, "DE", profile.Entity)

	require.NotNil(t, profile.QualificationType)
	assert.Equal(t, "abitur", *profile.QualificationType)

	// The better (lower) grade across qualifications wins the slot.
	require.NotNil(t, profile.NormalizedGrade)
	assert.InDelta(t, 1.58, *profile.NormalizedGrade, 0.001)

	assert.Len(t, profile.Qualifications, 2)
	assert.Len(t, profile.Extractions, 2)
	assert.Empty(t, profile.MissingFields)
	assert.Equal(t, "1234567", profile.Identifiers["student_number"])
}

func TestHandler_Execute_UnparsableFieldsStayMissing(t *testing.T) {
	handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

	// Transcript with no grade anywhere: the field is absent, not an error.
	output, err := handler.Execute(context.Background(), &Input{
		TargetProgram: "Finanzmanagement",
		Entity:        "CA",
		Classified: []models.ClassifiedDocument{
			classified("transcript.pdf", "Universität Musterstadt\nBachelor of Science", models.DocumentTypeTranscript),
		},
	})

	require.NoError(t, err)
	profile := output.Profile

	assert.Nil(t, profile.NormalizedGrade)
	assert.Contains(t, profile.MissingFields, "normalized_grade")
	assert.Contains(t, profile.MissingFields, "qualification_type")
}

func TestHandler_Execute_OtherDocumentsCappedLow(t *testing.T) {
	handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{
		TargetProgram: "Finanzmanagement",
		Entity:        "DE",
		Classified: []models.ClassifiedDocument{
			classified("scan.pdf", "Gymnasium Musterstadt\nNote: 2,3\n2020-01-01", models.DocumentTypeOther),
		},
	})

	require.NoError(t, err)
	require.Len(t, output.Profile.Extractions, 1)
	assert.LessOrEqual(t, output.Profile.Extractions[0].Confidence, 0.3)
}

func TestHandler_Execute_WorkExperienceMonths(t *testing.T) {
	handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{
		TargetProgram: "Finanzmanagement",
		Entity:        "DE",
		Classified: []models.ClassifiedDocument{
			classified("arbeitszeugnis.pdf",
				"Muster GmbH\nPosition: Analyst\nemployed for 2 years and 6 months",
				models.DocumentTypeWorkCertificate),
		},
	})

	require.NoError(t, err)
	require.Len(t, output.Profile.WorkExperience, 1)
	require.NotNil(t, output.Profile.WorkExperience[0].DurationMonths)
	assert.Equal(t, 30, *output.Profile.WorkExperience[0].DurationMonths)
	assert.Equal(t, 30, output.Profile.TotalWorkExperienceMonths())
}

func TestHandler_Execute_EmptyInputStillValidates(t *testing.T) {
	handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{
		TargetProgram: "Finanzmanagement",
		Entity:        "DE",
		Classified:    []models.ClassifiedDocument{},
	})

	require.NoError(t, err)
	assert.Contains(t, output.Profile.MissingFields, "qualifications")
}

// ==========================
// Confidence Scoring Tests
// ==========================

func TestExtractionConfidence_BlendsCriticalFields(t *testing.T) {
	handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

	tests := []struct {
		name     string
		docType  models.DocumentType
		fields   map[string]interface{}
		expected float64
	}{
		{
			// 3 of 5 template fields populated, all 3 critical fields hit.
			name:    "all critical fields present",
			docType: models.DocumentTypeTranscript,
			fields: map[string]interface{}{
				"institution_name": "Universität Musterstadt",
				"graduation_date":  "2024-07-15",
				"final_grade":      1.7,
			},
			expected: 0.5*(3.0/5.0) + 0.5,
		},
		{
			name:    "one of three critical fields",
			docType: models.DocumentTypeTranscript,
			fields: map[string]interface{}{
				"institution_name": "Universität Musterstadt",
			},
			expected: 0.5*(1.0/5.0) + 0.5/3.0,
		},
		{
			name:    "every template field populated",
			docType: models.DocumentTypeTranscript,
			fields: map[string]interface{}{
				"institution_name": "Universität Musterstadt",
				"graduation_date":  "2024-07-15",
				"final_grade":      1.7,
				"student_number":   "1234567",
				"degree_type":      "Bachelor",
			},
			expected: 1.0,
		},
		{
			name:     "nothing extracted",
			docType:  models.DocumentTypeTranscript,
			fields:   map[string]interface{}{},
			expected: 0.0,
		},
		{
			// No critical set for "other": the populated ratio stands alone.
			name:    "generic path uses populated ratio",
			docType: models.DocumentTypeOther,
			fields: map[string]interface{}{
				"possible_grade": 2.3,
			},
			expected: 1.0 / 3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handler.extractionConfidence(tt.docType, tt.fields)
			assert.InDelta(t, tt.expected, got, 0.001)
		})
	}
}

// ==========================
// Template Parsing Tests
// ==========================

func TestDetectQualificationSubtype(t *testing.T) {
	assert.Equal(t, "abitur", detectQualificationSubtype("Zeugnis der Allgemeinen Hochschulreife"))
	assert.Equal(t, "a_levels", detectQualificationSubtype("GCE A-Level results"))
	assert.Equal(t, "ib", detectQualificationSubtype("International Baccalaureate Diploma"))
	assert.Equal(t, "", detectQualificationSubtype("unrelated text"))
}

func TestALevelGradeMapping(t *testing.T) {
	fields := extractQualification("A-Level Certificate\nGrades: A")
	assert.Equal(t, "a_levels", fields["qualification_type"])
	assert.InDelta(t, 1.3, fields["overall_grade"].(float64), 0.001)
}

func TestIBPointsNormalization(t *testing.T) {
	assert.InDelta(t, 1.0, normalizeIBPoints(43), 0.001)
	assert.InDelta(t, 4.0, normalizeIBPoints(24), 0.001)
	assert.InDelta(t, 2.5, normalizeIBPoints(33), 0.001)
}

func TestParseDurationMonths_DateSpanFallback(t *testing.T) {
	months, ok := parseDurationMonths("from 2022-01-01 until 2023-01-01")
	require.True(t, ok)
	assert.InDelta(t, 12, months, 1)
}
