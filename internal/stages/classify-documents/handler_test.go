// internal/stages/classify-documents/handler_test.go
package classifydocuments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{ConfidenceThreshold: 0.5}
}

func doc(filename, text string) models.Document {
	return models.Document{
		ID:          "DOC-test",
		Filename:    filename,
		ContentType: "application/pdf",
		Text:        text,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_LabelsDocuments(t *testing.T) {
	tests := []struct {
		name          string
		document      models.Document
		expectedLabel models.DocumentType
	}{
		{
			name:          "transcript by filename and content",
			document:      doc("transcript_bachelor.pdf", "Academic record\nSemester 1: 30 credits, GPA 1.7"),
			expectedLabel: models.DocumentTypeTranscript,
		},
		{
			name:          "abitur certificate",
			document:      doc("zeugnis.pdf", "Zeugnis der Allgemeinen Hochschulreife\nAbitur Gesamtnote: 1,58"),
			expectedLabel: models.DocumentTypeQualification,
		},
		{
			name:          "a-level certificate",
			document:      doc("a-level-results.pdf", "GCE A-Level Certificate\nGrades: A"),
			expectedLabel: models.DocumentTypeQualification,
		},
		{
			name:          "cv by filename",
			document:      doc("lebenslauf.pdf", "Curriculum Vitae\nSkills: Go, SQL\nLanguages: German, English"),
			expectedLabel: models.DocumentTypeCV,
		},
		{
			name:          "work certificate",
			document:      doc("arbeitszeugnis.pdf", "Arbeitszeugnis\nPosition held: Software Engineer"),
			expectedLabel: models.DocumentTypeWorkCertificate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

			output, err := handler.Execute(context.Background(), &Input{
				Documents: []models.Document{tt.document},
			})

			require.NoError(t, err)
			require.Len(t, output.Classified, 1)
			assert.Equal(t, tt.expectedLabel, output.Classified[0].DocumentType)
			assert.GreaterOrEqual(t, output.Classified[0].Confidence, 0.5)
		})
	}
}

func TestHandler_Execute_UnrecognizedFallsBackToOther(t *testing.T) {
	handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{
		Documents: []models.Document{
			doc("transcript.pdf", "Academic record, semester credits, GPA"),
			doc("scan0001.pdf", "unreadable noise with no vocabulary overlap"),
		},
	})

	require.NoError(t, err)
	require.Len(t, output.Classified, 2)

	// The recognizable document keeps its label; the unrecognized one is
	// routed to "other" instead of failing the stage.
	assert.Equal(t, models.DocumentTypeTranscript, output.Classified[0].DocumentType)
	assert.Equal(t, models.DocumentTypeOther, output.Classified[1].DocumentType)
	assert.Less(t, output.Classified[1].Confidence, 0.5)
}

func TestHandler_Execute_AllLowConfidenceFails(t *testing.T) {
	handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{
		Documents: []models.Document{
			doc("scan1.pdf", "noise"),
			doc("scan2.pdf", "more noise"),
		},
	})

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeClassificationLowConfidence, errors.Code(err))
}

func TestHandler_Execute_EmptyTextStillClassifiesByFilename(t *testing.T) {
	handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{
		Documents: []models.Document{doc("abitur_zeugnis.pdf", "")},
	})

	require.NoError(t, err)
	assert.Equal(t, models.DocumentTypeQualification, output.Classified[0].DocumentType)
}

func TestHandler_Execute_CancelledContext(t *testing.T) {
	handler := NewHandler(createTestConfig(), logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := handler.Execute(ctx, &Input{Documents: []models.Document{doc("transcript.pdf", "credits")}})

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStageTimeout, errors.Code(err))
}
