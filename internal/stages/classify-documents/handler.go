// internal/stages/classify-documents/handler.go
package classifydocuments

import (
	"context"
	"strings"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/models"
)

const StageName = "classify-documents"

// keyword vocabularies scoring each label. Filename hits weigh more than body
// hits because applicants name their uploads after the credential.
var typeKeywords = map[models.DocumentType][]string{
	models.DocumentTypeTranscript: {
		"transcript", "grade report", "academic record", "notenspiegel",
		"leistungsübersicht", "semester", "credits", "gpa", "course",
	},
	models.DocumentTypeQualification: {
		"abitur", "allgemeine hochschulreife", "hochschulreife", "a-level",
		"a level", "baccalaureate", "ib diploma", "matura",
		"zeugnis", "certificate of secondary", "apprenticeship", "ausbildung",
	},
	models.DocumentTypeCV: {
		"curriculum vitae", "resume", "lebenslauf", "cv",
		"skills", "languages", "career objective",
	},
	models.DocumentTypeWorkCertificate: {
		"arbeitszeugnis", "work certificate", "employment", "employer",
		"reference letter", "internship", "position held",
	},
}

// Handler implements the classifier stage: a keyword-scoring reference
// implementation of the classification capability. Any other engine can stand
// behind the same contract.
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

// Classify satisfies the workflow Classifier contract.
func (h *Handler) Classify(ctx context.Context, docs []models.Document) ([]models.ClassifiedDocument, error) {
	out, err := h.Execute(ctx, &Input{Documents: docs})
	if err != nil {
		return nil, err
	}
	return out.Classified, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewStageTimeoutError(StageName)
	}

	classified := make([]models.ClassifiedDocument, 0, len(input.Documents))
	confident := 0

	for _, doc := range input.Documents {
		label, confidence := h.classifyOne(doc)

		// Below-threshold and unrecognized documents default to "other"
		// instead of failing the stage.
		if confidence < h.config.ConfidenceThreshold {
			label = models.DocumentTypeOther
		} else {
			confident++
		}

		h.logger.Debug("document classified", map[string]interface{}{
			"file":       doc.Filename,
			"label":      string(label),
			"confidence": confidence,
		})

		classified = append(classified, models.ClassifiedDocument{
			Document:     doc,
			DocumentType: label,
			Confidence:   confidence,
		})
	}

	if len(classified) > 0 && confident == 0 {
		return nil, errors.NewClassificationLowConfidenceError(
			"every document fell below the classification confidence threshold")
	}

	return &Output{Classified: classified}, nil
}

// classifyOne scores the document against each label vocabulary and returns
// the best label with its confidence.
func (h *Handler) classifyOne(doc models.Document) (models.DocumentType, float64) {
	filename := strings.ToLower(doc.Filename)
	text := strings.ToLower(doc.Text)

	best := models.DocumentTypeOther
	bestScore := 0.1 // floor mirrors the fallback confidence for unreadable docs

	for _, label := range models.KnownDocumentTypes {
		keywords, ok := typeKeywords[label]
		if !ok {
			continue
		}

		score := 0.0
		for _, kw := range keywords {
			if strings.Contains(filename, kw) {
				score += 0.4
			}
			if text != "" && strings.Contains(text, kw) {
				score += 0.15
			}
		}
		if score > 0 {
			score += 0.2 // base credit for any vocabulary overlap
		}
		if score > 0.95 {
			score = 0.95
		}

		if score > bestScore {
			best = label
			bestScore = score
		}
	}

	return best, bestScore
}
