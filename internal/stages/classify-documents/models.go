// internal/stages/classify-documents/models.go
package classifydocuments

import "admissions-pipeline/internal/models"

type Input struct {
	Documents []models.Document `json:"documents"`
}

// Output carries one label + confidence per input document.
type Output struct {
	Classified []models.ClassifiedDocument `json:"classified"`
}
