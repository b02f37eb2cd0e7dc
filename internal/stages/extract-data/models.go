// internal/stages/extract-data/models.go
package extractdata

import "admissions-pipeline/internal/models"

type Input struct {
	TargetProgram string                      `json:"targetProgram"`
	Entity        string                      `json:"entity"`
	Classified    []models.ClassifiedDocument `json:"classified"`
}

type Output struct {
	Profile *models.ApplicantProfile `json:"profile"`
}
