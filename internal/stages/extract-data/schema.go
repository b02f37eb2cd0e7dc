// internal/stages/extract-data/schema.go
package extractdata

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/models"
)

// profileSchema is the contract the assembled profile must satisfy before the
// workflow accepts the extractor output.
const profileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["targetProgram", "entity", "qualifications", "extractions"],
  "properties": {
    "targetProgram": {"type": "string", "minLength": 1},
    "entity": {"type": "string", "minLength": 1},
    "qualificationType": {"type": "string", "minLength": 1},
    "normalizedGrade": {"type": "number", "minimum": 1.0, "maximum": 6.0},
    "qualifications": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind", "fields", "confidence"],
        "properties": {
          "kind": {"enum": ["university_degree", "secondary_education"]},
          "subtype": {"type": "string"},
          "fields": {"type": "object"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    },
    "workExperience": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "company": {"type": "string"},
          "position": {"type": "string"},
          "durationMonths": {"type": "integer", "minimum": 0}
        }
      }
    },
    "extractions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["documentType", "sourceFile", "fields", "confidence"],
        "properties": {
          "documentType": {"type": "string", "minLength": 1},
          "sourceFile": {"type": "string"},
          "fields": {"type": "object"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`

var profileSchemaLoader = gojsonschema.NewStringLoader(profileSchema)

// validateProfile checks the assembled profile against the profile schema.
// A mismatch is a stage failure, not a missing-data signal.
func validateProfile(profile *models.ApplicantProfile) error {
	result, err := gojsonschema.Validate(profileSchemaLoader, gojsonschema.NewGoLoader(profile))
	if err != nil {
		return errors.NewExtractionSchemaMismatchError(fmt.Sprintf("schema validation error: %s", err))
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return errors.NewExtractionSchemaMismatchError(strings.Join(violations, "; "))
}
