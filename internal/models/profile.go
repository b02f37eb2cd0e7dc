// internal/models/profile.go
package models

// ExtractedData holds the structured fields pulled from one classified
// document. Fields that could not be parsed are absent or nil; they propagate
// to the decision stage as missing-data signals, never as errors.
type ExtractedData struct {
	DocumentType DocumentType           `json:"documentType"`
	SourceFile   string                 `json:"sourceFile"`
	Fields       map[string]interface{} `json:"fields"`
	Confidence   float64                `json:"confidence"`
}

// Qualification is one academic qualification recovered from the documents.
type Qualification struct {
	// Kind is "university_degree" or "secondary_education".
	Kind string `json:"kind"`
	// Subtype names the credential for secondary education (abitur, a_levels, ib).
	Subtype    string                 `json:"subtype,omitempty"`
	Fields     map[string]interface{} `json:"fields"`
	Confidence float64                `json:"confidence"`
}

// WorkExperience is one employment entry from a work certificate.
type WorkExperience struct {
	Company        string `json:"company,omitempty"`
	Position       string `json:"position,omitempty"`
	DurationMonths *int   `json:"durationMonths,omitempty"`
}

// ApplicantProfile is the extractor stage output: everything the decision
// stage knows about the applicant. Nil pointers mark fields that were not
// recoverable from the submitted documents.
type ApplicantProfile struct {
	TargetProgram string `json:"targetProgram"`
	Entity        string `json:"entity"`

	QualificationType *string  `json:"qualificationType,omitempty"`
	NormalizedGrade   *float64 `json:"normalizedGrade,omitempty"`

	Qualifications []Qualification  `json:"qualifications"`
	WorkExperience []WorkExperience `json:"workExperience"`
	PersonalInfo   map[string]interface{} `json:"personalInfo,omitempty"`

	Identifiers map[string]string `json:"identifiers,omitempty"`
	Dates       map[string]string `json:"dates,omitempty"`

	// MissingFields flags profile attributes the extractor could not fill.
	MissingFields []string `json:"missingFields,omitempty"`

	Extractions []ExtractedData `json:"extractions"`
}

// TotalWorkExperienceMonths sums the recoverable employment durations.
func (p *ApplicantProfile) TotalWorkExperienceMonths() int {
	total := 0
	for _, w := range p.WorkExperience {
		if w.DurationMonths != nil {
			total += *w.DurationMonths
		}
	}
	return total
}
