// internal/models/document.go
package models

// DocumentType is the fixed classification vocabulary. Anything the classifier
// cannot place confidently lands in DocumentTypeOther.
type DocumentType string

const (
	DocumentTypeTranscript      DocumentType = "transcript"
	DocumentTypeQualification   DocumentType = "qualification-certificate"
	DocumentTypeCV              DocumentType = "cv"
	DocumentTypeWorkCertificate DocumentType = "work-certificate"
	DocumentTypeOther           DocumentType = "other"
)

// KnownDocumentTypes lists the classifier vocabulary in a stable order.
var KnownDocumentTypes = []DocumentType{
	DocumentTypeTranscript,
	DocumentTypeQualification,
	DocumentTypeCV,
	DocumentTypeWorkCertificate,
	DocumentTypeOther,
}

// IsKnownDocumentType reports whether t belongs to the fixed vocabulary.
func IsKnownDocumentType(t DocumentType) bool {
	for _, known := range KnownDocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Document is an uploaded admission document descriptor. Text carries the
// extracted content; PDF text-extraction mechanics live outside the pipeline.
type Document struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	Text        string `json:"text,omitempty"`
}

// ClassifiedDocument is the classifier stage output for one document.
type ClassifiedDocument struct {
	Document     Document     `json:"document"`
	DocumentType DocumentType `json:"documentType"`
	Confidence   float64      `json:"confidence"`
}
