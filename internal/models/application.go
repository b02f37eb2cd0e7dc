// internal/models/application.go
package models

import "time"

// AgentLog is one append-only event log entry for an application.
type AgentLog struct {
	Timestamp time.Time              `json:"timestamp"`
	Agent     string                 `json:"agent"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ApplicationRecord is the per-application state driven through the pipeline.
// The orchestrator exclusively owns mutation; everything else reads.
type ApplicationRecord struct {
	ID            string `json:"id"`
	ApplicantID   string `json:"applicantId"`
	TargetProgram string `json:"targetProgram"`
	Entity        string `json:"entity"`

	Documents []Document `json:"documents"`

	CurrentStage Stage `json:"currentStage"`

	// Per-stage outputs, filled as each transition commits.
	Classified []ClassifiedDocument `json:"classified,omitempty"`
	Profile    *ApplicantProfile    `json:"profile,omitempty"`
	Decision   *Decision            `json:"decision,omitempty"`

	// FailedStage and ErrorDetail are set when CurrentStage is ERROR.
	FailedStage Stage  `json:"failedStage,omitempty"`
	ErrorDetail string `json:"errorDetail,omitempty"`

	Logs []AgentLog `json:"logs"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AddLog appends an event log entry. Entries are never removed or rewritten.
func (r *ApplicationRecord) AddLog(agent, action string, details map[string]interface{}) {
	r.Logs = append(r.Logs, AgentLog{
		Timestamp: time.Now().UTC(),
		Agent:     agent,
		Action:    action,
		Details:   details,
	})
}

// Clone returns a deep copy so readers never observe a record mid-mutation.
func (r *ApplicationRecord) Clone() *ApplicationRecord {
	if r == nil {
		return nil
	}
	out := *r

	out.Documents = append([]Document(nil), r.Documents...)
	out.Classified = append([]ClassifiedDocument(nil), r.Classified...)
	out.Logs = append([]AgentLog(nil), r.Logs...)

	if r.Profile != nil {
		p := *r.Profile
		p.Qualifications = append([]Qualification(nil), r.Profile.Qualifications...)
		p.WorkExperience = append([]WorkExperience(nil), r.Profile.WorkExperience...)
		p.Extractions = append([]ExtractedData(nil), r.Profile.Extractions...)
		p.MissingFields = append([]string(nil), r.Profile.MissingFields...)
		out.Profile = &p
	}
	if r.Decision != nil {
		d := *r.Decision
		d.AppliedRules = append([]RuleEvaluation(nil), r.Decision.AppliedRules...)
		d.Citations = append([]Citation(nil), r.Decision.Citations...)
		d.MissingDocuments = append([]DocumentType(nil), r.Decision.MissingDocuments...)
		out.Decision = &d
	}
	return &out
}

// ApplicationSummary is the read model for listing applications.
type ApplicationSummary struct {
	ID             string         `json:"id"`
	ApplicantID    string         `json:"applicantId"`
	TargetProgram  string         `json:"targetProgram"`
	Entity         string         `json:"entity"`
	CurrentStage   Stage          `json:"currentStage"`
	NumDocuments   int            `json:"numDocuments"`
	DecisionStatus DecisionStatus `json:"decisionStatus,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Summary projects the record onto its listing view.
func (r *ApplicationRecord) Summary() ApplicationSummary {
	s := ApplicationSummary{
		ID:            r.ID,
		ApplicantID:   r.ApplicantID,
		TargetProgram: r.TargetProgram,
		Entity:        r.Entity,
		CurrentStage:  r.CurrentStage,
		NumDocuments:  len(r.Documents),
		CreatedAt:     r.CreatedAt,
	}
	if r.Decision != nil {
		s.DecisionStatus = r.Decision.Status
	}
	return s
}
