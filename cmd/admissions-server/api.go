// cmd/admissions-server/api.go
package main

import (
	"encoding/json"
	"net/http"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/models"
	"admissions-pipeline/internal/ruleindex"
	"admissions-pipeline/internal/workflow"
)

// apiServer exposes the orchestrator operations over HTTP. Documents arrive
// as extracted text; upload parsing happens upstream of this service.
type apiServer struct {
	orch   *workflow.Orchestrator
	index  *ruleindex.Index
	logger logger.Logger
}

func newAPIServer(orch *workflow.Orchestrator, index *ruleindex.Index, log logger.Logger) *apiServer {
	return &apiServer{
		orch:   orch,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /applications", s.handleSubmit)
	mux.HandleFunc("GET /applications", s.handleList)
	mux.HandleFunc("GET /applications/{id}", s.handleStatus)
	mux.HandleFunc("POST /rules/query", s.handleQueryRules)
	mux.HandleFunc("POST /rules/rebuild", s.handleRebuild)
	return mux
}

type submitBody struct {
	ApplicantID   string            `json:"applicantId"`
	TargetProgram string            `json:"targetProgram"`
	Entity        string            `json:"entity"`
	Documents     []models.Document `json:"documents"`
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, errors.NewValidationError("malformed request body"))
		return
	}

	id, err := s.orch.Submit(r.Context(), workflow.SubmitRequest{
		ApplicantID:   body.ApplicantID,
		TargetProgram: body.TargetProgram,
		Entity:        body.Entity,
		Files:         body.Documents,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"applicationId": id})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orch.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.orch.ListApplications(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"applications": summaries})
}

type queryRulesBody struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

func (s *apiServer) handleQueryRules(w http.ResponseWriter, r *http.Request) {
	var body queryRulesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, errors.NewValidationError("malformed request body"))
		return
	}

	matches, err := s.orch.QueryRules(r.Context(), body.Question, body.K)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"matches": matches})
}

func (s *apiServer) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var book ruleindex.Rulebook
	if err := json.NewDecoder(r.Body).Decode(&book); err != nil {
		s.writeError(w, errors.NewValidationError("malformed rulebook body"))
		return
	}

	if err := s.index.Rebuild(r.Context(), book); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("response encoding failed", nil)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	stdErr := errors.AsStandardError(err)

	code := http.StatusInternalServerError
	switch {
	case errors.IsValidation(err):
		code = http.StatusBadRequest
	case errors.IsNotFound(err):
		code = http.StatusNotFound
	case stdErr.Code == errors.ErrCodeDuplicateApplication:
		code = http.StatusConflict
	case stdErr.Code == errors.ErrCodeIndexNotReady:
		code = http.StatusConflict
	}

	s.writeJSON(w, code, map[string]interface{}{
		"error":   string(stdErr.Code),
		"message": stdErr.Message,
		"details": stdErr.Details,
	})
}
