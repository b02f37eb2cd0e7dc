// internal/workflow/orchestrator.go
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/common/metrics"
	"admissions-pipeline/internal/common/observability"
	"admissions-pipeline/internal/models"
	"admissions-pipeline/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Config bounds orchestrator concurrency and stage retry behavior.
type Config struct {
	// MaxConcurrent limits how many applications advance in parallel.
	MaxConcurrent int
	// StageTimeout is the per-stage execution deadline.
	StageTimeout time.Duration
	// MaxRetries bounds retries of a retryable backing call within one stage.
	MaxRetries int
	// RetryBackoff is the initial retry delay, doubled per attempt.
	RetryBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

// SubmitRequest carries one application submission.
type SubmitRequest struct {
	ApplicantID   string
	TargetProgram string
	Entity        string
	Files         []models.Document
}

// Status is the read-only view returned to polling callers.
type Status struct {
	ApplicationID string               `json:"applicationId"`
	CurrentStage  models.Stage         `json:"currentStage"`
	Classified    []models.ClassifiedDocument `json:"classified,omitempty"`
	Profile       *models.ApplicantProfile    `json:"profile,omitempty"`
	Decision      *models.Decision     `json:"decision,omitempty"`
	FailedStage   models.Stage         `json:"failedStage,omitempty"`
	ErrorDetail   string               `json:"errorDetail,omitempty"`
	Logs          []models.AgentLog    `json:"logs,omitempty"`
}

// RuleMatch is one query_rules hit.
type RuleMatch struct {
	ChunkText string          `json:"chunkText"`
	Citation  models.Citation `json:"citation"`
	Score     float64         `json:"score"`
}

// Orchestrator drives ApplicationRecords through the stage sequence. It is the
// exclusive writer of application state; per-application advancement is
// sequential while distinct applications advance in parallel under the
// configured worker limit.
type Orchestrator struct {
	store      store.ApplicationStore
	classifier Classifier
	extractor  Extractor
	decider    DecisionMaker
	rules      RuleQuerier

	cfg    Config
	logger logger.Logger
	obs    *observability.Observability

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewOrchestrator(
	appStore store.ApplicationStore,
	classifier Classifier,
	extractor Extractor,
	decider DecisionMaker,
	rules RuleQuerier,
	cfg Config,
	log logger.Logger,
	obs *observability.Observability,
) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		store:      appStore,
		classifier: classifier,
		extractor:  extractor,
		decider:    decider,
		rules:      rules,
		cfg:        cfg,
		logger:     log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		obs:        obs,
		sem:        make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Submit validates the request, persists the record in READY and schedules
// asynchronous advancement. It does not block beyond the initial persistence.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := validateSubmit(req); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	record := &models.ApplicationRecord{
		ID:            newApplicationID(),
		ApplicantID:   req.ApplicantID,
		TargetProgram: req.TargetProgram,
		Entity:        req.Entity,
		CurrentStage:  models.StageReady,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, f := range req.Files {
		doc := f
		if doc.ID == "" {
			doc.ID = newDocumentID()
		}
		record.Documents = append(record.Documents, doc)
	}
	record.AddLog("Orchestrator", "submit", map[string]interface{}{
		"applicantId":   req.ApplicantID,
		"targetProgram": req.TargetProgram,
		"entity":        req.Entity,
		"numDocuments":  len(record.Documents),
	})

	if err := o.store.Create(ctx, record); err != nil {
		return "", err
	}

	o.logger.Info("application submitted", map[string]interface{}{
		"applicationId": record.ID,
		"numDocuments":  len(record.Documents),
	})

	o.wg.Add(1)
	go o.advance(record.ID)

	return record.ID, nil
}

// GetStatus returns the last durable state. It never blocks on in-flight stage
// work; callers poll with backoff until CurrentStage is terminal.
func (o *Orchestrator) GetStatus(ctx context.Context, applicationID string) (*Status, error) {
	record, err := o.store.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return &Status{
		ApplicationID: record.ID,
		CurrentStage:  record.CurrentStage,
		Classified:    record.Classified,
		Profile:       record.Profile,
		Decision:      record.Decision,
		FailedStage:   record.FailedStage,
		ErrorDetail:   record.ErrorDetail,
		Logs:          record.Logs,
	}, nil
}

// ListApplications returns read-only summaries of every known application.
func (o *Orchestrator) ListApplications(ctx context.Context) ([]models.ApplicationSummary, error) {
	return o.store.List(ctx)
}

// QueryRules answers a rulebook question independent of any application.
func (o *Orchestrator) QueryRules(ctx context.Context, question string, k int) ([]RuleMatch, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.NewValidationError("question must not be empty")
	}
	hits, err := o.rules.Query(ctx, question, k)
	if err != nil {
		return nil, err
	}
	matches := make([]RuleMatch, 0, len(hits))
	for _, hit := range hits {
		matches = append(matches, RuleMatch{
			ChunkText: hit.Chunk.Text,
			Citation:  hit.Chunk.Citation(),
			Score:     hit.Score,
		})
	}
	return matches, nil
}

// Shutdown waits for in-flight applications to reach a terminal stage. Started
// stages are never cancelled; they run to completion or failure.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// advance drives one application through the remaining stage sequence.
// Serialized per application: only this goroutine mutates the record.
func (o *Orchestrator) advance(applicationID string) {
	defer o.wg.Done()

	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	metrics.ApplicationsActive.Inc()
	defer metrics.ApplicationsActive.Dec()

	ctx := context.Background()
	log := o.logger.WithFields(map[string]interface{}{"applicationId": applicationID})

	record, err := o.store.Get(ctx, applicationID)
	if err != nil {
		log.WithError(err).Error("advance aborted, record unavailable", nil)
		return
	}

	// Classification
	classified, err := runStage(o, ctx, applicationID, models.StageClassifying, func(ctx context.Context) ([]models.ClassifiedDocument, error) {
		return o.classifier.Classify(ctx, record.Documents)
	})
	if err != nil {
		o.fail(ctx, applicationID, models.StageClassifying, err, log)
		return
	}
	if err := o.commit(ctx, applicationID, models.StageClassifying, func(r *models.ApplicationRecord) {
		r.Classified = classified
		r.AddLog("DocumentClassifier", "classify_documents", map[string]interface{}{
			"numDocuments": len(classified),
		})
	}); err != nil {
		o.fail(ctx, applicationID, models.StageClassifying, err, log)
		return
	}

	// Extraction
	profile, err := runStage(o, ctx, applicationID, models.StageExtracting, func(ctx context.Context) (*models.ApplicantProfile, error) {
		return o.extractor.Extract(ctx, record.TargetProgram, record.Entity, classified)
	})
	if err != nil {
		o.fail(ctx, applicationID, models.StageExtracting, err, log)
		return
	}
	if err := o.commit(ctx, applicationID, models.StageExtracting, func(r *models.ApplicationRecord) {
		r.Profile = profile
		r.AddLog("DataExtractor", "extract_data", map[string]interface{}{
			"numExtractions": len(profile.Extractions),
			"missingFields":  profile.MissingFields,
		})
	}); err != nil {
		o.fail(ctx, applicationID, models.StageExtracting, err, log)
		return
	}

	// Decision
	decision, err := runStage(o, ctx, applicationID, models.StageDeciding, func(ctx context.Context) (*models.Decision, error) {
		return o.decider.Decide(ctx, classified, profile)
	})
	if err != nil {
		o.fail(ctx, applicationID, models.StageDeciding, err, log)
		return
	}
	if err := o.commit(ctx, applicationID, models.StageDeciding, func(r *models.ApplicationRecord) {
		r.Decision = decision
		r.AddLog("AdmissionDecision", "make_decision", map[string]interface{}{
			"status":       string(decision.Status),
			"confidence":   decision.Confidence,
			"rulesApplied": len(decision.AppliedRules),
		})
	}); err != nil {
		o.fail(ctx, applicationID, models.StageDeciding, err, log)
		return
	}

	// Finalize
	if err := o.commit(ctx, applicationID, models.StageDecisionMade, func(r *models.ApplicationRecord) {
		r.AddLog("Orchestrator", "decision_made", map[string]interface{}{
			"status": string(decision.Status),
		})
	}); err != nil {
		o.fail(ctx, applicationID, models.StageDecisionMade, err, log)
		return
	}

	metrics.DecisionsTotal.WithLabelValues(string(decision.Status)).Inc()
	log.Info("application completed", map[string]interface{}{
		"status":     string(decision.Status),
		"confidence": decision.Confidence,
	})
}

// runStage executes one stage capability under the stage timeout, retrying a
// retryable backing call a bounded number of times with exponential backoff.
// Retries must be idempotent: nothing is persisted until commit.
func runStage[T any](o *Orchestrator, ctx context.Context, applicationID string, stage models.Stage, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	stageName := strings.ToLower(string(stage))

	spanCtx := ctx
	if o.obs != nil {
		var span trace.Span
		spanCtx, span = o.obs.StartStageSpan(ctx, stageName, applicationID)
		defer span.End()
	}

	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(stageName).Observe(time.Since(start).Seconds())
		if o.obs != nil {
			o.obs.RecordStageDuration(ctx, stageName, time.Since(start))
		}
	}()

	backoff := o.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		stageCtx, cancel := context.WithTimeout(spanCtx, o.cfg.StageTimeout)
		out, err := fn(stageCtx)
		cancel()

		if err == nil {
			metrics.StagesCompleted.WithLabelValues(stageName).Inc()
			if o.obs != nil {
				o.obs.RecordStageProcessed(ctx, stageName, "completed")
			}
			return out, nil
		}

		lastErr = err
		if !errors.IsRetryable(err) {
			break
		}
		// The exhausted final attempt gets no retry announcement.
		if attempt < o.cfg.MaxRetries {
			o.logger.Warn("stage call failed, retrying", map[string]interface{}{
				"applicationId": applicationID,
				"stage":         stageName,
				"attempt":       attempt + 1,
				"error":         err.Error(),
			})
		}
	}

	metrics.StagesFailed.WithLabelValues(stageName, string(errors.Code(lastErr))).Inc()
	if o.obs != nil {
		o.obs.RecordStageProcessed(ctx, stageName, "failed")
	}
	return zero, lastErr
}

// commit writes the new stage and its output atomically, enforcing the
// monotonic transition invariant inside the store's per-id lock.
func (o *Orchestrator) commit(ctx context.Context, applicationID string, next models.Stage, apply func(*models.ApplicationRecord)) error {
	return o.store.Update(ctx, applicationID, func(r *models.ApplicationRecord) error {
		if !r.CurrentStage.CanTransition(next) {
			return errors.NewStageExecutionError(string(next),
				fmt.Errorf("illegal transition %s -> %s", r.CurrentStage, next), false)
		}
		r.CurrentStage = next
		if apply != nil {
			apply(r)
		}
		return nil
	})
}

// fail moves the record to the absorbing ERROR state, retaining the failing
// stage and detail. There is no automatic cross-stage retry; recovery is
// resubmission from scratch.
func (o *Orchestrator) fail(ctx context.Context, applicationID string, failedStage models.Stage, cause error, log logger.Logger) {
	stdErr := errors.AsStandardError(cause)

	err := o.store.Update(ctx, applicationID, func(r *models.ApplicationRecord) error {
		if !r.CurrentStage.CanTransition(models.StageError) {
			return fmt.Errorf("record already terminal in %s", r.CurrentStage)
		}
		r.CurrentStage = models.StageError
		r.FailedStage = failedStage
		r.ErrorDetail = stdErr.Error() + ": " + stdErr.Details
		r.AddLog("Orchestrator", "stage_error", map[string]interface{}{
			"stage":     string(failedStage),
			"errorCode": string(stdErr.Code),
			"error":     stdErr.Details,
		})
		return nil
	})
	if err != nil {
		log.WithError(err).Error("failed to record ERROR state", nil)
		return
	}

	log.Error("application moved to ERROR", map[string]interface{}{
		"stage":     string(failedStage),
		"errorCode": string(stdErr.Code),
	})
}

func validateSubmit(req SubmitRequest) error {
	if strings.TrimSpace(req.ApplicantID) == "" {
		return errors.NewValidationError("applicant_id must not be empty")
	}
	if strings.TrimSpace(req.TargetProgram) == "" {
		return errors.NewValidationError("target_program must not be empty")
	}
	if len(req.Files) == 0 {
		return errors.NewValidationError("at least one document is required")
	}
	hasPDF := false
	for _, f := range req.Files {
		if isPDF(f) {
			hasPDF = true
			break
		}
	}
	if !hasPDF {
		return errors.NewValidationError("at least one PDF document is required")
	}
	return nil
}

func isPDF(doc models.Document) bool {
	if strings.EqualFold(doc.ContentType, "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(doc.Filename), ".pdf")
}

func newApplicationID() string {
	return "APP-" + strings.ToUpper(uuid.NewString()[:8])
}

func newDocumentID() string {
	return "DOC-" + uuid.NewString()[:6]
}
