// internal/workflow/orchestrator_test.go
package workflow

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/models"
	"admissions-pipeline/internal/ruleindex"
	"admissions-pipeline/internal/store"
)

// ==========================
// Test Helper Functions
// ==========================

// stubStages implements all three stage capabilities with optional injected
// failures and randomized latency.
type stubStages struct {
	maxLatency  time.Duration
	classifyErr error
	extractErr  error
	decideErr   error
}

func (s *stubStages) sleep() {
	if s.maxLatency > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(s.maxLatency))))
	}
}

func (s *stubStages) Classify(ctx context.Context, docs []models.Document) ([]models.ClassifiedDocument, error) {
	s.sleep()
	if s.classifyErr != nil {
		return nil, s.classifyErr
	}
	out := make([]models.ClassifiedDocument, len(docs))
	for i, d := range docs {
		out[i] = models.ClassifiedDocument{Document: d, DocumentType: models.DocumentTypeTranscript, Confidence: 0.9}
	}
	return out, nil
}

func (s *stubStages) Extract(ctx context.Context, targetProgram, entity string, classified []models.ClassifiedDocument) (*models.ApplicantProfile, error) {
	s.sleep()
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	return &models.ApplicantProfile{TargetProgram: targetProgram, Entity: entity}, nil
}

func (s *stubStages) Decide(ctx context.Context, classified []models.ClassifiedDocument, profile *models.ApplicantProfile) (*models.Decision, error) {
	s.sleep()
	if s.decideErr != nil {
		return nil, s.decideErr
	}
	return &models.Decision{Status: models.DecisionApproved, Confidence: 0.95}, nil
}

func (s *stubStages) Query(ctx context.Context, text string, k int) ([]ruleindex.ScoredChunk, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T, stages *stubStages, cfg Config) (*Orchestrator, store.ApplicationStore) {
	appStore := store.NewMemoryStore()
	orch := NewOrchestrator(appStore, stages, stages, stages, stages, cfg, logger.NewTestLogger(t), nil)
	drainOnCleanup(t, orch)
	return orch, appStore
}

// drainOnCleanup waits out in-flight advancement goroutines so they never log
// against a finished test.
func drainOnCleanup(t *testing.T, orch *Orchestrator) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
}

func submitRequest(applicant string) SubmitRequest {
	return SubmitRequest{
		ApplicantID:   applicant,
		TargetProgram: "Finanzmanagement",
		Entity:        "DE",
		Files: []models.Document{
			{Filename: "transcript.pdf", ContentType: "application/pdf", Text: "credits"},
		},
	}
}

// waitTerminal polls until the application reaches a terminal stage.
func waitTerminal(t *testing.T, orch *Orchestrator, id string) *Status {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status, err := orch.GetStatus(context.Background(), id)
		require.NoError(t, err)
		if status.CurrentStage.IsTerminal() {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("application %s never reached a terminal stage", id)
	return nil
}

// ==========================
// Core Functionality Tests
// ==========================

func TestOrchestrator_HappyPathReachesDecisionMade(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &stubStages{}, Config{})

	id, err := orch.Submit(context.Background(), submitRequest("applicant-1"))
	require.NoError(t, err)
	assert.Regexp(t, `^APP-[0-9A-F-]{8}$`, id)

	status := waitTerminal(t, orch, id)
	assert.Equal(t, models.StageDecisionMade, status.CurrentStage)
	require.NotNil(t, status.Decision)
	assert.Equal(t, models.DecisionApproved, status.Decision.Status)
	assert.NotEmpty(t, status.Classified)
	assert.NotNil(t, status.Profile)

	// Submission and every stage commit left an event log entry.
	assert.GreaterOrEqual(t, len(status.Logs), 5)
}

func TestOrchestrator_SubmitValidation(t *testing.T) {
	orch, appStore := newTestOrchestrator(t, &stubStages{}, Config{})

	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"empty applicant", func(r *SubmitRequest) { r.ApplicantID = " " }},
		{"empty program", func(r *SubmitRequest) { r.TargetProgram = "" }},
		{"no files", func(r *SubmitRequest) { r.Files = nil }},
		{"no pdf", func(r *SubmitRequest) {
			r.Files = []models.Document{{Filename: "notes.txt", ContentType: "text/plain"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := submitRequest("applicant-1")
			tt.mutate(&req)

			_, err := orch.Submit(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}

	// Rejected submissions never create records.
	summaries, err := appStore.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestOrchestrator_GetStatusUnknownID(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &stubStages{}, Config{})

	_, err := orch.GetStatus(context.Background(), "APP-NOPE")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestOrchestrator_StageFailureMovesToError(t *testing.T) {
	stages := &stubStages{
		extractErr: errors.NewExtractionSchemaMismatchError("profile incomplete"),
	}
	orch, _ := newTestOrchestrator(t, stages, Config{})

	id, err := orch.Submit(context.Background(), submitRequest("applicant-1"))
	require.NoError(t, err)

	status := waitTerminal(t, orch, id)
	assert.Equal(t, models.StageError, status.CurrentStage)
	assert.Equal(t, models.StageExtracting, status.FailedStage)
	assert.Contains(t, status.ErrorDetail, "profile incomplete")

	// Earlier stage output survives the failure.
	assert.NotEmpty(t, status.Classified)
	assert.Nil(t, status.Decision)
}

func TestOrchestrator_RetryableFailureIsRetried(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	stages := &stubStages{}
	flaky := &flakyDecider{stubStages: stages, failures: 2, calls: &calls, mu: &mu}

	appStore := store.NewMemoryStore()
	orch := NewOrchestrator(appStore, stages, stages, flaky, stages, Config{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}, logger.NewTestLogger(t), nil)
	drainOnCleanup(t, orch)

	id, err := orch.Submit(context.Background(), submitRequest("applicant-1"))
	require.NoError(t, err)

	status := waitTerminal(t, orch, id)
	assert.Equal(t, models.StageDecisionMade, status.CurrentStage)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestOrchestrator_NonRetryableFailureIsNot(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	stages := &stubStages{}
	flaky := &flakyDecider{stubStages: stages, failures: 10, permanent: true, calls: &calls, mu: &mu}

	appStore := store.NewMemoryStore()
	orch := NewOrchestrator(appStore, stages, stages, flaky, stages, Config{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}, logger.NewTestLogger(t), nil)
	drainOnCleanup(t, orch)

	id, err := orch.Submit(context.Background(), submitRequest("applicant-1"))
	require.NoError(t, err)

	status := waitTerminal(t, orch, id)
	assert.Equal(t, models.StageError, status.CurrentStage)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestOrchestrator_NoRetryAnnouncementAfterFinalAttempt(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	stages := &stubStages{}
	flaky := &flakyDecider{stubStages: stages, failures: 10, calls: &calls, mu: &mu}

	core, logs := observer.New(zapcore.WarnLevel)
	appStore := store.NewMemoryStore()
	orch := NewOrchestrator(appStore, stages, stages, flaky, stages, Config{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}, logger.NewZapAdapter(zap.New(core)), nil)
	drainOnCleanup(t, orch)

	id, err := orch.Submit(context.Background(), submitRequest("applicant-1"))
	require.NoError(t, err)

	status := waitTerminal(t, orch, id)
	assert.Equal(t, models.StageError, status.CurrentStage)

	// Two retries actually follow, so exactly two retry warnings appear; the
	// exhausted third attempt announces nothing.
	assert.Equal(t, 2, logs.FilterMessage("stage call failed, retrying").Len())
}

// flakyDecider fails its first N Decide calls.
type flakyDecider struct {
	*stubStages
	failures  int
	permanent bool
	calls     *int
	mu        *sync.Mutex
}

func (f *flakyDecider) Decide(ctx context.Context, classified []models.ClassifiedDocument, profile *models.ApplicantProfile) (*models.Decision, error) {
	f.mu.Lock()
	*f.calls++
	n := *f.calls
	f.mu.Unlock()

	if n <= f.failures {
		if f.permanent {
			return nil, errors.NewExtractionSchemaMismatchError("permanent failure")
		}
		return nil, errors.NewDecisionEvaluationError(fmt.Errorf("transient failure %d", n))
	}
	return f.stubStages.Decide(ctx, classified, profile)
}

// ==========================
// Concurrency Tests
// ==========================

func TestOrchestrator_ConcurrentSubmissions(t *testing.T) {
	stages := &stubStages{maxLatency: 3 * time.Millisecond}
	orch, _ := newTestOrchestrator(t, stages, Config{MaxConcurrent: 8})

	const n = 100
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := orch.Submit(context.Background(), submitRequest(fmt.Sprintf("applicant-%d", i)))
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	// All ids are unique.
	seen := make(map[string]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	// Every application independently reaches DECISION_MADE.
	for _, id := range ids {
		status := waitTerminal(t, orch, id)
		assert.Equal(t, models.StageDecisionMade, status.CurrentStage)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, orch.Shutdown(shutdownCtx))
}

func TestOrchestrator_TransitionsAreMonotonic(t *testing.T) {
	stages := &stubStages{maxLatency: 2 * time.Millisecond}
	orch, _ := newTestOrchestrator(t, stages, Config{})

	id, err := orch.Submit(context.Background(), submitRequest("applicant-1"))
	require.NoError(t, err)

	// Poll continuously and record every observed stage; the observed
	// sequence must never move backward.
	var observed []models.Stage
	for {
		status, err := orch.GetStatus(context.Background(), id)
		require.NoError(t, err)
		if len(observed) == 0 || observed[len(observed)-1] != status.CurrentStage {
			observed = append(observed, status.CurrentStage)
		}
		if status.CurrentStage.IsTerminal() {
			break
		}
	}

	rank := map[models.Stage]int{
		models.StageReady:        0,
		models.StageClassifying:  1,
		models.StageExtracting:   2,
		models.StageDeciding:     3,
		models.StageDecisionMade: 4,
	}
	for i := 1; i < len(observed); i++ {
		assert.Greater(t, rank[observed[i]], rank[observed[i-1]],
			"observed backward transition %v", observed)
	}
}

// ==========================
// Rule Query Tests
// ==========================

type fixedRules struct{}

func (fixedRules) Query(_ context.Context, _ string, k int) ([]ruleindex.ScoredChunk, error) {
	return []ruleindex.ScoredChunk{
		{Chunk: models.RuleChunk{ID: "r1", Text: "Abitur grants direct access.", Page: 3}, Score: 0.8},
	}, nil
}

func TestOrchestrator_QueryRules(t *testing.T) {
	stages := &stubStages{}
	appStore := store.NewMemoryStore()
	orch := NewOrchestrator(appStore, stages, stages, stages, fixedRules{}, Config{}, logger.NewTestLogger(t), nil)

	matches, err := orch.QueryRules(context.Background(), "admission requirements", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Abitur grants direct access.", matches[0].ChunkText)
	assert.Equal(t, matches[0].ChunkText, matches[0].Citation.Excerpt)
}

func TestOrchestrator_QueryRulesEmptyQuestion(t *testing.T) {
	stages := &stubStages{}
	orch, _ := newTestOrchestrator(t, stages, Config{})

	_, err := orch.QueryRules(context.Background(), "   ", 5)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}
