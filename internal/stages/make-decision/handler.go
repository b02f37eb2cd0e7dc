// internal/stages/make-decision/handler.go
package makedecision

import (
	"context"
	"fmt"
	"strings"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/models"
	"admissions-pipeline/internal/ruleindex"
)

const StageName = "make-decision"

// RuleRetriever serves rulebook similarity queries for decision grounding.
type RuleRetriever interface {
	Query(ctx context.Context, text string, k int) ([]ruleindex.ScoredChunk, error)
}

// Handler implements the decision stage: completeness check, rule retrieval,
// per-rule interpretation and deterministic aggregation. Every decision cites
// the retrieved rulebook text it rests on.
type Handler struct {
	config      *Config
	rules       RuleRetriever
	interpreter RuleInterpreter
	logger      logger.Logger
}

func NewHandler(config *Config, rules RuleRetriever, interpreter RuleInterpreter, log logger.Logger) *Handler {
	return &Handler{
		config:      config,
		rules:       rules,
		interpreter: interpreter,
		logger:      log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

// Decide satisfies the workflow DecisionMaker contract.
func (h *Handler) Decide(ctx context.Context, classified []models.ClassifiedDocument, profile *models.ApplicantProfile) (*models.Decision, error) {
	out, err := h.Execute(ctx, &Input{Classified: classified, Profile: profile})
	if err != nil {
		return nil, err
	}
	return out.Decision, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewStageTimeoutError(StageName)
	}
	if input.Profile == nil {
		return nil, errors.NewDecisionEvaluationError(fmt.Errorf("no applicant profile available"))
	}

	// Completeness gate: missing required documents short-circuit the decision
	// before any rule is consulted.
	if missing := h.missingDocuments(input.Profile.Entity, input.Classified); len(missing) > 0 {
		return &Output{Decision: &models.Decision{
			Status:           models.DecisionMissingDocs,
			Confidence:       1.0,
			Reasoning:        fmt.Sprintf("required documents missing for entity %s: %s", input.Profile.Entity, joinDocTypes(missing)),
			AppliedRules:     []models.RuleEvaluation{},
			Citations:        []models.Citation{},
			MissingDocuments: missing,
		}}, nil
	}

	query := buildRuleQuery(input.Profile)
	retrieved, err := h.rules.Query(ctx, query, h.config.RetrievalK)
	if err != nil {
		return nil, err
	}

	evaluations := make([]models.RuleEvaluation, 0, len(retrieved))
	citations := make([]models.Citation, 0, len(retrieved))
	for _, scored := range retrieved {
		verdict, err := h.interpreter.Interpret(ctx, scored.Chunk.Text, input.Profile)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.NewStageTimeoutError(StageName)
			}
			// An interpreter that cannot produce a verdict never blocks the
			// applicant: the case goes to a human instead.
			h.logger.Warn("interpreter failed, routing to review", map[string]interface{}{
				"chunk": scored.Chunk.ID,
				"error": err.Error(),
			})
			return &Output{Decision: &models.Decision{
				Status:       models.DecisionReviewRequired,
				Confidence:   0,
				Reasoning:    fmt.Sprintf("rule interpretation failed for chunk %s; manual review required", scored.Chunk.ID),
				AppliedRules: evaluations,
				Citations:    citations,
			}}, nil
		}

		evaluations = append(evaluations, models.RuleEvaluation{
			RuleID:     scored.Chunk.ID,
			RuleText:   scored.Chunk.Text,
			Outcome:    verdict.Outcome,
			Reasoning:  verdict.Reasoning,
			Required:   h.isRequiredRule(scored.Chunk.Text, input.Profile),
			Confidence: verdict.Confidence,
		})
		citations = append(citations, scored.Chunk.Citation())
	}

	decision := h.aggregate(evaluations, citations, input.Profile)

	h.logger.Info("decision made", map[string]interface{}{
		"status":     string(decision.Status),
		"confidence": decision.Confidence,
		"rules":      len(decision.AppliedRules),
	})

	return &Output{Decision: decision}, nil
}

// missingDocuments diffs the entity's required checklist against the
// classified labels.
func (h *Handler) missingDocuments(entity string, classified []models.ClassifiedDocument) []models.DocumentType {
	present := map[models.DocumentType]bool{}
	for _, doc := range classified {
		present[doc.DocumentType] = true
	}

	var missing []models.DocumentType
	for _, required := range RequiredDocuments(entity) {
		if !present[required] {
			missing = append(missing, required)
		}
	}
	return missing
}

// buildRuleQuery assembles the retrieval query from the profile attributes
// that drive admission rules.
func buildRuleQuery(profile *models.ApplicantProfile) string {
	parts := []string{
		fmt.Sprintf("admission requirements for %s", profile.TargetProgram),
		fmt.Sprintf("entity %s", profile.Entity),
	}
	if profile.QualificationType != nil {
		parts = append(parts, fmt.Sprintf("applicant with %s", *profile.QualificationType))
	}
	if profile.NormalizedGrade != nil {
		parts = append(parts, fmt.Sprintf("grade %.2f", *profile.NormalizedGrade))
	}
	for _, field := range profile.MissingFields {
		parts = append(parts, fmt.Sprintf("missing %s", field))
	}
	return strings.Join(parts, " ")
}

// isRequiredRule marks the rules whose verdict can reject the applicant:
// rules addressing their own admission pathway or carrying mandatory wording.
func (h *Handler) isRequiredRule(ruleText string, profile *models.ApplicantProfile) bool {
	lower := strings.ToLower(ruleText)

	if profile.QualificationType != nil {
		for _, entry := range qualificationMentions {
			if entry.subtype != *profile.QualificationType {
				continue
			}
			for _, m := range entry.mentions {
				if strings.Contains(lower, m) {
					return true
				}
			}
		}
	}

	return containsAny(lower, "must ", "required", "mandatory", "minimum", "mindestens")
}

// aggregate combines per-rule verdicts into the final status. The ordering is
// fixed: data gaps on required rules beat rejection, rejection beats review,
// review beats approval.
func (h *Handler) aggregate(evaluations []models.RuleEvaluation, citations []models.Citation, profile *models.ApplicantProfile) *models.Decision {
	requiredInsufficient := 0
	requiredFailed := 0
	requiredSatisfied := 0
	insufficientTotal := 0
	lowConfidence := 0

	for _, ev := range evaluations {
		if ev.Outcome == models.RuleInsufficientData {
			insufficientTotal++
		}
		if ev.Confidence < 0.7 {
			lowConfidence++
		}
		if !ev.Required {
			continue
		}
		switch ev.Outcome {
		case models.RuleInsufficientData:
			requiredInsufficient++
		case models.RuleNotSatisfied:
			requiredFailed++
		case models.RuleSatisfied:
			requiredSatisfied++
		}
	}

	confidence := 0.95 - 0.15*float64(insufficientTotal) - 0.1*float64(lowConfidence)
	if confidence < 0 {
		confidence = 0
	}

	decision := &models.Decision{
		Confidence:   confidence,
		AppliedRules: evaluations,
		Citations:    citations,
	}

	switch {
	case requiredInsufficient > 0:
		decision.Status = models.DecisionMissingDocs
		decision.Reasoning = fmt.Sprintf(
			"%d required rule(s) could not be judged because the submitted documents lack the data (missing: %s)",
			requiredInsufficient, strings.Join(profile.MissingFields, ", "))

	case h.rejected(requiredFailed, requiredSatisfied):
		decision.Status = models.DecisionRejected
		decision.Reasoning = fmt.Sprintf("%d required rule(s) not satisfied", requiredFailed)

	case confidence < h.config.ReviewThreshold:
		decision.Status = models.DecisionReviewRequired
		decision.Reasoning = fmt.Sprintf(
			"aggregate confidence %.2f below the %.2f review threshold", confidence, h.config.ReviewThreshold)

	default:
		decision.Status = models.DecisionApproved
		decision.Reasoning = h.approvalReasoning(evaluations)
	}

	return decision
}

// rejected applies the configured aggregation policy. Strict-and rejects on
// any failed required rule; any-pathway rejects only when no required rule
// was satisfied.
func (h *Handler) rejected(requiredFailed, requiredSatisfied int) bool {
	if requiredFailed == 0 {
		return false
	}
	if h.config.AggregationPolicy == PolicyAnyPathway {
		return requiredSatisfied == 0
	}
	return true
}

func (h *Handler) approvalReasoning(evaluations []models.RuleEvaluation) string {
	for _, ev := range evaluations {
		if ev.Required && ev.Outcome == models.RuleSatisfied {
			return fmt.Sprintf("all applicable rules satisfied; decisive rule: %s", ev.RuleText)
		}
	}
	return "all applicable rules satisfied"
}

func joinDocTypes(types []models.DocumentType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
