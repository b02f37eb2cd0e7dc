// internal/stages/make-decision/interpreter.go
package makedecision

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"admissions-pipeline/internal/models"
)

// RuleInterpreter judges one rulebook chunk against an applicant profile.
// The heuristic implementation below is the reference engine; a model-backed
// interpreter satisfies the same contract.
type RuleInterpreter interface {
	Interpret(ctx context.Context, ruleText string, profile *models.ApplicantProfile) (*RuleVerdict, error)
}

// qualification names a rule text may refer to, mapped to profile subtypes.
// Checked in order so multi-credential rules resolve deterministically.
var qualificationMentions = []struct {
	subtype  string
	mentions []string
}{
	{"abitur", []string{"abitur", "allgemeine hochschulreife", "hochschulreife"}},
	{"a_levels", []string{"a-level", "a level", "a-levels"}},
	{"ib", []string{"international baccalaureate", "ib diploma"}},
}

var minGradeRe = regexp.MustCompile(`(?i)(?:minimum|at least|mindestens|better than|of)\s+(?:grade\s+)?(\d[.,]\d{1,2})`)

// HeuristicInterpreter judges rules by qualification mention and grade
// comparison on the German scale, where lower is better.
type HeuristicInterpreter struct{}

func NewHeuristicInterpreter() *HeuristicInterpreter {
	return &HeuristicInterpreter{}
}

func (i *HeuristicInterpreter) Interpret(ctx context.Context, ruleText string, profile *models.ApplicantProfile) (*RuleVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(ruleText)
	mentioned := mentionedQualification(lower)

	// A rule about a qualification the applicant does not hold is judged on
	// data availability, not failure: holding a different credential does not
	// break an alternative admission pathway.
	if mentioned != "" {
		if profile.QualificationType == nil {
			return &RuleVerdict{
				Outcome:    models.RuleInsufficientData,
				Reasoning:  fmt.Sprintf("rule refers to %s but no qualification type was extracted", mentioned),
				Confidence: 0.9,
			}, nil
		}
		if *profile.QualificationType != mentioned {
			return &RuleVerdict{
				Outcome:    models.RuleSatisfied,
				Reasoning:  fmt.Sprintf("rule addresses %s; applicant holds %s, so this pathway does not constrain them", mentioned, *profile.QualificationType),
				Confidence: 0.7,
			}, nil
		}
	}

	// Grade requirements compare on the German scale: lower is better.
	if m := minGradeRe.FindStringSubmatch(ruleText); m != nil {
		required, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err == nil {
			if profile.NormalizedGrade == nil {
				return &RuleVerdict{
					Outcome:    models.RuleInsufficientData,
					Reasoning:  "rule sets a grade requirement but no grade was extracted",
					Confidence: 0.9,
				}, nil
			}
			if *profile.NormalizedGrade <= required {
				return &RuleVerdict{
					Outcome:    models.RuleSatisfied,
					Reasoning:  fmt.Sprintf("grade %.2f meets the %.2f requirement", *profile.NormalizedGrade, required),
					Confidence: 0.95,
				}, nil
			}
			return &RuleVerdict{
				Outcome:    models.RuleNotSatisfied,
				Reasoning:  fmt.Sprintf("grade %.2f misses the %.2f requirement", *profile.NormalizedGrade, required),
				Confidence: 0.95,
			}, nil
		}
	}

	// Direct-access rules are satisfied by holding the mentioned credential.
	if mentioned != "" && containsAny(lower, "grants direct access", "direct access", "directly qualifies", "qualifies for admission") {
		return &RuleVerdict{
			Outcome:    models.RuleSatisfied,
			Reasoning:  fmt.Sprintf("applicant holds %s, which this rule accepts for direct access", mentioned),
			Confidence: 0.95,
		}, nil
	}

	if mentioned != "" {
		return &RuleVerdict{
			Outcome:    models.RuleSatisfied,
			Reasoning:  fmt.Sprintf("applicant holds the %s credential this rule addresses", mentioned),
			Confidence: 0.75,
		}, nil
	}

	if containsAny(lower, "work experience", "berufserfahrung", "professional experience") {
		months := profile.TotalWorkExperienceMonths()
		if months == 0 && len(profile.WorkExperience) == 0 {
			return &RuleVerdict{
				Outcome:    models.RuleInsufficientData,
				Reasoning:  "rule requires work experience but none was extracted",
				Confidence: 0.85,
			}, nil
		}
		return &RuleVerdict{
			Outcome:    models.RuleSatisfied,
			Reasoning:  fmt.Sprintf("applicant shows %d months of work experience", months),
			Confidence: 0.8,
		}, nil
	}

	// Nothing in the rule text maps onto the profile.
	return &RuleVerdict{
		Outcome:    models.RuleInsufficientData,
		Reasoning:  "rule text does not map onto any extracted profile attribute",
		Confidence: 0.5,
	}, nil
}

// mentionedQualification returns the first profile subtype a rule text refers to.
func mentionedQualification(lowerRule string) string {
	for _, entry := range qualificationMentions {
		for _, m := range entry.mentions {
			if strings.Contains(lowerRule, m) {
				return entry.subtype
			}
		}
	}
	return ""
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
