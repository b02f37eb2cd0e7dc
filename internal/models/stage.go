// internal/models/stage.go
package models

// Stage is one discrete phase of application processing.
type Stage string

const (
	StageReady        Stage = "READY"
	StageClassifying  Stage = "CLASSIFYING"
	StageExtracting   Stage = "EXTRACTING"
	StageDeciding     Stage = "DECIDING"
	StageDecisionMade Stage = "DECISION_MADE"
	StageError        Stage = "ERROR"
)

// stageRank fixes the forward order. ERROR is absorbing and unranked.
var stageRank = map[Stage]int{
	StageReady:        0,
	StageClassifying:  1,
	StageExtracting:   2,
	StageDeciding:     3,
	StageDecisionMade: 4,
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Stage) IsTerminal() bool {
	return s == StageDecisionMade || s == StageError
}

// CanTransition reports whether moving from s to next preserves the stage
// invariant: one step forward along the fixed order, or a single jump to the
// absorbing ERROR state from any non-terminal stage.
func (s Stage) CanTransition(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageError {
		return true
	}
	from, ok := stageRank[s]
	if !ok {
		return false
	}
	to, ok := stageRank[next]
	if !ok {
		return false
	}
	return to == from+1
}
