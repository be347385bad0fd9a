package graph

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/intent"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
)

// Decision is a user's answer at a confirmation gate.
type Decision string

const (
	// DecisionPending means the gate has not been answered yet.
	DecisionPending Decision = "pending"
	DecisionConfirm Decision = "confirm"
	DecisionRevise  Decision = "revise"
	DecisionCancel  Decision = "cancel"
	// DecisionUnknown means the user's answer could not be interpreted.
	// Routers treat it as a request for clarification, not an error.
	DecisionUnknown Decision = "unknown"
)

// ValidationKey is the outcome of the validation node.
type ValidationKey string

const (
	// ValidationUnset routes as clean.
	ValidationUnset  ValidationKey = ""
	ValidationClean  ValidationKey = "clean"
	ValidationMinor  ValidationKey = "minor"
	ValidationSevere ValidationKey = "severe"
)

// State is the single unit of mutable context threaded through one
// workflow run. Exactly one node is active for a run at any instant; the
// engine never shares a State across runs.
type State struct {
	// RunID is assigned at entry and never changes.
	RunID string `json:"run_id"`

	// UserID is the conversation owner.
	UserID int64 `json:"user_id"`

	// Intent is set once per turn by the external classifier and is
	// read-only to the engine.
	Intent intent.Intent `json:"intent"`

	// GoalDescription is set on entry and immutable within the run.
	GoalDescription string `json:"goal_description"`

	// GoalID and PlanID identify persisted rows once known.
	GoalID int64 `json:"goal_id,omitempty"`
	PlanID int64 `json:"plan_id,omitempty"`

	// Strategy is the strategy-interpretation node's reading of the goal.
	Strategy string `json:"strategy,omitempty"`

	// Draft is the in-flight plan payload. Owned exclusively by this run
	// until the persistence node writes it.
	Draft *plan.Draft `json:"draft,omitempty"`

	// ConfirmA and ConfirmB are written only by the confirmation nodes
	// and read only by their routers, immediately after the producing
	// node completes.
	ConfirmA Decision `json:"confirm_a"`
	ConfirmB Decision `json:"confirm_b"`

	// Validation is written by the validation node (or by task
	// generation when the generator fails twice).
	Validation ValidationKey `json:"validation,omitempty"`

	// SuggestedChanges carries refinement feedback into regeneration.
	SuggestedChanges string `json:"suggested_changes,omitempty"`

	// ScheduleFrom anchors calendarization after the user's existing
	// commitments. Set by the world-model node.
	ScheduleFrom *time.Time `json:"schedule_from,omitempty"`

	// ClarifyReturn names the confirmation gate a clarification
	// re-prompt belongs to.
	ClarifyReturn string `json:"clarify_return,omitempty"`

	// Warnings accumulates non-fatal annotations shown to the user.
	Warnings []string `json:"warnings,omitempty"`

	// Prompt is the message for the user when the run suspends or ends.
	Prompt string `json:"prompt,omitempty"`

	// Iterations counts router-triggered redirections; the engine
	// terminates the run when the ceiling is hit.
	Iterations int `json:"iterations"`
}

// NewState creates run state with gates pending.
func NewState(runID string, userID int64, label intent.Intent, goal string) *State {
	return &State{
		RunID:           runID,
		UserID:          userID,
		Intent:          label,
		GoalDescription: goal,
		ConfirmA:        DecisionPending,
		ConfirmB:        DecisionPending,
	}
}

// Marshal serializes the state for a run snapshot.
func (s *State) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

// UnmarshalState restores state from a run snapshot.
func UnmarshalState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &s, nil
}
