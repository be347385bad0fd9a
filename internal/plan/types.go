package plan

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a plan.
type Status string

const (
	// StatusProposed is a persisted plan awaiting user feedback.
	StatusProposed Status = "proposed"
	// StatusApproved is a plan the user accepted.
	StatusApproved Status = "approved"
	// StatusNeedsRefinement is a plan the user asked to refine.
	StatusNeedsRefinement Status = "needs_refinement"
	// StatusRejected is a plan the user declined. Terminal.
	StatusRejected Status = "rejected"
	// StatusCancelled is a plan withdrawn before feedback.
	StatusCancelled Status = "cancelled"
)

// Goal is a user objective that plans are generated for.
type Goal struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Plan is a persisted, structured plan under a goal.
// Across all plans sharing a GoalID, at most one may be approved.
type Plan struct {
	ID        int64     `json:"id"`
	GoalID    int64     `json:"goal_id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Status    Status    `json:"status"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is a scheduled unit of work inside a plan.
type Task struct {
	ID              int64      `json:"id"`
	PlanID          int64      `json:"plan_id"`
	Position        int        `json:"position"`
	Title           string     `json:"title"`
	Notes           string     `json:"notes,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	Completed       bool       `json:"completed"`
}

// Overlaps reports whether two scheduled tasks occupy intersecting windows.
// Unscheduled tasks never overlap.
func (t Task) Overlaps(other Task) bool {
	if t.StartAt == nil || t.EndAt == nil || other.StartAt == nil || other.EndAt == nil {
		return false
	}
	return t.StartAt.Before(*other.EndAt) && other.StartAt.Before(*t.EndAt)
}

// Draft is the generator's structured plan payload before persistence.
// It is owned exclusively by one workflow run until the persistence node
// writes it.
type Draft struct {
	Title   string      `json:"title"`
	Summary string      `json:"summary"`
	Tasks   []DraftTask `json:"tasks"`
}

// DraftTask is an unscheduled task inside a draft.
type DraftTask struct {
	Title           string     `json:"title"`
	Notes           string     `json:"notes,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
}

// FeedbackAction is the user's reaction to a proposed plan.
type FeedbackAction string

const (
	ActionApprove           FeedbackAction = "approve"
	ActionRequestRefinement FeedbackAction = "request_refinement"
	ActionReject            FeedbackAction = "reject"
)

// ParseFeedbackAction validates an action label.
func ParseFeedbackAction(s string) (FeedbackAction, error) {
	switch FeedbackAction(s) {
	case ActionApprove, ActionRequestRefinement, ActionReject:
		return FeedbackAction(s), nil
	case "":
		return "", fmt.Errorf("feedback action is required")
	default:
		return "", fmt.Errorf("unknown feedback action %q", s)
	}
}

// Feedback is the immutable per-plan feedback record. At most one row
// exists per plan, ever.
type Feedback struct {
	ID               int64          `json:"id"`
	PlanID           int64          `json:"plan_id"`
	GoalID           int64          `json:"goal_id"`
	UserID           int64          `json:"user_id"`
	Action           FeedbackAction `json:"action"`
	FeedbackText     string         `json:"feedback_text,omitempty"`
	SuggestedChanges string         `json:"suggested_changes,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
