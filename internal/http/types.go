// Package http provides the HTTP API for plannerd.
package http

import (
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/orchestrator"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
)

// TurnRequest is the request body for POST /api/v1/turn.
type TurnRequest struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

// TurnResponse is the response body for POST /api/v1/turn.
type TurnResponse struct {
	*orchestrator.TurnResult
}

// FeedbackRequest is the request body for POST /api/v1/plans/:id/feedback.
type FeedbackRequest struct {
	UserID           int64  `json:"user_id"`
	Action           string `json:"action"`
	FeedbackText     string `json:"feedback_text,omitempty"`
	SuggestedChanges string `json:"suggested_changes,omitempty"`
}

// FeedbackResponse is the response body for POST /api/v1/plans/:id/feedback.
type FeedbackResponse struct {
	Feedback   plan.Feedback            `json:"feedback"`
	Unapproved int                      `json:"unapproved,omitempty"`
	Turn       *orchestrator.TurnResult `json:"turn,omitempty"`
}

// PlanResponse is the response body for GET /api/v1/plans/:id.
type PlanResponse struct {
	Plan  plan.Plan   `json:"plan"`
	Tasks []plan.Task `json:"tasks"`
}

// PlansResponse is the response body for GET /api/v1/plans.
type PlansResponse struct {
	Plans []plan.Plan `json:"plans"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
