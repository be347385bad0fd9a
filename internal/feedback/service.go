package feedback

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/store"
)

const instrumentationName = "github.com/MoeMoeen/smart-personal-planner-sub001/internal/feedback"

var (
	// ErrNotFound indicates the plan does not exist.
	ErrNotFound = errors.New("plan not found")

	// ErrConflict indicates feedback was already submitted for the plan.
	// No second submission is ever accepted.
	ErrConflict = errors.New("feedback already submitted")

	// ErrInvalidInput indicates a missing or unknown action.
	ErrInvalidInput = errors.New("invalid feedback input")
)

// SubmitRequest carries one feedback submission.
type SubmitRequest struct {
	PlanID           int64
	GoalID           int64 // optional; validated against the plan when set
	UserID           int64
	Action           string
	FeedbackText     string
	SuggestedChanges string
}

// Receipt is the visible outcome of a submission.
type Receipt struct {
	Feedback plan.Feedback

	// Unapproved is the number of sibling plans whose approval was
	// revoked. Only meaningful for approve.
	Unapproved int

	// RefinementRequested signals the orchestrator to re-enter plan
	// drafting carrying SuggestedChanges.
	RefinementRequested bool
}

// Service is the plan feedback state machine.
type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Receipt, error)
}

// RefinementSignal is invoked after a request_refinement submission
// commits, letting the orchestrator re-enter plan drafting.
type RefinementSignal func(ctx context.Context, planID int64, suggestedChanges string)

// service implements Service over the SQLite store.
type service struct {
	store  *store.Store
	logger *zap.Logger
	onRefinement RefinementSignal

	tracer        trace.Tracer
	meter         metric.Meter
	submitCounter metric.Int64Counter
}

// NewService creates the feedback service. onRefinement may be nil.
func NewService(st *store.Store, logger *zap.Logger, onRefinement RefinementSignal) (Service, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		store:        st,
		logger:       logger,
		onRefinement: onRefinement,
		tracer:       otel.Tracer(instrumentationName),
		meter:        otel.Meter(instrumentationName),
	}

	s.initMetrics()

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.submitCounter, err = s.meter.Int64Counter(
		"plannerd.feedback.submissions_total",
		metric.WithDescription("Total number of feedback submissions"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		s.logger.Warn("failed to create submit counter", zap.Error(err))
	}
}

// Submit records feedback for a plan. All side effects are visible before
// the call returns.
func (s *service) Submit(ctx context.Context, req SubmitRequest) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "feedback.submit")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("plan_id", req.PlanID),
		attribute.String("action", req.Action),
	)

	action, err := plan.ParseFeedbackAction(req.Action)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	target, err := s.store.GetPlan(ctx, req.PlanID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: plan %d", ErrNotFound, req.PlanID)
	}
	if err != nil {
		return nil, err
	}

	if req.GoalID != 0 && req.GoalID != target.GoalID {
		return nil, fmt.Errorf("%w: plan %d belongs to goal %d, not %d",
			ErrInvalidInput, req.PlanID, target.GoalID, req.GoalID)
	}

	fb := plan.Feedback{
		PlanID:           target.ID,
		GoalID:           target.GoalID,
		UserID:           req.UserID,
		Action:           action,
		FeedbackText:     req.FeedbackText,
		SuggestedChanges: req.SuggestedChanges,
	}

	receipt := &Receipt{}

	switch action {
	case plan.ActionApprove:
		receipt.Feedback, receipt.Unapproved, err = s.store.SubmitApproval(ctx, fb)
	case plan.ActionRequestRefinement:
		receipt.Feedback, err = s.store.SubmitRefinement(ctx, fb)
		receipt.RefinementRequested = err == nil
	case plan.ActionReject:
		receipt.Feedback, err = s.store.SubmitRejection(ctx, fb)
	}
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("%w: plan %d", ErrConflict, req.PlanID)
	}
	if err != nil {
		return nil, err
	}

	if s.submitCounter != nil {
		s.submitCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", string(action)),
		))
	}

	s.logger.Info("feedback submitted",
		zap.Int64("plan_id", target.ID),
		zap.Int64("goal_id", target.GoalID),
		zap.String("action", string(action)),
		zap.Int("unapproved", receipt.Unapproved),
	)

	if receipt.RefinementRequested && s.onRefinement != nil {
		s.onRefinement(ctx, target.ID, req.SuggestedChanges)
	}

	return receipt, nil
}
