package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/generate"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/graph"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/intent"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/logging"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/store"
)

// Workflow node names. Registration order in buildGraph defines which
// transitions count as redirections.
const (
	NodeIntentRecognition = "intent_recognition"
	NodeStrategy          = "strategy_interpretation"
	NodePlanOutline       = "plan_outline"
	NodeConfirmA          = "user_confirm_a"
	NodeTaskGeneration    = "task_generation"
	NodeWorldModel        = "world_model_integration"
	NodeCalendarization   = "calendarization"
	NodeValidation        = "validation"
	NodeConfirmB          = "user_confirm_b"
	NodePersistence       = "persistence"
	NodeClarification     = "clarification"
)

const historyWindow = 10

// gateDecision reads the decision of the named confirmation gate.
func gateDecision(s *graph.State, node string) graph.Decision {
	if node == NodeConfirmB {
		return s.ConfirmB
	}
	return s.ConfirmA
}

// setGateDecision writes the decision of the named confirmation gate.
func setGateDecision(s *graph.State, node string, d graph.Decision) {
	if node == NodeConfirmB {
		s.ConfirmB = d
		return
	}
	s.ConfirmA = d
}

func (o *Orchestrator) nodeIntentRecognition(_ context.Context, s *graph.State) (graph.Outcome, error) {
	if !intent.IsValid(string(s.Intent)) {
		return graph.Outcome{}, fmt.Errorf("%w: %q", intent.ErrUnsupported, s.Intent)
	}
	if s.GoalDescription == "" {
		return graph.Outcome{}, errors.New("goal description is required")
	}
	return graph.Outcome{}, nil
}

const strategySystemPrompt = `You are a planning assistant. In one or two sentences,
state the approach you would take to reach the user's goal. Plain text, no lists.`

func (o *Orchestrator) nodeStrategy(ctx context.Context, s *graph.State) (graph.Outcome, error) {
	if o.chat != nil {
		out, err := o.chat.Complete(ctx, strategySystemPrompt, s.GoalDescription)
		if err == nil && out != "" {
			s.Strategy = out
			return graph.Outcome{}, nil
		}
		o.logger.With(logging.ContextFields(ctx)...).Warn("strategy completion failed, using fallback", zap.Error(err))
	}
	s.Strategy = fmt.Sprintf("Break %q into ordered milestones and schedule them around existing commitments.", s.GoalDescription)
	return graph.Outcome{}, nil
}

func (o *Orchestrator) nodePlanOutline(ctx context.Context, s *graph.State) (graph.Outcome, error) {
	req := generate.Request{
		GoalDescription:  s.GoalDescription,
		History:          o.ledger.Recent(s.UserID, historyWindow),
		SuggestedChanges: s.SuggestedChanges,
	}
	draft, err := o.generator.Outline(ctx, req)
	if err != nil {
		o.logger.With(logging.ContextFields(ctx)...).Warn("outline failed, retrying once", zap.Error(err))
		draft, err = o.generator.Outline(ctx, req)
	}
	if err != nil {
		return graph.Outcome{}, fmt.Errorf("%w: outline: %v", generate.ErrGeneration, err)
	}
	s.Draft = draft
	return graph.Outcome{}, nil
}

func (o *Orchestrator) nodeConfirmA(_ context.Context, s *graph.State) (graph.Outcome, error) {
	return o.confirmGate(s, NodeConfirmA, renderOutlinePrompt(s))
}

func (o *Orchestrator) nodeConfirmB(_ context.Context, s *graph.State) (graph.Outcome, error) {
	return o.confirmGate(s, NodeConfirmB, renderSchedulePrompt(s))
}

// confirmGate implements both confirmation nodes. A pending gate
// suspends the run with its prompt; cancel halts; an uninterpretable
// answer hands off to clarification through the router.
func (o *Orchestrator) confirmGate(s *graph.State, node, prompt string) (graph.Outcome, error) {
	switch gateDecision(s, node) {
	case graph.DecisionPending:
		return graph.Outcome{Suspend: true, Prompt: prompt}, nil
	case graph.DecisionCancel:
		return graph.Outcome{Halt: true, Prompt: "Okay, I've stopped working on this plan. Tell me whenever you want to start again."}, nil
	case graph.DecisionUnknown:
		s.ClarifyReturn = node
		return graph.Outcome{}, nil
	default:
		return graph.Outcome{}, nil
	}
}

func (o *Orchestrator) nodeTaskGeneration(ctx context.Context, s *graph.State) (graph.Outcome, error) {
	// A severe marker here means we arrived on a retry redirect.
	s.Validation = graph.ValidationUnset

	req := generate.Request{
		GoalDescription:  s.GoalDescription,
		History:          o.ledger.Recent(s.UserID, historyWindow),
		SuggestedChanges: s.SuggestedChanges,
		Outline:          s.Draft,
	}
	draft, err := o.generator.Generate(ctx, req)
	if err != nil {
		o.logger.With(logging.ContextFields(ctx)...).Warn("task generation failed, retrying once", zap.Error(err))
		draft, err = o.generator.Generate(ctx, req)
	}
	if err != nil {
		o.logger.With(logging.ContextFields(ctx)...).Error("task generation failed twice", zap.Error(err))
		s.Validation = graph.ValidationSevere
		return graph.Outcome{}, nil
	}

	s.Draft = draft
	// Re-entry from a later gate means the second confirmation must be
	// asked again for the regenerated tasks.
	s.ConfirmB = graph.DecisionPending
	return graph.Outcome{}, nil
}

func (o *Orchestrator) nodeWorldModel(ctx context.Context, s *graph.State) (graph.Outcome, error) {
	existing, err := o.store.ListScheduledTasksForUser(ctx, s.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return graph.Outcome{}, fmt.Errorf("load commitments: %w", err)
	}

	anchor := time.Now().Truncate(time.Hour).Add(time.Hour)
	for _, t := range existing {
		if t.PlanID == s.PlanID {
			continue
		}
		if t.EndAt != nil && t.EndAt.After(anchor) {
			anchor = *t.EndAt
		}
	}
	s.ScheduleFrom = &anchor
	return graph.Outcome{}, nil
}

func (o *Orchestrator) nodeCalendarization(ctx context.Context, s *graph.State) (graph.Outcome, error) {
	if s.Draft == nil {
		return graph.Outcome{}, errors.New("no draft to schedule")
	}

	cursor := time.Now().Truncate(time.Hour).Add(time.Hour)
	if s.ScheduleFrom != nil {
		cursor = *s.ScheduleFrom
	}
	defaultMinutes := int(o.planner.TaskDuration.Duration().Minutes())
	if defaultMinutes <= 0 {
		defaultMinutes = 60
	}

	for i := range s.Draft.Tasks {
		t := &s.Draft.Tasks[i]
		if t.DurationMinutes <= 0 {
			t.DurationMinutes = defaultMinutes
		}
		start := cursor
		end := start.Add(time.Duration(t.DurationMinutes) * time.Minute)
		t.StartAt = &start
		t.EndAt = &end
		cursor = end
	}

	o.annotateConflicts(ctx, s)
	return graph.Outcome{}, nil
}

// annotateConflicts flags draft windows that collide with the user's
// already scheduled tasks. Suggestions are gated behind a feature flag;
// the warnings themselves always surface.
func (o *Orchestrator) annotateConflicts(ctx context.Context, s *graph.State) {
	existing, err := o.store.ListScheduledTasksForUser(ctx, s.UserID)
	if err != nil {
		o.logger.With(logging.ContextFields(ctx)...).Warn("conflict check skipped", zap.Error(err))
		return
	}

	for _, dt := range s.Draft.Tasks {
		candidate := plan.Task{StartAt: dt.StartAt, EndAt: dt.EndAt}
		for _, busy := range existing {
			if busy.PlanID == s.PlanID || !candidate.Overlaps(busy) {
				continue
			}
			warning := fmt.Sprintf("%q overlaps your existing task %q", dt.Title, busy.Title)
			if o.features.ConflictSuggestions && busy.EndAt != nil {
				warning += fmt.Sprintf("; consider starting it after %s", busy.EndAt.Format("Mon Jan 2 15:04"))
			}
			s.Warnings = append(s.Warnings, warning)
		}
	}
}

func (o *Orchestrator) nodeValidation(_ context.Context, s *graph.State) (graph.Outcome, error) {
	if s.Draft == nil || len(s.Draft.Tasks) == 0 {
		s.Validation = graph.ValidationSevere
		return graph.Outcome{}, nil
	}

	severity := graph.ValidationClean
	for i, t := range s.Draft.Tasks {
		if t.Title == "" || t.DurationMinutes <= 0 || t.StartAt == nil || t.EndAt == nil {
			severity = graph.ValidationSevere
			break
		}
		a := plan.Task{StartAt: t.StartAt, EndAt: t.EndAt}
		for _, other := range s.Draft.Tasks[i+1:] {
			b := plan.Task{StartAt: other.StartAt, EndAt: other.EndAt}
			if a.Overlaps(b) {
				severity = graph.ValidationMinor
				s.Warnings = append(s.Warnings, fmt.Sprintf("%q and %q are scheduled at the same time", t.Title, other.Title))
			}
		}
	}

	s.Validation = severity
	return graph.Outcome{}, nil
}

func (o *Orchestrator) nodePersistence(ctx context.Context, s *graph.State) (graph.Outcome, error) {
	if s.GoalID == 0 {
		goal, err := o.store.CreateGoal(ctx, s.UserID, s.GoalDescription)
		if err != nil {
			return graph.Outcome{}, fmt.Errorf("create goal: %w", err)
		}
		s.GoalID = goal.ID
	}

	p := plan.Plan{
		GoalID:  s.GoalID,
		UserID:  s.UserID,
		Title:   s.Draft.Title,
		Summary: s.Draft.Summary,
		Status:  plan.StatusProposed,
	}
	tasks := make([]plan.Task, 0, len(s.Draft.Tasks))
	for i, dt := range s.Draft.Tasks {
		tasks = append(tasks, plan.Task{
			Position:        i,
			Title:           dt.Title,
			Notes:           dt.Notes,
			DurationMinutes: dt.DurationMinutes,
			StartAt:         dt.StartAt,
			EndAt:           dt.EndAt,
		})
	}

	created, _, err := o.store.CreatePlan(ctx, p, tasks)
	if err != nil {
		return graph.Outcome{}, fmt.Errorf("persist plan: %w", err)
	}
	s.PlanID = created.ID
	o.recordPlanCreated(s.RunID, created.ID)

	o.logger.With(logging.ContextFields(ctx)...).Info("plan persisted",
		zap.Int64("goal_id", s.GoalID),
		zap.Int64("plan_id", created.ID),
	)

	prompt := fmt.Sprintf("Saved plan #%d (%s) with %d tasks. Reply \"approve\", \"refine\", or \"reject\" to record your feedback.",
		created.ID, created.Title, len(tasks))
	return graph.Outcome{Prompt: prompt}, nil
}

func (o *Orchestrator) nodeClarification(_ context.Context, s *graph.State) (graph.Outcome, error) {
	switch gateDecision(s, s.ClarifyReturn) {
	case graph.DecisionUnknown, graph.DecisionPending:
		setGateDecision(s, s.ClarifyReturn, graph.DecisionPending)
		return graph.Outcome{
			Suspend: true,
			Prompt:  "Sorry, I didn't catch that. Please answer with \"confirm\", \"revise\", or \"cancel\".",
		}, nil
	default:
		// Decision arrived on resume; route back to the gate that asked.
		return graph.Outcome{}, nil
	}
}
