package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/feedback"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/graph"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/intent"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/ledger"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/logging"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/store"
)

// TurnResult is the visible outcome of one user turn.
type TurnResult struct {
	RunID     string        `json:"run_id,omitempty"`
	Intent    intent.Intent `json:"intent"`
	Reply     string        `json:"reply"`
	Suspended bool          `json:"suspended"`
	GoalID    int64         `json:"goal_id,omitempty"`
	PlanID    int64         `json:"plan_id,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
}

// HandleTurn processes one user message: resume a suspended run if the
// user has one, otherwise classify the message and dispatch it. Turns
// for the same user are serialized.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID int64, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if userID <= 0 {
		return nil, errors.New("user id is required")
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.turn")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", userID))
	ctx = logging.WithUserID(ctx, userID)

	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	o.ledger.Append(userID, []ledger.Message{{
		Kind: ledger.KindHuman, Content: text, Timestamp: time.Now(),
	}})

	snap, err := o.store.LoadRunSnapshotForUser(ctx, userID)
	switch {
	case err == nil:
		return o.resumeRun(ctx, snap, text)
	case errors.Is(err, store.ErrNotFound):
		return o.dispatch(ctx, userID, text)
	default:
		return nil, fmt.Errorf("load run snapshot: %w", err)
	}
}

// resumeRun parses the inbound message as a confirmation decision and
// restarts the suspended run at the node it stopped at.
func (o *Orchestrator) resumeRun(ctx context.Context, snap store.RunSnapshot, text string) (*TurnResult, error) {
	s, err := graph.UnmarshalState(snap.State)
	if err != nil {
		// The snapshot is unusable; clear it so the user is not stuck.
		_ = o.store.DeleteRunSnapshot(ctx, snap.RunID)
		return nil, fmt.Errorf("restore run %s: %w", snap.RunID, err)
	}

	gate := snap.Node
	if gate == NodeClarification {
		gate = s.ClarifyReturn
	}

	decision := o.parseDecision(ctx, snap.UserID, text)
	setGateDecision(s, gate, decision)
	if decision == graph.DecisionRevise {
		s.SuggestedChanges = text
	}

	ctx = logging.WithRunID(ctx, snap.RunID)
	ctx = logging.WithIntent(ctx, string(s.Intent))
	o.logger.With(logging.ContextFields(ctx)...).Info("resuming run",
		zap.String("node", snap.Node),
		zap.String("decision", string(decision)),
	)

	res, err := o.engine.Run(ctx, s, snap.Node)
	return o.finishRun(ctx, s, res, err)
}

// dispatch routes a fresh (non-resuming) turn by its classified intent.
func (o *Orchestrator) dispatch(ctx context.Context, userID int64, text string) (*TurnResult, error) {
	label := o.classifier.Classify(ctx, text, o.ledger.Recent(userID, historyWindow))
	if o.turnCounter != nil {
		o.turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", string(label))))
	}

	switch label {
	case intent.CreateNewPlan:
		s := graph.NewState(uuid.NewString(), userID, label, text)
		return o.startRun(ctx, s, NodeIntentRecognition)

	case intent.RevisePlan, intent.AdaptiveReplan:
		return o.regenerateLatest(ctx, userID, label, text)

	case intent.EditExistingPlan, intent.UpdateTask, intent.AddTask,
		intent.DeleteTask, intent.CompleteTask, intent.RescheduleTask:
		start := NodeTaskGeneration
		if label == intent.RescheduleTask {
			start = NodeCalendarization
		}
		return o.runAgainstLatest(ctx, userID, label, text, start)

	case intent.ViewPlan:
		return o.viewPlan(ctx, userID, label)

	case intent.ViewTasks:
		tasks, err := o.store.ListScheduledTasksForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return o.reply(userID, label, renderTasks(tasks)), nil

	case intent.ApprovePlan, intent.RejectPlan, intent.RefinePlan:
		return o.feedbackTurn(ctx, userID, label, text)

	case intent.CancelPlan:
		return o.cancelLatest(ctx, userID, label)

	case intent.AskQuestion, intent.Clarification, intent.Greeting, intent.Smalltalk:
		return o.reply(userID, label, o.converse(ctx, userID, label, text)), nil

	default:
		return nil, fmt.Errorf("%w: %q", intent.ErrUnsupported, label)
	}
}

// startRun executes a new workflow run from the given entry node.
func (o *Orchestrator) startRun(ctx context.Context, s *graph.State, start string) (*TurnResult, error) {
	ctx = logging.WithRunID(ctx, s.RunID)
	ctx = logging.WithIntent(ctx, string(s.Intent))
	o.logger.With(logging.ContextFields(ctx)...).Info("starting run",
		zap.String("entry", start),
	)
	res, err := o.engine.Run(ctx, s, start)
	return o.finishRun(ctx, s, res, err)
}

// finishRun translates an engine result into a turn result: snapshot on
// suspension, cleanup on completion, a restart prompt when the run hit
// the redirection ceiling.
func (o *Orchestrator) finishRun(ctx context.Context, s *graph.State, res *graph.RunResult, err error) (*TurnResult, error) {
	if err != nil {
		_ = o.store.DeleteRunSnapshot(ctx, s.RunID)
		if errors.Is(err, graph.ErrIterationLimit) {
			o.logger.Warn("run hit redirection ceiling", logging.ContextFields(ctx)...)
			msg := "We've gone back and forth on this a few times without landing on a plan. Let's start fresh: tell me the goal again, ideally with what the earlier drafts were missing."
			return o.replyRun(s, msg, false), nil
		}
		return nil, err
	}

	if res.Suspended {
		data, merr := s.Marshal()
		if merr != nil {
			return nil, merr
		}
		snap := store.RunSnapshot{RunID: s.RunID, UserID: s.UserID, Node: res.SuspendedAt, State: data}
		if serr := o.store.SaveRunSnapshot(ctx, snap); serr != nil {
			return nil, fmt.Errorf("save run snapshot: %w", serr)
		}
		return o.replyRun(s, res.Prompt, true), nil
	}

	_ = o.store.DeleteRunSnapshot(ctx, s.RunID)
	reply := res.Prompt
	if reply == "" {
		reply = "Done."
	}
	return o.replyRun(s, reply, false), nil
}

// regenerateLatest starts a revision run seeded from the user's most
// recent plan.
func (o *Orchestrator) regenerateLatest(ctx context.Context, userID int64, label intent.Intent, text string) (*TurnResult, error) {
	p, err := o.store.LatestPlanForUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return o.reply(userID, label, "You don't have a plan yet. Tell me about a goal and I'll draft one."), nil
	}
	if err != nil {
		return nil, err
	}
	return o.startFromPlan(ctx, userID, label, text, p, NodeTaskGeneration)
}

// runAgainstLatest starts an edit run against the user's most recent
// plan, entering at the node the edit needs.
func (o *Orchestrator) runAgainstLatest(ctx context.Context, userID int64, label intent.Intent, text, start string) (*TurnResult, error) {
	p, err := o.store.LatestPlanForUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return o.reply(userID, label, "You don't have a plan to change yet. Tell me about a goal and I'll draft one."), nil
	}
	if err != nil {
		return nil, err
	}
	return o.startFromPlan(ctx, userID, label, text, p, start)
}

// startFromPlan seeds run state with a stored plan's tasks as the
// working draft. Persistence writes the result as a new plan version
// under the same goal.
func (o *Orchestrator) startFromPlan(ctx context.Context, userID int64, label intent.Intent, text string, p plan.Plan, start string) (*TurnResult, error) {
	goal, err := o.store.GetGoal(ctx, p.GoalID)
	if err != nil {
		return nil, err
	}
	tasks, err := o.store.ListTasks(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	s := graph.NewState(uuid.NewString(), userID, label, goal.Description)
	s.GoalID = p.GoalID
	s.PlanID = p.ID
	s.Draft = draftFromPlan(p, tasks)
	s.SuggestedChanges = text
	return o.startRun(ctx, s, start)
}

func draftFromPlan(p plan.Plan, tasks []plan.Task) *plan.Draft {
	d := &plan.Draft{Title: p.Title, Summary: p.Summary}
	for _, t := range tasks {
		d.Tasks = append(d.Tasks, plan.DraftTask{
			Title:           t.Title,
			Notes:           t.Notes,
			DurationMinutes: t.DurationMinutes,
			StartAt:         t.StartAt,
			EndAt:           t.EndAt,
		})
	}
	return d
}

func (o *Orchestrator) viewPlan(ctx context.Context, userID int64, label intent.Intent) (*TurnResult, error) {
	p, err := o.store.LatestPlanForUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return o.reply(userID, label, "You don't have any plans yet. Tell me about a goal to get started."), nil
	}
	if err != nil {
		return nil, err
	}
	tasks, err := o.store.ListTasks(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	out := o.reply(userID, label, renderPlan(p, tasks))
	out.PlanID = p.ID
	out.GoalID = p.GoalID
	return out, nil
}

// cancelLatest handles a cancel intent outside a suspended run: the
// newest proposed plan, if any, is withdrawn.
func (o *Orchestrator) cancelLatest(ctx context.Context, userID int64, label intent.Intent) (*TurnResult, error) {
	p, err := o.store.LatestProposedPlan(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return o.reply(userID, label, "There's nothing in progress to cancel."), nil
	}
	if err != nil {
		return nil, err
	}
	if err := o.store.UpdatePlanStatus(ctx, p.ID, plan.StatusCancelled); err != nil {
		return nil, err
	}
	out := o.reply(userID, label, fmt.Sprintf("Cancelled plan #%d (%s).", p.ID, p.Title))
	out.PlanID = p.ID
	out.GoalID = p.GoalID
	return out, nil
}

// feedbackTurn records feedback on the newest proposed plan. A
// refinement request immediately re-enters the plan outline carrying
// the user's message as suggested changes.
func (o *Orchestrator) feedbackTurn(ctx context.Context, userID int64, label intent.Intent, text string) (*TurnResult, error) {
	p, err := o.store.LatestProposedPlan(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return o.reply(userID, label, "There's no proposed plan awaiting your feedback."), nil
	}
	if err != nil {
		return nil, err
	}

	req := feedback.SubmitRequest{
		PlanID:       p.ID,
		UserID:       userID,
		FeedbackText: text,
	}
	switch label {
	case intent.ApprovePlan:
		req.Action = string(plan.ActionApprove)
	case intent.RejectPlan:
		req.Action = string(plan.ActionReject)
	case intent.RefinePlan:
		req.Action = string(plan.ActionRequestRefinement)
		req.SuggestedChanges = text
	}

	receipt, err := o.feedback.Submit(ctx, req)
	if errors.Is(err, feedback.ErrConflict) {
		return o.reply(userID, label, fmt.Sprintf("Feedback for plan #%d is already recorded; each plan takes exactly one. Ask me to revise the plan if you want a new version to react to.", p.ID)), nil
	}
	if err != nil {
		return nil, err
	}

	if receipt.RefinementRequested {
		res, err := o.startFromPlan(ctx, userID, label, text, p, NodePlanOutline)
		if err != nil {
			return nil, err
		}
		res.Reply = fmt.Sprintf("Got it, I'll rework plan #%d.\n\n%s", p.ID, res.Reply)
		return res, nil
	}

	var msg string
	switch receipt.Feedback.Action {
	case plan.ActionApprove:
		msg = fmt.Sprintf("Plan #%d is approved.", p.ID)
		if receipt.Unapproved > 0 {
			msg += " It replaces a previously approved plan for the same goal."
		}
	case plan.ActionReject:
		msg = fmt.Sprintf("Noted, plan #%d is rejected. Tell me about the goal again if you'd like a different take.", p.ID)
	}
	out := o.reply(userID, label, msg)
	out.PlanID = p.ID
	out.GoalID = p.GoalID
	return out, nil
}

// SubmitFeedback is the HTTP-facing feedback entry point. It serializes
// with the user's turns and, like a refine turn, starts a regeneration
// run when the feedback asks for one.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, req feedback.SubmitRequest) (*feedback.Receipt, *TurnResult, error) {
	ctx = logging.WithUserID(ctx, req.UserID)

	lock := o.userLock(req.UserID)
	lock.Lock()
	defer lock.Unlock()

	receipt, err := o.feedback.Submit(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	var turn *TurnResult
	if receipt.RefinementRequested {
		p, perr := o.store.GetPlan(ctx, req.PlanID)
		if perr != nil {
			return receipt, nil, perr
		}
		turn, err = o.startFromPlan(ctx, req.UserID, intent.RefinePlan, req.SuggestedChanges, p, NodePlanOutline)
		if err != nil {
			return receipt, nil, err
		}
	}
	return receipt, turn, nil
}

const converseSystemPrompt = `You are a friendly personal planning assistant. Answer the
user's message briefly. If they seem to want help reaching a goal, invite them to
describe it so you can draft a plan.`

// converse answers a non-workflow message, via the chat backend when one
// is configured and canned text otherwise.
func (o *Orchestrator) converse(ctx context.Context, userID int64, label intent.Intent, text string) string {
	if o.chat != nil {
		prompt := text
		if recent := o.ledger.Recent(userID, historyWindow); len(recent) > 1 {
			var b strings.Builder
			b.WriteString("Conversation so far:\n")
			for _, m := range recent[:len(recent)-1] {
				fmt.Fprintf(&b, "%s: %s\n", m.Kind, m.Content)
			}
			fmt.Fprintf(&b, "\nUser: %s", text)
			prompt = b.String()
		}
		out, err := o.chat.Complete(ctx, converseSystemPrompt, prompt)
		if err == nil && out != "" {
			return out
		}
		o.logger.Warn("conversational completion failed, using canned reply", zap.Error(err))
	}

	switch label {
	case intent.Greeting:
		return "Hi! Tell me about a goal you're working toward and I'll draft a plan for it."
	case intent.Smalltalk:
		return "Happy to chat, though planning is what I'm best at. Got a goal in mind?"
	case intent.Clarification:
		return "Could you say a bit more about what you'd like to do?"
	default:
		return "I can help you plan toward a goal: describe it and I'll draft the steps."
	}
}

// reply records an assistant message in the ledger and wraps it.
func (o *Orchestrator) reply(userID int64, label intent.Intent, text string) *TurnResult {
	o.ledger.Append(userID, []ledger.Message{{
		Kind: ledger.KindAssistantFinal, Content: text, Timestamp: time.Now(),
	}})
	return &TurnResult{Intent: label, Reply: text}
}

// replyRun records an assistant message for a workflow run's outcome.
func (o *Orchestrator) replyRun(s *graph.State, text string, suspended bool) *TurnResult {
	o.ledger.Append(s.UserID, []ledger.Message{{
		Kind: ledger.KindAssistantFinal, Content: text, Timestamp: time.Now(),
	}})
	return &TurnResult{
		RunID:     s.RunID,
		Intent:    s.Intent,
		Reply:     text,
		Suspended: suspended,
		GoalID:    s.GoalID,
		PlanID:    s.PlanID,
		Warnings:  s.Warnings,
	}
}
