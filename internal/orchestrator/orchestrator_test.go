package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/config"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/feedback"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/generate"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/intent"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/ledger"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/store"
)

const testUser int64 = 42

var testMapping = map[string]intent.Intent{
	"plan my marathon":       intent.CreateNewPlan,
	"approve the plan":       intent.ApprovePlan,
	"reject the plan":        intent.RejectPlan,
	"refine the plan please": intent.RefinePlan,
	"show my plan":           intent.ViewPlan,
	"show my tasks":          intent.ViewTasks,
	"make it easier":         intent.RevisePlan,
	"reschedule everything":  intent.RescheduleTask,
	"cancel everything":      intent.CancelPlan,
	"hello there":            intent.Greeting,
}

type env struct {
	o   *Orchestrator
	st  *store.Store
	led *ledger.Ledger
}

func newEnv(t *testing.T, gen generate.Generator, features config.FeatureFlags) *env {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	led := ledger.New(50)
	fb, err := feedback.NewService(st, zap.NewNop(), nil)
	require.NoError(t, err)

	o, err := New(Options{
		Store:      st,
		Ledger:     led,
		Classifier: &intent.StaticClassifier{Mapping: testMapping, Fallback: intent.Smalltalk},
		Generator:  gen,
		Feedback:   fb,
		Logger:     zap.NewNop(),
		Planner: config.PlannerConfig{
			MaxIterations: 5,
			TaskDuration:  config.Duration(time.Hour),
		},
		Features: features,
	})
	require.NoError(t, err)

	return &env{o: o, st: st, led: led}
}

func allFlags() config.FeatureFlags {
	return config.FeatureFlags{Undo: true, ConflictSuggestions: true}
}

// createPlan walks a full goal-to-persistence run and returns the final
// turn result.
func (e *env) createPlan(t *testing.T) *TurnResult {
	t.Helper()
	ctx := context.Background()

	res, err := e.o.HandleTurn(ctx, testUser, "plan my marathon")
	require.NoError(t, err)
	require.True(t, res.Suspended)

	res, err = e.o.HandleTurn(ctx, testUser, "confirm")
	require.NoError(t, err)
	require.True(t, res.Suspended)

	res, err = e.o.HandleTurn(ctx, testUser, "confirm")
	require.NoError(t, err)
	require.False(t, res.Suspended)
	require.NotZero(t, res.PlanID)
	return res
}

func TestHandleTurn_CreatePlanHappyPath(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	res, err := e.o.HandleTurn(ctx, testUser, "plan my marathon")
	require.NoError(t, err)
	assert.True(t, res.Suspended)
	assert.Equal(t, intent.CreateNewPlan, res.Intent)
	assert.NotEmpty(t, res.RunID)
	assert.Contains(t, res.Reply, "outline")

	snap, err := e.st.LoadRunSnapshotForUser(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, NodeConfirmA, snap.Node)

	res, err = e.o.HandleTurn(ctx, testUser, "confirm")
	require.NoError(t, err)
	assert.True(t, res.Suspended)
	assert.Contains(t, res.Reply, "schedule")

	res, err = e.o.HandleTurn(ctx, testUser, "confirm")
	require.NoError(t, err)
	assert.False(t, res.Suspended)
	assert.Contains(t, res.Reply, "Saved plan #")
	assert.NotZero(t, res.PlanID)
	assert.NotZero(t, res.GoalID)

	p, err := e.st.GetPlan(ctx, res.PlanID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusProposed, p.Status)

	tasks, err := e.st.ListTasks(ctx, res.PlanID)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	for _, task := range tasks {
		assert.NotNil(t, task.StartAt)
		assert.NotNil(t, task.EndAt)
	}

	_, err = e.st.LoadRunSnapshotForUser(ctx, testUser)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleTurn_ReviseAtFirstGate(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	res, err := e.o.HandleTurn(ctx, testUser, "plan my marathon")
	require.NoError(t, err)
	require.True(t, res.Suspended)

	// Revision regenerates the outline and asks again.
	res, err = e.o.HandleTurn(ctx, testUser, "revise it, add rest days")
	require.NoError(t, err)
	assert.True(t, res.Suspended)
	assert.Contains(t, res.Reply, "outline")

	snap, err := e.st.LoadRunSnapshotForUser(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, NodeConfirmA, snap.Node)
}

func TestHandleTurn_CancelAtGate(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	_, err := e.o.HandleTurn(ctx, testUser, "plan my marathon")
	require.NoError(t, err)

	res, err := e.o.HandleTurn(ctx, testUser, "cancel")
	require.NoError(t, err)
	assert.False(t, res.Suspended)
	assert.Contains(t, res.Reply, "stopped")

	_, err = e.st.LoadRunSnapshotForUser(ctx, testUser)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleTurn_UnknownAnswerClarifies(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	_, err := e.o.HandleTurn(ctx, testUser, "plan my marathon")
	require.NoError(t, err)

	res, err := e.o.HandleTurn(ctx, testUser, "banana banana")
	require.NoError(t, err)
	assert.True(t, res.Suspended)
	assert.Contains(t, res.Reply, "didn't catch")

	snap, err := e.st.LoadRunSnapshotForUser(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, NodeClarification, snap.Node)

	// A real answer routes back through the gate it belongs to.
	res, err = e.o.HandleTurn(ctx, testUser, "confirm")
	require.NoError(t, err)
	assert.True(t, res.Suspended)
	assert.Contains(t, res.Reply, "schedule")
}

// Five revision round-trips through the first gate are allowed; the
// sixth redirection ends the run with a restart prompt instead of
// looping again.
func TestHandleTurn_IterationCeiling(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	res, err := e.o.HandleTurn(ctx, testUser, "plan my marathon")
	require.NoError(t, err)
	require.True(t, res.Suspended)

	for i := 0; i < 5; i++ {
		res, err = e.o.HandleTurn(ctx, testUser, fmt.Sprintf("revise attempt %d", i))
		require.NoError(t, err)
		require.True(t, res.Suspended, "revision %d should still be allowed", i+1)
	}

	res, err = e.o.HandleTurn(ctx, testUser, "revise one more time")
	require.NoError(t, err)
	assert.False(t, res.Suspended)
	assert.Contains(t, res.Reply, "start fresh")

	_, err = e.st.LoadRunSnapshotForUser(ctx, testUser)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleTurn_GenerationRetriesOnce(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{FailuresBeforeSuccess: 1}, allFlags())

	res, err := e.o.HandleTurn(context.Background(), testUser, "plan my marathon")
	require.NoError(t, err)
	assert.True(t, res.Suspended)
}

// flakyGenerator fails task generation a set number of times while the
// outline always succeeds.
type flakyGenerator struct {
	generateFailures int
	generateCalls    int
}

func (g *flakyGenerator) Outline(_ context.Context, req generate.Request) (*plan.Draft, error) {
	return (&generate.StaticGenerator{}).Outline(context.Background(), req)
}

func (g *flakyGenerator) Generate(ctx context.Context, req generate.Request) (*plan.Draft, error) {
	g.generateCalls++
	if g.generateCalls <= g.generateFailures {
		return nil, generate.ErrGeneration
	}
	return (&generate.StaticGenerator{}).Generate(ctx, req)
}

func TestHandleTurn_TaskGenerationEscalatesAndRecovers(t *testing.T) {
	// Two failures exhaust the in-node retry; the router sends the run
	// back into generation, where the third call succeeds.
	e := newEnv(t, &flakyGenerator{generateFailures: 2}, allFlags())
	ctx := context.Background()

	_, err := e.o.HandleTurn(ctx, testUser, "plan my marathon")
	require.NoError(t, err)

	res, err := e.o.HandleTurn(ctx, testUser, "confirm")
	require.NoError(t, err)
	assert.True(t, res.Suspended)

	snap, err := e.st.LoadRunSnapshotForUser(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, NodeConfirmB, snap.Node)
}

func TestHandleTurn_FeedbackLifecycle(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	first := e.createPlan(t)

	res, err := e.o.HandleTurn(ctx, testUser, "approve the plan")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "approved")

	p, err := e.st.GetPlan(ctx, first.PlanID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusApproved, p.Status)
	assert.True(t, p.Approved)

	// A revision produces a second plan version under the same goal.
	res, err = e.o.HandleTurn(ctx, testUser, "make it easier")
	require.NoError(t, err)
	require.True(t, res.Suspended)
	second, err := e.o.HandleTurn(ctx, testUser, "confirm")
	require.NoError(t, err)
	require.NotZero(t, second.PlanID)
	assert.Equal(t, first.GoalID, second.GoalID)
	assert.NotEqual(t, first.PlanID, second.PlanID)

	// Approving the new version revokes the old approval.
	res, err = e.o.HandleTurn(ctx, testUser, "approve the plan")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "replaces")

	old, err := e.st.GetPlan(ctx, first.PlanID)
	require.NoError(t, err)
	assert.False(t, old.Approved)

	count, err := e.st.CountApprovedPlans(ctx, first.GoalID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Nothing proposed is left to react to.
	res, err = e.o.HandleTurn(ctx, testUser, "approve the plan")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "no proposed plan")
}

func TestHandleTurn_SecondFeedbackForSamePlanConflicts(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	created := e.createPlan(t)

	_, err := e.o.HandleTurn(ctx, testUser, "approve the plan")
	require.NoError(t, err)

	// The approved plan is no longer proposed, so the turn path cannot
	// hit it again; the direct API can, and must refuse.
	_, _, err = e.o.SubmitFeedback(ctx, feedback.SubmitRequest{
		PlanID: created.PlanID,
		UserID: testUser,
		Action: string(plan.ActionReject),
	})
	assert.ErrorIs(t, err, feedback.ErrConflict)
}

// countingGenerator tracks outline invocations on top of canned drafts.
type countingGenerator struct {
	inner        generate.StaticGenerator
	outlineCalls int
}

func (g *countingGenerator) Outline(ctx context.Context, req generate.Request) (*plan.Draft, error) {
	g.outlineCalls++
	return g.inner.Outline(ctx, req)
}

func (g *countingGenerator) Generate(ctx context.Context, req generate.Request) (*plan.Draft, error) {
	return g.inner.Generate(ctx, req)
}

func TestHandleTurn_RefinementReentersOutline(t *testing.T) {
	gen := &countingGenerator{}
	e := newEnv(t, gen, allFlags())
	ctx := context.Background()

	created := e.createPlan(t)
	outlinesBefore := gen.outlineCalls

	res, err := e.o.HandleTurn(ctx, testUser, "refine the plan please")
	require.NoError(t, err)
	assert.True(t, res.Suspended)
	assert.Contains(t, res.Reply, fmt.Sprintf("rework plan #%d", created.PlanID))

	p, err := e.st.GetPlan(ctx, created.PlanID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusNeedsRefinement, p.Status)

	// The rework starts over from the outline, not from task generation.
	assert.Equal(t, outlinesBefore+1, gen.outlineCalls)
	snap, err := e.st.LoadRunSnapshotForUser(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, NodeConfirmA, snap.Node)

	// Confirming the reworked outline carries the run on to scheduling.
	res, err = e.o.HandleTurn(ctx, testUser, "confirm")
	require.NoError(t, err)
	assert.True(t, res.Suspended)
	assert.Contains(t, res.Reply, "schedule")
}

func TestHandleTurn_ViewPlanAndTasks(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	created := e.createPlan(t)

	res, err := e.o.HandleTurn(ctx, testUser, "show my plan")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, fmt.Sprintf("Plan #%d", created.PlanID))
	assert.Equal(t, created.PlanID, res.PlanID)

	res, err = e.o.HandleTurn(ctx, testUser, "show my tasks")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "scheduled tasks")
}

func TestHandleTurn_ConversationalIntents(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())

	res, err := e.o.HandleTurn(context.Background(), testUser, "hello there")
	require.NoError(t, err)
	assert.False(t, res.Suspended)
	assert.Empty(t, res.RunID)
	assert.NotEmpty(t, res.Reply)
}

func TestHandleTurn_CancelWithoutRunWithdrawsProposedPlan(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	created := e.createPlan(t)

	res, err := e.o.HandleTurn(ctx, testUser, "cancel everything")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "Cancelled")

	p, err := e.st.GetPlan(ctx, created.PlanID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCancelled, p.Status)

	res, err = e.o.HandleTurn(ctx, testUser, "cancel everything")
	require.NoError(t, err)
	assert.Contains(t, res.Reply, "nothing in progress")
}

func TestHandleTurn_RescheduleFlagsConflicts(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	// An existing commitment occupying the first free hour.
	goal, err := e.st.CreateGoal(ctx, testUser, "stay fit")
	require.NoError(t, err)
	start := time.Now().Truncate(time.Hour).Add(time.Hour)
	end := start.Add(2 * time.Hour)
	_, _, err = e.st.CreatePlan(ctx,
		plan.Plan{GoalID: goal.ID, UserID: testUser, Title: "gym block", Status: plan.StatusApproved, Approved: true},
		[]plan.Task{{Title: "gym", DurationMinutes: 120, StartAt: &start, EndAt: &end}})
	require.NoError(t, err)

	// The plan being rescheduled; calendarization restarts it at the
	// first free hour, colliding with the gym block.
	_, _, err = e.st.CreatePlan(ctx,
		plan.Plan{GoalID: goal.ID, UserID: testUser, Title: "reading list", Status: plan.StatusProposed},
		[]plan.Task{{Title: "read chapter one", DurationMinutes: 60}})
	require.NoError(t, err)

	res, err := e.o.HandleTurn(ctx, testUser, "reschedule everything")
	require.NoError(t, err)
	assert.True(t, res.Suspended)
	assert.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "overlaps")
	assert.Contains(t, res.Warnings[0], "consider starting it after")
}

func TestRollback(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())
	ctx := context.Background()

	created := e.createPlan(t)

	reversed, err := e.o.Rollback(ctx, created.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, reversed)

	p, err := e.st.GetPlan(ctx, created.PlanID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCancelled, p.Status)

	// Idempotent: a drained stack reverses nothing.
	reversed, err = e.o.Rollback(ctx, created.RunID)
	require.NoError(t, err)
	assert.Equal(t, 0, reversed)
}

func TestRollback_DisabledByFlag(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, config.FeatureFlags{Undo: false})

	_, err := e.o.Rollback(context.Background(), "run-x")
	assert.ErrorIs(t, err, ErrUndoDisabled)
}

func TestHandleTurn_LedgerRecordsBothSides(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())

	_, err := e.o.HandleTurn(context.Background(), testUser, "hello there")
	require.NoError(t, err)

	recent := e.led.Recent(testUser, 10)
	require.Len(t, recent, 2)
	assert.Equal(t, ledger.KindHuman, recent[0].Kind)
	assert.Equal(t, ledger.KindAssistantFinal, recent[1].Kind)
}

func TestHandleTurn_LogsCarryRunContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fb, err := feedback.NewService(st, zap.NewNop(), nil)
	require.NoError(t, err)

	o, err := New(Options{
		Store:      st,
		Ledger:     ledger.New(50),
		Classifier: &intent.StaticClassifier{Mapping: testMapping, Fallback: intent.Smalltalk},
		Generator:  &generate.StaticGenerator{},
		Feedback:   fb,
		Logger:     zap.New(core),
		Planner: config.PlannerConfig{
			MaxIterations: 5,
			TaskDuration:  config.Duration(time.Hour),
		},
		Features: allFlags(),
	})
	require.NoError(t, err)

	_, err = o.HandleTurn(context.Background(), testUser, "plan my marathon")
	require.NoError(t, err)

	entries := logs.FilterMessage("starting run").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, testUser, fields["user.id"])
	assert.NotEmpty(t, fields["run.id"])
	assert.Equal(t, string(intent.CreateNewPlan), fields["intent"])
}

func TestHandleTurn_EmptyMessage(t *testing.T) {
	e := newEnv(t, &generate.StaticGenerator{}, allFlags())

	_, err := e.o.HandleTurn(context.Background(), testUser, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestMatchDecision(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"yes", "confirm"},
		{"Looks good!", "confirm"},
		{"go ahead", "confirm"},
		{"please revise the mornings", "revise"},
		{"change the second task", "revise"},
		{"cancel", "cancel"},
		{"no, cancel the changes", "cancel"},
		{"what's the weather", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, string(matchDecision(tt.text)))
		})
	}
}
