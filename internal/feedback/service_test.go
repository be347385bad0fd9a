package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/store"
)

func newFixture(t *testing.T) (Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, zap.NewNop(), nil)
	require.NoError(t, err)
	return svc, st
}

func seedPlan(t *testing.T, st *store.Store, goalID int64) plan.Plan {
	t.Helper()
	p, _, err := st.CreatePlan(context.Background(), plan.Plan{
		GoalID: goalID, UserID: 1, Title: "plan", Summary: "s",
	}, []plan.Task{{Title: "task", DurationMinutes: 30}})
	require.NoError(t, err)
	return p
}

func seedGoal(t *testing.T, st *store.Store) plan.Goal {
	t.Helper()
	g, err := st.CreateGoal(context.Background(), 1, "goal")
	require.NoError(t, err)
	return g
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")
}

func TestSubmit_UnknownPlanIsNotFound(t *testing.T) {
	svc, _ := newFixture(t)

	_, err := svc.Submit(context.Background(), SubmitRequest{
		PlanID: 99999, UserID: 1, Action: "approve",
	})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSubmit_MissingActionIsInvalidInput(t *testing.T) {
	svc, st := newFixture(t)
	g := seedGoal(t, st)
	p := seedPlan(t, st, g.ID)

	_, err := svc.Submit(context.Background(), SubmitRequest{PlanID: p.ID, UserID: 1})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = svc.Submit(context.Background(), SubmitRequest{
		PlanID: p.ID, UserID: 1, Action: "maybe-later",
	})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestSubmit_GoalMismatchIsInvalidInput(t *testing.T) {
	svc, st := newFixture(t)
	g := seedGoal(t, st)
	p := seedPlan(t, st, g.ID)

	_, err := svc.Submit(context.Background(), SubmitRequest{
		PlanID: p.ID, GoalID: g.ID + 100, UserID: 1, Action: "approve",
	})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestSubmit_SecondSubmissionIsConflict(t *testing.T) {
	svc, st := newFixture(t)
	g := seedGoal(t, st)
	p := seedPlan(t, st, g.ID)

	_, err := svc.Submit(context.Background(), SubmitRequest{
		PlanID: p.ID, UserID: 1, Action: "approve",
	})
	require.NoError(t, err)

	// Regardless of action on either call
	for _, action := range []string{"approve", "request_refinement", "reject"} {
		_, err = svc.Submit(context.Background(), SubmitRequest{
			PlanID: p.ID, UserID: 1, Action: action,
		})
		assert.True(t, errors.Is(err, ErrConflict), "action %s", action)
	}
}

func TestSubmit_ApproveUnapprovesSiblings(t *testing.T) {
	svc, st := newFixture(t)
	ctx := context.Background()
	g := seedGoal(t, st)

	sibling := seedPlan(t, st, g.ID)
	target := seedPlan(t, st, g.ID)

	receipt, err := svc.Submit(ctx, SubmitRequest{
		PlanID: sibling.ID, UserID: 1, Action: "approve",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, receipt.Unapproved)

	receipt, err = svc.Submit(ctx, SubmitRequest{
		PlanID: target.ID, UserID: 1, Action: "approve",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Unapproved)
	assert.Equal(t, plan.ActionApprove, receipt.Feedback.Action)

	// Invariant: 0 or 1 approved plans per goal
	n, err := st.CountApprovedPlans(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetPlan(ctx, target.ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)

	was, err := st.GetPlan(ctx, sibling.ID)
	require.NoError(t, err)
	assert.False(t, was.Approved)
}

func TestSubmit_RefinementSignalsOrchestrator(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var gotPlanID int64
	var gotChanges string
	svc, err := NewService(st, zap.NewNop(), func(_ context.Context, planID int64, changes string) {
		gotPlanID = planID
		gotChanges = changes
	})
	require.NoError(t, err)

	g := seedGoal(t, st)
	p := seedPlan(t, st, g.ID)

	receipt, err := svc.Submit(context.Background(), SubmitRequest{
		PlanID: p.ID, UserID: 1, Action: "request_refinement",
		SuggestedChanges: "add milestones",
	})
	require.NoError(t, err)
	assert.True(t, receipt.RefinementRequested)
	assert.Equal(t, p.ID, gotPlanID)
	assert.Equal(t, "add milestones", gotChanges)

	got, err := st.GetPlan(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusNeedsRefinement, got.Status)
	assert.False(t, got.Approved)
}

func TestSubmit_RejectLeavesApprovalUntouched(t *testing.T) {
	svc, st := newFixture(t)
	ctx := context.Background()
	g := seedGoal(t, st)

	approved := seedPlan(t, st, g.ID)
	_, err := svc.Submit(ctx, SubmitRequest{PlanID: approved.ID, UserID: 1, Action: "approve"})
	require.NoError(t, err)

	other := seedPlan(t, st, g.ID)
	_, err = svc.Submit(ctx, SubmitRequest{PlanID: other.ID, UserID: 1, Action: "reject"})
	require.NoError(t, err)

	// The previously approved sibling keeps its approval
	still, err := st.GetPlan(ctx, approved.ID)
	require.NoError(t, err)
	assert.True(t, still.Approved)

	rejected, err := st.GetPlan(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusRejected, rejected.Status)
	assert.False(t, rejected.Approved)
}
