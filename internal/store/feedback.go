package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
)

// GetFeedback fetches the feedback row for a plan, if any.
func (s *Store) GetFeedback(ctx context.Context, planID int64) (plan.Feedback, error) {
	var fb plan.Feedback
	var action, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, plan_id, goal_id, user_id, action, feedback_text, suggested_changes, created_at
		 FROM plan_feedback WHERE plan_id = ?;`, planID).
		Scan(&fb.ID, &fb.PlanID, &fb.GoalID, &fb.UserID, &action, &fb.FeedbackText,
			&fb.SuggestedChanges, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Feedback{}, fmt.Errorf("feedback for plan %d: %w", planID, ErrNotFound)
	}
	if err != nil {
		return plan.Feedback{}, fmt.Errorf("get feedback: %w", err)
	}

	fb.Action = plan.FeedbackAction(action)
	if fb.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return plan.Feedback{}, fmt.Errorf("parse feedback created_at: %w", err)
	}
	return fb, nil
}

// insertFeedback inserts the feedback row inside tx, translating the
// UNIQUE(plan_id) violation into ErrConflict.
func insertFeedback(ctx context.Context, tx *sql.Tx, fb *plan.Feedback) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM plan_feedback WHERE plan_id = ?;`, fb.PlanID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing feedback: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("feedback already exists for plan %d: %w", fb.PlanID, ErrConflict)
	}

	now := time.Now().UTC()
	fb.CreatedAt = now

	res, err := tx.ExecContext(ctx,
		`INSERT INTO plan_feedback (plan_id, goal_id, user_id, action, feedback_text, suggested_changes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?);`,
		fb.PlanID, fb.GoalID, fb.UserID, string(fb.Action), fb.FeedbackText,
		fb.SuggestedChanges, now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}

	fb.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert feedback: last insert id: %w", err)
	}
	return nil
}

// SubmitApproval records approve feedback and flips approval flags as one
// atomic unit: the target plan becomes the only approved plan under its
// goal. Returns the feedback row and the number of sibling plans
// unapproved as a side effect.
func (s *Store) SubmitApproval(ctx context.Context, fb plan.Feedback) (plan.Feedback, int, error) {
	var unapproved int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertFeedback(ctx, tx, &fb); err != nil {
			return err
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)

		res, err := tx.ExecContext(ctx,
			`UPDATE plans SET approved = 0, status = ?, updated_at = ?
			 WHERE goal_id = ? AND id != ? AND approved = 1;`,
			string(plan.StatusProposed), now, fb.GoalID, fb.PlanID)
		if err != nil {
			return fmt.Errorf("unapprove siblings: %w", err)
		}
		if unapproved, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("unapprove siblings: rows affected: %w", err)
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE plans SET approved = 1, status = ?, updated_at = ? WHERE id = ?;`,
			string(plan.StatusApproved), now, fb.PlanID)
		if err != nil {
			return fmt.Errorf("approve plan: %w", err)
		}
		return requireRowAffected(res, fb.PlanID)
	})
	if err != nil {
		return plan.Feedback{}, 0, err
	}

	return fb, int(unapproved), nil
}

// SubmitRefinement records request_refinement feedback and marks the plan
// as needing refinement. Approval flags are untouched.
func (s *Store) SubmitRefinement(ctx context.Context, fb plan.Feedback) (plan.Feedback, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertFeedback(ctx, tx, &fb); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE plans SET status = ?, updated_at = ? WHERE id = ?;`,
			string(plan.StatusNeedsRefinement), time.Now().UTC().Format(time.RFC3339Nano), fb.PlanID)
		if err != nil {
			return fmt.Errorf("mark needs_refinement: %w", err)
		}
		return requireRowAffected(res, fb.PlanID)
	})
	if err != nil {
		return plan.Feedback{}, err
	}
	return fb, nil
}

// SubmitRejection records reject feedback and marks the plan rejected.
// Approval state on the plan and its siblings is untouched.
func (s *Store) SubmitRejection(ctx context.Context, fb plan.Feedback) (plan.Feedback, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertFeedback(ctx, tx, &fb); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE plans SET status = ?, updated_at = ? WHERE id = ?;`,
			string(plan.StatusRejected), time.Now().UTC().Format(time.RFC3339Nano), fb.PlanID)
		if err != nil {
			return fmt.Errorf("mark rejected: %w", err)
		}
		return requireRowAffected(res, fb.PlanID)
	})
	if err != nil {
		return plan.Feedback{}, err
	}
	return fb, nil
}

// CountApprovedPlans returns how many plans under the goal carry
// approved = true. The invariant is that this never exceeds 1.
func (s *Store) CountApprovedPlans(ctx context.Context, goalID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM plans WHERE goal_id = ? AND approved = 1;`, goalID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count approved plans: %w", err)
	}
	return n, nil
}
