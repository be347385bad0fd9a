package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
)

// CreateGoal inserts a goal and returns it with its ID assigned.
func (s *Store) CreateGoal(ctx context.Context, userID int64, description string) (plan.Goal, error) {
	if description == "" {
		return plan.Goal{}, fmt.Errorf("goal description is required")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (user_id, description, created_at) VALUES (?, ?, ?);`,
		userID, description, now.Format(time.RFC3339Nano))
	if err != nil {
		return plan.Goal{}, fmt.Errorf("create goal: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return plan.Goal{}, fmt.Errorf("create goal: last insert id: %w", err)
	}

	return plan.Goal{ID: id, UserID: userID, Description: description, CreatedAt: now}, nil
}

// GetGoal fetches a goal by ID.
func (s *Store) GetGoal(ctx context.Context, id int64) (plan.Goal, error) {
	var g plan.Goal
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, description, created_at FROM goals WHERE id = ?;`, id).
		Scan(&g.ID, &g.UserID, &g.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Goal{}, fmt.Errorf("goal %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return plan.Goal{}, fmt.Errorf("get goal: %w", err)
	}

	g.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return plan.Goal{}, fmt.Errorf("get goal: parse created_at: %w", err)
	}
	return g, nil
}

// CreatePlan inserts a plan and its tasks atomically; returns the plan
// with IDs assigned.
func (s *Store) CreatePlan(ctx context.Context, p plan.Plan, tasks []plan.Task) (plan.Plan, []plan.Task, error) {
	if p.GoalID == 0 {
		return plan.Plan{}, nil, fmt.Errorf("plan requires a goal_id")
	}
	if p.Status == "" {
		p.Status = plan.StatusProposed
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO plans (goal_id, user_id, title, summary, status, approved, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
			p.GoalID, p.UserID, p.Title, p.Summary, string(p.Status), boolToInt(p.Approved),
			now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}

		p.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert plan: last insert id: %w", err)
		}

		for i := range tasks {
			tasks[i].PlanID = p.ID
			tasks[i].Position = i
			res, err := tx.ExecContext(ctx,
				`INSERT INTO tasks (plan_id, position, title, notes, duration_minutes, start_at, end_at, completed)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
				p.ID, i, tasks[i].Title, tasks[i].Notes, tasks[i].DurationMinutes,
				nullableTime(tasks[i].StartAt), nullableTime(tasks[i].EndAt), boolToInt(tasks[i].Completed))
			if err != nil {
				return fmt.Errorf("insert task %d: %w", i, err)
			}
			tasks[i].ID, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("insert task %d: last insert id: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return plan.Plan{}, nil, err
	}

	return p, tasks, nil
}

// GetPlan fetches a plan by ID.
func (s *Store) GetPlan(ctx context.Context, id int64) (plan.Plan, error) {
	return scanPlanRow(s.db.QueryRowContext(ctx,
		`SELECT id, goal_id, user_id, title, summary, status, approved, created_at, updated_at
		 FROM plans WHERE id = ?;`, id), id)
}

// ListPlansByGoal returns all plans under a goal, newest first.
func (s *Store) ListPlansByGoal(ctx context.Context, goalID int64) ([]plan.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, goal_id, user_id, title, summary, status, approved, created_at, updated_at
		 FROM plans WHERE goal_id = ? ORDER BY id DESC;`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list plans by goal: %w", err)
	}
	defer rows.Close()
	return scanPlans(rows)
}

// ListPlansByUser returns all plans owned by a user, newest first.
func (s *Store) ListPlansByUser(ctx context.Context, userID int64) ([]plan.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, goal_id, user_id, title, summary, status, approved, created_at, updated_at
		 FROM plans WHERE user_id = ? ORDER BY id DESC;`, userID)
	if err != nil {
		return nil, fmt.Errorf("list plans by user: %w", err)
	}
	defer rows.Close()
	return scanPlans(rows)
}

// LatestProposedPlan returns the user's most recent plan still awaiting
// feedback.
func (s *Store) LatestProposedPlan(ctx context.Context, userID int64) (plan.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, goal_id, user_id, title, summary, status, approved, created_at, updated_at
		 FROM plans WHERE user_id = ? AND status = ? ORDER BY id DESC LIMIT 1;`,
		userID, string(plan.StatusProposed))
	p, err := scanPlanRow(row, 0)
	if errors.Is(err, ErrNotFound) {
		return plan.Plan{}, fmt.Errorf("no proposed plan for user %d: %w", userID, ErrNotFound)
	}
	return p, err
}

// LatestPlanForUser returns the user's most recent plan in any state.
func (s *Store) LatestPlanForUser(ctx context.Context, userID int64) (plan.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, goal_id, user_id, title, summary, status, approved, created_at, updated_at
		 FROM plans WHERE user_id = ? ORDER BY id DESC LIMIT 1;`, userID)
	p, err := scanPlanRow(row, 0)
	if errors.Is(err, ErrNotFound) {
		return plan.Plan{}, fmt.Errorf("no plan for user %d: %w", userID, ErrNotFound)
	}
	return p, err
}

// UpdatePlanStatus sets a plan's lifecycle status.
func (s *Store) UpdatePlanStatus(ctx context.Context, id int64, status plan.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plans SET status = ?, updated_at = ? WHERE id = ?;`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	return requireRowAffected(res, id)
}

// ListTasks returns a plan's tasks in position order.
func (s *Store) ListTasks(ctx context.Context, planID int64) ([]plan.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plan_id, position, title, notes, duration_minutes, start_at, end_at, completed
		 FROM tasks WHERE plan_id = ? ORDER BY position;`, planID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []plan.Task
	for rows.Next() {
		var t plan.Task
		var startAt, endAt sql.NullString
		var completed int
		if err := rows.Scan(&t.ID, &t.PlanID, &t.Position, &t.Title, &t.Notes,
			&t.DurationMinutes, &startAt, &endAt, &completed); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Completed = completed != 0
		if t.StartAt, err = parseNullableTime(startAt); err != nil {
			return nil, fmt.Errorf("scan task start_at: %w", err)
		}
		if t.EndAt, err = parseNullableTime(endAt); err != nil {
			return nil, fmt.Errorf("scan task end_at: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ListScheduledTasksForUser returns every scheduled task across the
// user's non-rejected plans. The calendarization node uses this as the
// user's existing commitments.
func (s *Store) ListScheduledTasksForUser(ctx context.Context, userID int64) ([]plan.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.plan_id, t.position, t.title, t.notes, t.duration_minutes, t.start_at, t.end_at, t.completed
		 FROM tasks t JOIN plans p ON p.id = t.plan_id
		 WHERE p.user_id = ? AND p.status NOT IN (?, ?) AND t.start_at IS NOT NULL
		 ORDER BY t.start_at;`,
		userID, string(plan.StatusRejected), string(plan.StatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []plan.Task
	for rows.Next() {
		var t plan.Task
		var startAt, endAt sql.NullString
		var completed int
		if err := rows.Scan(&t.ID, &t.PlanID, &t.Position, &t.Title, &t.Notes,
			&t.DurationMinutes, &startAt, &endAt, &completed); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Completed = completed != 0
		if t.StartAt, err = parseNullableTime(startAt); err != nil {
			return nil, fmt.Errorf("scan task start_at: %w", err)
		}
		if t.EndAt, err = parseNullableTime(endAt); err != nil {
			return nil, fmt.Errorf("scan task end_at: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask rewrites a task's mutable fields.
func (s *Store) UpdateTask(ctx context.Context, t plan.Task) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, notes = ?, duration_minutes = ?, start_at = ?, end_at = ?, completed = ?
		 WHERE id = ?;`,
		t.Title, t.Notes, t.DurationMinutes, nullableTime(t.StartAt), nullableTime(t.EndAt),
		boolToInt(t.Completed), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRowAffected(res, t.ID)
}

func scanPlanRow(row *sql.Row, id int64) (plan.Plan, error) {
	var p plan.Plan
	var status, createdAt, updatedAt string
	var approved int
	err := row.Scan(&p.ID, &p.GoalID, &p.UserID, &p.Title, &p.Summary, &status, &approved, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Plan{}, fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return plan.Plan{}, fmt.Errorf("scan plan: %w", err)
	}

	p.Status = plan.Status(status)
	p.Approved = approved != 0
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return plan.Plan{}, fmt.Errorf("parse plan created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return plan.Plan{}, fmt.Errorf("parse plan updated_at: %w", err)
	}
	return p, nil
}

func scanPlans(rows *sql.Rows) ([]plan.Plan, error) {
	var plans []plan.Plan
	for rows.Next() {
		var p plan.Plan
		var status, createdAt, updatedAt string
		var approved int
		if err := rows.Scan(&p.ID, &p.GoalID, &p.UserID, &p.Title, &p.Summary, &status,
			&approved, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		p.Status = plan.Status(status)
		p.Approved = approved != 0

		var err error
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse plan created_at: %w", err)
		}
		if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("parse plan updated_at: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func requireRowAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("row %d: %w", id, ErrNotFound)
	}
	return nil
}
