package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskbot/internal/models"
)

const taskColumns = `task_id, title, description, company_id, initiator_name, initiator_phone,
	assignee_id, creator_id, is_urgent, status, deadline, reminded_at, created_at, updated_at`

// openStatuses is the set the scheduler may act on.
const openStatuses = `('new', 'in_progress')`

type taskRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewTaskRepository(db *sql.DB, timeout time.Duration) TaskRepository {
	return &taskRepository{db: db, timeout: timeout}
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.CompanyID, &t.InitiatorName, &t.InitiatorPhone,
		&t.AssigneeID, &t.CreatorID, &t.Urgent, &t.Status, &t.Deadline, &t.RemindedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	defer rows.Close()
	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	query := `
		INSERT INTO tasks (
			task_id, title, description, company_id, initiator_name, initiator_phone,
			assignee_id, creator_id, is_urgent, status, deadline, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		task.ID, task.Title, task.Description, task.CompanyID, task.InitiatorName, task.InitiatorPhone,
		task.AssigneeID, task.CreatorID, task.Urgent, task.Status, task.Deadline, task.CreatedAt, task.UpdatedAt,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	t, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, id))
	if err != nil {
		return nil, notFound(err, "task")
	}
	return t, nil
}

func (r *taskRepository) List(ctx context.Context, filter models.TaskFilter) ([]models.TaskSummary, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	baseQuery := `SELECT t.task_id, t.title, t.description, t.is_urgent, t.status, t.deadline, t.created_at,
		t.company_id, c.name, t.assignee_id
		FROM tasks t JOIN companies c ON c.company_id = t.company_id`

	conditions := []string{}
	args := []any{}
	argID := 1

	if filter.AssigneeID != nil {
		conditions = append(conditions, fmt.Sprintf("t.assignee_id = $%d", argID))
		args = append(args, *filter.AssigneeID)
		argID++
	}
	if filter.CompanyID != nil {
		conditions = append(conditions, fmt.Sprintf("t.company_id = $%d", argID))
		args = append(args, *filter.CompanyID)
		argID++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", argID))
		args = append(args, *filter.Status)
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	baseQuery += " ORDER BY t.created_at DESC"

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TaskSummary
	for rows.Next() {
		var s models.TaskSummary
		if err := rows.Scan(
			&s.ID, &s.Title, &s.Description, &s.Urgent, &s.Status, &s.Deadline, &s.CreatedAt,
			&s.CompanyID, &s.CompanyName, &s.AssigneeID,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *taskRepository) TransitionStatus(ctx context.Context, id string, from, to models.TaskStatus) (*models.Task, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	t, err := scanTask(r.db.QueryRowContext(ctx,
		`UPDATE tasks SET status = $1, updated_at = NOW()
		 WHERE task_id = $2 AND status = $3
		 RETURNING `+taskColumns, to, id, from))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update task status: %w", err)
	}

	// Nothing matched: either the task is gone or someone moved it first.
	var current models.TaskStatus
	err = r.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE task_id = $1`, id).Scan(&current)
	if err != nil {
		return nil, notFound(err, "task")
	}
	return nil, fmt.Errorf("task %s is %s, expected %s: %w", id, current, from, ErrStatusMismatch)
}

func (r *taskRepository) MarkOverdue(ctx context.Context, now time.Time) ([]models.Task, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`UPDATE tasks SET status = 'overdue', updated_at = NOW()
		 WHERE deadline < $1 AND status IN `+openStatuses+`
		 RETURNING `+taskColumns, now)
	if err != nil {
		return nil, fmt.Errorf("mark overdue: %w", err)
	}
	return scanTasks(rows)
}

func (r *taskRepository) ListApproaching(ctx context.Context, now, until time.Time) ([]models.Task, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status IN `+openStatuses+` AND deadline > $1 AND deadline <= $2
		 ORDER BY deadline`, now, until)
	if err != nil {
		return nil, fmt.Errorf("list approaching: %w", err)
	}
	return scanTasks(rows)
}

func (r *taskRepository) ClaimReminders(ctx context.Context, now, until time.Time) ([]models.Task, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`UPDATE tasks SET reminded_at = $1
		 WHERE status IN `+openStatuses+` AND deadline > $1 AND deadline <= $2 AND reminded_at IS NULL
		 RETURNING `+taskColumns, now, until)
	if err != nil {
		return nil, fmt.Errorf("claim reminders: %w", err)
	}
	return scanTasks(rows)
}
