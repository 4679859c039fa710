package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskbot/internal/models"
)

type commentRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewCommentRepository(db *sql.DB, timeout time.Duration) CommentRepository {
	return &commentRepository{db: db, timeout: timeout}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO task_comments (comment_id, task_id, user_id, comment_text, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		comment.ID, comment.TaskID, comment.AuthorID, comment.Text, comment.CreatedAt,
	).Scan(&comment.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// ListByTask returns comments oldest first, with author names resolved.
func (r *commentRepository) ListByTask(ctx context.Context, taskID string) ([]models.Comment, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT tc.comment_id, tc.task_id, tc.user_id, tc.comment_text, tc.created_at,
		       COALESCE(NULLIF(TRIM(CONCAT(u.first_name, ' ', u.last_name)), ''), u.username, '')
		FROM task_comments tc JOIN users u ON u.user_id = tc.user_id
		WHERE tc.task_id = $1
		ORDER BY tc.created_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Text, &c.CreatedAt, &c.AuthorName); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
