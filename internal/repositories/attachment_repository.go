package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskbot/internal/models"
)

type attachmentRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewAttachmentRepository(db *sql.DB, timeout time.Duration) AttachmentRepository {
	return &attachmentRepository{db: db, timeout: timeout}
}

func (r *attachmentRepository) Create(ctx context.Context, a *models.Attachment) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO task_files (file_id, task_id, user_id, file_name, file_path, file_size, content_type, thumbnail_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		a.ID, a.TaskID, a.UploaderID, a.FileName, a.Path, a.Size, a.ContentType, nullString(a.ThumbnailPath), a.CreatedAt,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (r *attachmentRepository) ListByTask(ctx context.Context, taskID string) ([]models.Attachment, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT tf.file_id, tf.task_id, tf.user_id, tf.file_name, tf.file_path, tf.file_size,
		       tf.content_type, tf.thumbnail_path, tf.created_at,
		       COALESCE(NULLIF(TRIM(CONCAT(u.first_name, ' ', u.last_name)), ''), u.username, '')
		FROM task_files tf JOIN users u ON u.user_id = tf.user_id
		WHERE tf.task_id = $1
		ORDER BY tf.created_at DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		var (
			a     models.Attachment
			thumb sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.TaskID, &a.UploaderID, &a.FileName, &a.Path, &a.Size,
			&a.ContentType, &thumb, &a.CreatedAt, &a.UploaderName); err != nil {
			return nil, err
		}
		a.ThumbnailPath = thumb.String
		out = append(out, a)
	}
	return out, rows.Err()
}
