package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id     UUID PRIMARY KEY,
		telegram_id BIGINT UNIQUE NOT NULL,
		username    VARCHAR(255),
		first_name  VARCHAR(255),
		last_name   VARCHAR(255),
		role        VARCHAR(50) NOT NULL DEFAULT 'admin',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS companies (
		company_id  UUID PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		description TEXT,
		created_by  UUID NOT NULL REFERENCES users(user_id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		task_id         UUID PRIMARY KEY,
		title           VARCHAR(500) NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		company_id      UUID NOT NULL REFERENCES companies(company_id),
		initiator_name  VARCHAR(255) NOT NULL,
		initiator_phone VARCHAR(20) NOT NULL,
		assignee_id     UUID NOT NULL REFERENCES users(user_id),
		creator_id      UUID NOT NULL REFERENCES users(user_id),
		is_urgent       BOOLEAN NOT NULL DEFAULT FALSE,
		status          VARCHAR(20) NOT NULL DEFAULT 'new',
		deadline        TIMESTAMPTZ NOT NULL,
		reminded_at     TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE tasks ADD COLUMN IF NOT EXISTS reminded_at TIMESTAMPTZ`,
	`CREATE TABLE IF NOT EXISTS task_comments (
		comment_id   UUID PRIMARY KEY,
		task_id      UUID NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
		user_id      UUID NOT NULL REFERENCES users(user_id),
		comment_text TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS task_files (
		file_id        UUID PRIMARY KEY,
		task_id        UUID NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
		user_id        UUID NOT NULL REFERENCES users(user_id),
		file_name      VARCHAR(255) NOT NULL,
		file_path      VARCHAR(500) NOT NULL,
		file_size      BIGINT NOT NULL,
		content_type   VARCHAR(100) NOT NULL,
		thumbnail_path VARCHAR(500),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_company ON tasks(company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(deadline)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_task_comments_task ON task_comments(task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_task_files_task ON task_files(task_id)`,
}

// Migrate creates the tables and indexes if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}
