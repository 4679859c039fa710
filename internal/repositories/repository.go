package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"taskbot/internal/authz"
	"taskbot/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStatusMismatch is returned by compare-and-set status writes when the
	// stored status is no longer the expected one.
	ErrStatusMismatch = errors.New("task status does not match the expected value")
)

type UserRepository interface {
	// Register inserts the user unless the external id is already known and
	// returns the stored row. The first user ever stored becomes director.
	Register(ctx context.Context, user *models.User) (*models.User, bool, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID int64) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role authz.Role) error
	List(ctx context.Context) ([]models.User, error)
}

type CompanyRepository interface {
	Create(ctx context.Context, company *models.Company) error
	FindByID(ctx context.Context, id string) (*models.Company, error)
	ListAll(ctx context.Context) ([]models.Company, error)
	// ListForAssignee returns companies with at least one task assigned to the user.
	ListForAssignee(ctx context.Context, userID string) ([]models.Company, error)
	// Rollup counts tasks per company, restricted to one assignee when set.
	Rollup(ctx context.Context, assigneeID *string) ([]models.CompanyRollup, error)
}

type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.TaskSummary, error)
	TransitionStatus(ctx context.Context, id string, from, to models.TaskStatus) (*models.Task, error)
	// MarkOverdue moves every open task whose deadline is before now to
	// overdue in one statement and returns the rows it changed.
	MarkOverdue(ctx context.Context, now time.Time) ([]models.Task, error)
	// ListApproaching returns open tasks with now < deadline <= until.
	ListApproaching(ctx context.Context, now, until time.Time) ([]models.Task, error)
	// ClaimReminders is ListApproaching restricted to tasks never reminded,
	// stamping reminded_at on the returned rows in the same statement.
	ClaimReminders(ctx context.Context, now, until time.Time) ([]models.Task, error)
}

type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByTask(ctx context.Context, taskID string) ([]models.Comment, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	ListByTask(ctx context.Context, taskID string) ([]models.Attachment, error)
}

// Gateway bundles the repositories of one storage driver.
type Gateway struct {
	Users       UserRepository
	Companies   CompanyRepository
	Tasks       TaskRepository
	Comments    CommentRepository
	Attachments AttachmentRepository
}

func NewPostgresGateway(db *sql.DB, timeout time.Duration) *Gateway {
	return &Gateway{
		Users:       NewUserRepository(db, timeout),
		Companies:   NewCompanyRepository(db, timeout),
		Tasks:       NewTaskRepository(db, timeout),
		Comments:    NewCommentRepository(db, timeout),
		Attachments: NewAttachmentRepository(db, timeout),
	}
}

func Open(dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}
