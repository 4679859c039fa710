// internal/services/task_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskbot/internal/authz"
	"taskbot/internal/metrics"
	"taskbot/internal/models"
	"taskbot/internal/repositories"
	"taskbot/internal/storage"
)

// AttachmentStore persists attachment bytes. storage.LocalStore implements it.
type AttachmentStore interface {
	StoreAttachment(data []byte, name, contentType, taskID string) (*models.StoredFile, error)
}

// TaskService defines the interface for task-related business logic.
type TaskService interface {
	Create(ctx context.Context, in CreateTaskInput) (*models.Task, error)
	ChangeStatus(ctx context.Context, in ChangeStatusInput) (*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.TaskDetail, error)
	AddComment(ctx context.Context, taskID, authorID, text string) (*models.Comment, error)
	ListComments(ctx context.Context, taskID string) ([]models.Comment, error)
	AttachFile(ctx context.Context, in AttachFileInput) (*models.Attachment, error)
	ListAttachments(ctx context.Context, taskID string) ([]models.Attachment, error)
}

type CreateTaskInput struct {
	Title          string
	Description    string
	CompanyID      string
	InitiatorName  string
	InitiatorPhone string
	AssigneeID     string
	CreatorID      string
	Urgent         bool
	Deadline       time.Time
}

// ChangeStatusInput carries an optional Expected status. When set, the change
// only applies if the task is still in that status.
type ChangeStatusInput struct {
	TaskID   string
	To       models.TaskStatus
	ActorID  string
	Expected models.TaskStatus
}

type AttachFileInput struct {
	TaskID      string
	UploaderID  string
	FileName    string
	ContentType string
	Data        []byte
}

type taskService struct {
	gw         *repositories.Gateway
	dispatcher Dispatcher
	files      AttachmentStore
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewTaskService creates a new instance of TaskService.
func NewTaskService(gw *repositories.Gateway, dispatcher Dispatcher, files AttachmentStore, m *metrics.Metrics, logger *slog.Logger) TaskService {
	return &taskService{gw: gw, dispatcher: dispatcher, files: files, metrics: m, logger: logger, now: time.Now}
}

func (in *CreateTaskInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.InitiatorName = strings.TrimSpace(in.InitiatorName)
	in.InitiatorPhone = strings.TrimSpace(in.InitiatorPhone)
}

func (s *taskService) validateCreate(in CreateTaskInput) error {
	if err := checkLength("title", in.Title, titleMin, titleMax); err != nil {
		return err
	}
	if err := checkLength("description", in.Description, 0, descriptionMax); err != nil {
		return err
	}
	if err := checkLength("initiator_name", in.InitiatorName, personNameMin, personNameMax); err != nil {
		return err
	}
	if err := checkLength("initiator_phone", in.InitiatorPhone, phoneMin, phoneMax); err != nil {
		return err
	}
	for _, ref := range [][2]string{{"company_id", in.CompanyID}, {"assignee_id", in.AssigneeID}, {"creator_id", in.CreatorID}} {
		if err := checkID(ref[0], ref[1]); err != nil {
			return err
		}
	}
	if in.Deadline.IsZero() {
		return invalid("deadline", "is required")
	}
	if in.Deadline.Before(s.now()) {
		return invalid("deadline", "must not be in the past")
	}
	return nil
}

func (s *taskService) Create(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	in.normalize()
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	creator, err := s.gw.Users.FindByID(ctx, in.CreatorID)
	if err != nil {
		return nil, fromRepo(err, "load creator")
	}
	if !authz.IsPrivileged(creator.Role) {
		s.logger.Info("Task creation denied", "user_id", creator.ID, "role", creator.Role)
		return nil, ErrForbidden
	}
	if _, err := s.gw.Companies.FindByID(ctx, in.CompanyID); err != nil {
		return nil, fromRepo(err, "load company")
	}
	if _, err := s.gw.Users.FindByID(ctx, in.AssigneeID); err != nil {
		return nil, fromRepo(err, "load assignee")
	}

	now := s.now()
	task := &models.Task{
		Title:          in.Title,
		Description:    in.Description,
		CompanyID:      in.CompanyID,
		InitiatorName:  in.InitiatorName,
		InitiatorPhone: in.InitiatorPhone,
		AssigneeID:     in.AssigneeID,
		CreatorID:      in.CreatorID,
		Urgent:         in.Urgent,
		Status:         models.StatusNew,
		Deadline:       in.Deadline,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.gw.Tasks.Create(ctx, task); err != nil {
		return nil, fromRepo(err, "create task")
	}
	s.logger.Info("Task created", "task_id", task.ID, "creator_id", task.CreatorID, "assignee_id", task.AssigneeID)

	s.dispatcher.TaskCreated(ctx, task)
	return task, nil
}

func (s *taskService) ChangeStatus(ctx context.Context, in ChangeStatusInput) (*models.Task, error) {
	if err := checkID("task_id", in.TaskID); err != nil {
		return nil, err
	}
	if err := checkID("actor_id", in.ActorID); err != nil {
		return nil, err
	}
	if !in.To.Valid() {
		return nil, invalid("status", "unknown status %q", in.To)
	}
	if in.Expected != "" && !in.Expected.Valid() {
		return nil, invalid("expected_status", "unknown status %q", in.Expected)
	}

	actor, err := s.gw.Users.FindByID(ctx, in.ActorID)
	if err != nil {
		return nil, fromRepo(err, "load actor")
	}
	task, err := s.gw.Tasks.FindByID(ctx, in.TaskID)
	if err != nil {
		return nil, fromRepo(err, "load task")
	}

	if in.Expected != "" && task.Status != in.Expected {
		s.logger.Info("Status change rejected, task moved on",
			"task_id", task.ID, "expected", in.Expected, "current", task.Status, "actor_id", actor.ID)
		return nil, ErrConflict
	}
	if err := CheckTransition(task, in.To, actor); err != nil {
		s.logger.Info("Status change rejected",
			"task_id", task.ID, "from", task.Status, "to", in.To, "actor_id", actor.ID, "role", actor.Role, "reason", err)
		return nil, err
	}

	updated, err := s.gw.Tasks.TransitionStatus(ctx, task.ID, task.Status, in.To)
	if err != nil {
		err = fromRepo(err, "change status")
		if errors.Is(err, ErrConflict) {
			s.logger.Warn("Concurrent status change", "task_id", task.ID, "from", task.Status, "to", in.To)
		}
		return nil, err
	}
	s.metrics.StatusChanged(string(updated.Status))
	s.logger.Info("Task status changed",
		"task_id", updated.ID, "from", task.Status, "to", updated.Status, "actor_id", actor.ID)

	s.dispatcher.StatusChanged(ctx, updated, actor.ID)
	return updated, nil
}

func (s *taskService) GetTask(ctx context.Context, id string) (*models.TaskDetail, error) {
	if err := checkID("task_id", id); err != nil {
		return nil, err
	}
	task, err := s.gw.Tasks.FindByID(ctx, id)
	if err != nil {
		return nil, fromRepo(err, "load task")
	}
	detail := &models.TaskDetail{Task: *task}

	company, err := s.gw.Companies.FindByID(ctx, task.CompanyID)
	if err != nil {
		return nil, fromRepo(err, "load company")
	}
	detail.CompanyName = company.Name

	assignee, err := s.gw.Users.FindByID(ctx, task.AssigneeID)
	if err != nil {
		return nil, fromRepo(err, "load assignee")
	}
	detail.AssigneeName = PersonName(assignee)

	creator, err := s.gw.Users.FindByID(ctx, task.CreatorID)
	if err != nil {
		return nil, fromRepo(err, "load creator")
	}
	detail.CreatorName = PersonName(creator)

	if detail.Comments, err = s.gw.Comments.ListByTask(ctx, id); err != nil {
		return nil, fromRepo(err, "list comments")
	}
	if detail.Attachments, err = s.gw.Attachments.ListByTask(ctx, id); err != nil {
		return nil, fromRepo(err, "list attachments")
	}
	return detail, nil
}

// participant reports whether u may comment on or attach files to task.
func participant(task *models.Task, u *models.User) bool {
	return authz.IsPrivileged(u.Role) || task.AssigneeID == u.ID || task.CreatorID == u.ID
}

// CanView reports whether u may open the task card.
func CanView(task *models.Task, u *models.User) bool {
	return participant(task, u)
}

func (s *taskService) loadForParticipant(ctx context.Context, taskID, userID string) (*models.Task, *models.User, error) {
	if err := checkID("task_id", taskID); err != nil {
		return nil, nil, err
	}
	if err := checkID("user_id", userID); err != nil {
		return nil, nil, err
	}
	u, err := s.gw.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, nil, fromRepo(err, "load user")
	}
	task, err := s.gw.Tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, nil, fromRepo(err, "load task")
	}
	if !participant(task, u) {
		return nil, nil, ErrForbidden
	}
	return task, u, nil
}

func (s *taskService) AddComment(ctx context.Context, taskID, authorID, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if err := checkLength("text", text, 1, commentMax); err != nil {
		return nil, err
	}
	task, _, err := s.loadForParticipant(ctx, taskID, authorID)
	if err != nil {
		return nil, err
	}

	c := &models.Comment{TaskID: task.ID, AuthorID: authorID, Text: text, CreatedAt: s.now()}
	if err := s.gw.Comments.Create(ctx, c); err != nil {
		return nil, fromRepo(err, "add comment")
	}
	s.dispatcher.CommentAdded(ctx, task, c)
	return c, nil
}

func (s *taskService) ListComments(ctx context.Context, taskID string) ([]models.Comment, error) {
	if err := checkID("task_id", taskID); err != nil {
		return nil, err
	}
	if _, err := s.gw.Tasks.FindByID(ctx, taskID); err != nil {
		return nil, fromRepo(err, "load task")
	}
	comments, err := s.gw.Comments.ListByTask(ctx, taskID)
	return comments, fromRepo(err, "list comments")
}

func (s *taskService) AttachFile(ctx context.Context, in AttachFileInput) (*models.Attachment, error) {
	name := strings.TrimSpace(in.FileName)
	if err := checkLength("file_name", name, 1, 255); err != nil {
		return nil, err
	}
	task, _, err := s.loadForParticipant(ctx, in.TaskID, in.UploaderID)
	if err != nil {
		return nil, err
	}

	stored, err := s.files.StoreAttachment(in.Data, name, in.ContentType, task.ID)
	switch {
	case errors.Is(err, storage.ErrEmptyFile), errors.Is(err, storage.ErrFileTooLarge),
		errors.Is(err, storage.ErrExtensionNotAllowed):
		return nil, &ValidationError{Field: "file", Message: err.Error()}
	case err != nil:
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	a := &models.Attachment{
		TaskID:        task.ID,
		UploaderID:    in.UploaderID,
		FileName:      name,
		Path:          stored.Path,
		Size:          stored.Size,
		ContentType:   stored.ContentType,
		ThumbnailPath: stored.ThumbnailPath,
		CreatedAt:     s.now(),
	}
	if err := s.gw.Attachments.Create(ctx, a); err != nil {
		return nil, fromRepo(err, "save attachment")
	}
	s.logger.Info("Attachment stored", "task_id", task.ID, "path", a.Path, "size", a.Size)
	return a, nil
}

func (s *taskService) ListAttachments(ctx context.Context, taskID string) ([]models.Attachment, error) {
	if err := checkID("task_id", taskID); err != nil {
		return nil, err
	}
	if _, err := s.gw.Tasks.FindByID(ctx, taskID); err != nil {
		return nil, fromRepo(err, "load task")
	}
	files, err := s.gw.Attachments.ListByTask(ctx, taskID)
	return files, fromRepo(err, "list attachments")
}
