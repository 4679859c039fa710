// Package memory is a mutex-guarded storage driver with the same semantics
// as the Postgres repositories. It backs tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskbot/internal/authz"
	"taskbot/internal/models"
	"taskbot/internal/repositories"
)

type store struct {
	mu          sync.RWMutex
	now         func() time.Time
	users       map[string]models.User
	byExternal  map[int64]string
	companies   map[string]models.Company
	tasks       map[string]models.Task
	comments    []models.Comment
	attachments []models.Attachment
}

type Option func(*store)

// WithClock sets the clock used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *store) { s.now = now }
}

// NewGateway returns a Gateway whose repositories share one in-memory store.
func NewGateway(opts ...Option) *repositories.Gateway {
	s := &store{
		now:        time.Now,
		users:      make(map[string]models.User),
		byExternal: make(map[int64]string),
		companies:  make(map[string]models.Company),
		tasks:      make(map[string]models.Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return &repositories.Gateway{
		Users:       (*userStore)(s),
		Companies:   (*companyStore)(s),
		Tasks:       (*taskStore)(s),
		Comments:    (*commentStore)(s),
		Attachments: (*attachmentStore)(s),
	}
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, repositories.ErrNotFound)
}

type userStore store

func (s *userStore) Register(_ context.Context, user *models.User) (*models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byExternal[user.ExternalID]; ok {
		u := s.users[id]
		return &u, false, nil
	}
	u := *user
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.Role = authz.RoleAdmin
	if len(s.users) == 0 {
		u.Role = authz.RoleDirector
	}
	s.users[u.ID] = u
	s.byExternal[u.ExternalID] = u.ID
	return &u, true, nil
}

func (s *userStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user")
	}
	return &u, nil
}

func (s *userStore) FindByExternalID(_ context.Context, externalID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, notFound("user")
	}
	u := s.users[id]
	return &u, nil
}

func (s *userStore) UpdateRole(_ context.Context, id string, role authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return notFound("user")
	}
	u.Role = role
	s.users[id] = u
	return nil
}

func (s *userStore) List(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out, nil
}

type companyStore store

func (s *companyStore) Create(_ context.Context, c *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[c.CreatedBy]; !ok {
		return fmt.Errorf("insert company: unknown creator %s", c.CreatedBy)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.companies[c.ID] = *c
	return nil
}

func (s *companyStore) FindByID(_ context.Context, id string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.companies[id]
	if !ok {
		return nil, notFound("company")
	}
	return &c, nil
}

func (s *companyStore) ListAll(_ context.Context) ([]models.Company, error) {
	return s.list(func(models.Company) bool { return true }), nil
}

func (s *companyStore) ListForAssignee(_ context.Context, userID string) ([]models.Company, error) {
	s.mu.RLock()
	assigned := make(map[string]bool)
	for _, t := range s.tasks {
		if t.AssigneeID == userID {
			assigned[t.CompanyID] = true
		}
	}
	s.mu.RUnlock()
	return s.list(func(c models.Company) bool { return assigned[c.ID] }), nil
}

func (s *companyStore) list(keep func(models.Company) bool) []models.Company {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Company
	for _, c := range s.companies {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *companyStore) Rollup(_ context.Context, assigneeID *string) ([]models.CompanyRollup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, t := range s.tasks {
		if assigneeID != nil && t.AssigneeID != *assigneeID {
			continue
		}
		counts[t.CompanyID]++
	}
	out := make([]models.CompanyRollup, 0, len(counts))
	for id, n := range counts {
		out = append(out, models.CompanyRollup{CompanyID: id, Name: s.companies[id].Name, TaskCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type taskStore store

func (s *taskStore) Create(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[t.CompanyID]; !ok {
		return fmt.Errorf("insert task: unknown company %s", t.CompanyID)
	}
	for _, ref := range []string{t.AssigneeID, t.CreatorID} {
		if _, ok := s.users[ref]; !ok {
			return fmt.Errorf("insert task: unknown user %s", ref)
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *taskStore) FindByID(_ context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, notFound("task")
	}
	return &t, nil
}

func (s *taskStore) List(_ context.Context, f models.TaskFilter) ([]models.TaskSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TaskSummary
	for _, t := range s.tasks {
		if f.AssigneeID != nil && t.AssigneeID != *f.AssigneeID {
			continue
		}
		if f.CompanyID != nil && t.CompanyID != *f.CompanyID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		out = append(out, models.TaskSummary{
			ID: t.ID, Title: t.Title, Description: t.Description, Urgent: t.Urgent, Status: t.Status,
			Deadline: t.Deadline, CreatedAt: t.CreatedAt, CompanyID: t.CompanyID,
			CompanyName: s.companies[t.CompanyID].Name, AssigneeID: t.AssigneeID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *taskStore) TransitionStatus(_ context.Context, id string, from, to models.TaskStatus) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, notFound("task")
	}
	if t.Status != from {
		return nil, fmt.Errorf("task %s is %s, expected %s: %w", id, t.Status, from, repositories.ErrStatusMismatch)
	}
	t.Status = to
	t.UpdatedAt = s.now()
	s.tasks[id] = t
	return &t, nil
}

func (s *taskStore) MarkOverdue(_ context.Context, now time.Time) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Task
	for id, t := range s.tasks {
		if !t.Status.Open() || !t.Deadline.Before(now) {
			continue
		}
		t.Status = models.StatusOverdue
		t.UpdatedAt = s.now()
		s.tasks[id] = t
		out = append(out, t)
	}
	sortByDeadline(out)
	return out, nil
}

func (s *taskStore) ListApproaching(_ context.Context, now, until time.Time) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Task
	for _, t := range s.tasks {
		if approaching(t, now, until) {
			out = append(out, t)
		}
	}
	sortByDeadline(out)
	return out, nil
}

func (s *taskStore) ClaimReminders(_ context.Context, now, until time.Time) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Task
	for id, t := range s.tasks {
		if !approaching(t, now, until) || t.RemindedAt != nil {
			continue
		}
		stamp := now
		t.RemindedAt = &stamp
		s.tasks[id] = t
		out = append(out, t)
	}
	sortByDeadline(out)
	return out, nil
}

func approaching(t models.Task, now, until time.Time) bool {
	return t.Status.Open() && t.Deadline.After(now) && !t.Deadline.After(until)
}

func sortByDeadline(tasks []models.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Deadline.Before(tasks[j].Deadline) })
}

type commentStore store

func (s *commentStore) Create(_ context.Context, c *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[c.TaskID]; !ok {
		return fmt.Errorf("insert comment: unknown task %s", c.TaskID)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.comments = append(s.comments, *c)
	return nil
}

func (s *commentStore) ListByTask(_ context.Context, taskID string) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Comment
	for _, c := range s.comments {
		if c.TaskID != taskID {
			continue
		}
		author := s.users[c.AuthorID]
		c.AuthorName = author.FullName()
		out = append(out, c)
	}
	return out, nil
}

type attachmentStore store

func (s *attachmentStore) Create(_ context.Context, a *models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[a.TaskID]; !ok {
		return fmt.Errorf("insert attachment: unknown task %s", a.TaskID)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.attachments = append(s.attachments, *a)
	return nil
}

func (s *attachmentStore) ListByTask(_ context.Context, taskID string) ([]models.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Attachment
	for i := len(s.attachments) - 1; i >= 0; i-- {
		a := s.attachments[i]
		if a.TaskID != taskID {
			continue
		}
		uploader := s.users[a.UploaderID]
		a.UploaderName = uploader.FullName()
		out = append(out, a)
	}
	return out, nil
}
