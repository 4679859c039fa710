package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskbot/internal/authz"
	"taskbot/internal/models"
	"taskbot/internal/repositories"
	"taskbot/internal/repositories/memory"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingDispatcher captures dispatcher calls without delivering anything.
type recordingDispatcher struct {
	mu       sync.Mutex
	created  []string
	changed  []string
	comments []string
}

func (d *recordingDispatcher) TaskCreated(_ context.Context, t *models.Task) DispatchReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created = append(d.created, t.ID)
	return DispatchReport{}
}

func (d *recordingDispatcher) StatusChanged(_ context.Context, t *models.Task, actorID string) DispatchReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changed = append(d.changed, t.ID+":"+string(t.Status)+":"+actorID)
	return DispatchReport{}
}

func (d *recordingDispatcher) CommentAdded(_ context.Context, t *models.Task, c *models.Comment) DispatchReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.comments = append(d.comments, c.Text)
	return DispatchReport{}
}

func (d *recordingDispatcher) DeadlineApproaching(context.Context, *models.Task, time.Time) DispatchReport {
	return DispatchReport{}
}

func (d *recordingDispatcher) Overdue(context.Context, *models.Task) DispatchReport {
	return DispatchReport{}
}

func (d *recordingDispatcher) Drain(context.Context) error { return nil }

type fakeFiles struct{}

func (fakeFiles) StoreAttachment(data []byte, name, contentType, taskID string) (*models.StoredFile, error) {
	return &models.StoredFile{Path: "tasks/" + taskID + "/x" + name, Size: int64(len(data)), ContentType: contentType}, nil
}

type world struct {
	gw         *repositories.Gateway
	dispatcher *recordingDispatcher
	tasks      *taskService
	director   *models.User
	manager    *models.User
	assignee   *models.User
	outsider   *models.User
	company    *models.Company
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	gw := memory.NewGateway(memory.WithClock(func() time.Time { return testNow }))

	register := func(ext int64, name string, role authz.Role) *models.User {
		u, _, err := gw.Users.Register(ctx, &models.User{ExternalID: ext, FirstName: name})
		require.NoError(t, err)
		require.NoError(t, gw.Users.UpdateRole(ctx, u.ID, role))
		u.Role = role
		return u
	}
	w := &world{gw: gw, dispatcher: &recordingDispatcher{}}
	w.director = register(100, "dana", authz.RoleDirector)
	w.manager = register(101, "marat", authz.RoleManager)
	w.assignee = register(102, "arman", authz.RoleAdmin)
	w.outsider = register(103, "olga", authz.RoleMainAdmin)

	w.company = &models.Company{Name: "Acme", CreatedBy: w.director.ID, CreatedAt: testNow}
	require.NoError(t, gw.Companies.Create(ctx, w.company))

	svc := NewTaskService(gw, w.dispatcher, fakeFiles{}, nil, testLogger()).(*taskService)
	svc.now = func() time.Time { return testNow }
	w.tasks = svc
	return w
}

func (w *world) input() CreateTaskInput {
	return CreateTaskInput{
		Title:          "Replace router",
		Description:    "Office on the second floor",
		CompanyID:      w.company.ID,
		InitiatorName:  "Ivan",
		InitiatorPhone: "+77001234567",
		AssigneeID:     w.assignee.ID,
		CreatorID:      w.director.ID,
		Deadline:       testNow.Add(48 * time.Hour),
	}
}

// seedTask stores a task directly in the given status.
func (w *world) seedTask(t *testing.T, status models.TaskStatus) *models.Task {
	t.Helper()
	in := w.input()
	task := &models.Task{
		Title: in.Title, CompanyID: in.CompanyID, InitiatorName: in.InitiatorName, InitiatorPhone: in.InitiatorPhone,
		AssigneeID: in.AssigneeID, CreatorID: in.CreatorID, Status: status, Deadline: in.Deadline,
	}
	require.NoError(t, w.gw.Tasks.Create(context.Background(), task))
	return task
}

func (w *world) status(t *testing.T, id string) models.TaskStatus {
	t.Helper()
	task, err := w.gw.Tasks.FindByID(context.Background(), id)
	require.NoError(t, err)
	return task.Status
}
