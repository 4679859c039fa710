package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskbot/internal/authz"
	"taskbot/internal/handlers"
	"taskbot/internal/middleware"
	"taskbot/internal/models"
	"taskbot/internal/pdf"
	"taskbot/internal/repositories"
	"taskbot/internal/repositories/memory"
	"taskbot/internal/routes"
	"taskbot/internal/services"
	"taskbot/internal/storage"
)

var secret = []byte("handler-test-secret")

type nopDispatcher struct{}

func (nopDispatcher) TaskCreated(context.Context, *models.Task) services.DispatchReport {
	return services.DispatchReport{}
}

func (nopDispatcher) StatusChanged(context.Context, *models.Task, string) services.DispatchReport {
	return services.DispatchReport{}
}

func (nopDispatcher) CommentAdded(context.Context, *models.Task, *models.Comment) services.DispatchReport {
	return services.DispatchReport{}
}

func (nopDispatcher) DeadlineApproaching(context.Context, *models.Task, time.Time) services.DispatchReport {
	return services.DispatchReport{}
}

func (nopDispatcher) Overdue(context.Context, *models.Task) services.DispatchReport {
	return services.DispatchReport{}
}

func (nopDispatcher) Drain(context.Context) error { return nil }

type updates struct{ got []tgbotapi.Update }

func (u *updates) HandleUpdate(_ context.Context, up tgbotapi.Update) error {
	u.got = append(u.got, up)
	return nil
}

type api struct {
	t       *testing.T
	router  *gin.Engine
	gw      *repositories.Gateway
	updates *updates
	tokens  map[string]string
	users   map[string]*models.User
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := memory.NewGateway()

	files, err := storage.NewLocalStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	userSvc := services.NewUserService(gw.Users, logger)
	taskSvc := services.NewTaskService(gw, nopDispatcher{}, files, nil, logger)
	querySvc := services.NewQueryService(gw)
	companySvc := services.NewCompanyService(gw, logger)
	upd := &updates{}

	r := gin.New()
	routes.SetupRoutes(r, routes.Handlers{
		Tasks:        handlers.NewTaskHandler(taskSvc, querySvc, files, files.MaxSize(), time.UTC, logger),
		Companies:    handlers.NewCompanyHandler(companySvc, querySvc, logger),
		Users:        handlers.NewUserHandler(userSvc, logger),
		Reports:      handlers.NewReportHandler(querySvc, pdf.NewReportGenerator(""), time.UTC, logger),
		Integrations: handlers.NewIntegrationsHandler(upd, "hook", logger),
	}, middleware.AuthMiddleware(secret, userSvc))

	a := &api{t: t, router: r, gw: gw, updates: upd, tokens: map[string]string{}, users: map[string]*models.User{}}
	for i, name := range []string{"director", "assignee", "outsider"} {
		u, _, err := userSvc.RegisterContact(context.Background(), models.User{ExternalID: int64(i + 1), FirstName: name})
		require.NoError(t, err)
		token, err := middleware.IssueToken(secret, u.ID, time.Hour, time.Now())
		require.NoError(t, err)
		a.users[name], a.tokens[name] = u, token
	}
	require.Equal(t, authz.RoleDirector, a.users["director"].Role)
	return a
}

func (a *api) do(who, method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+a.tokens[who])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *api) createTask() models.Task {
	a.t.Helper()
	w := a.do("director", http.MethodPost, "/companies", gin.H{"name": "Acme"})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	company := decode[models.Company](a.t, w)

	w = a.do("director", http.MethodPost, "/tasks", gin.H{
		"title":           "Replace router",
		"company_id":      company.ID,
		"initiator_name":  "Ivan",
		"initiator_phone": "+77001234567",
		"assignee_id":     a.users["assignee"].ID,
		"deadline":        "завтра",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Task](a.t, w)
}

func TestUnauthenticated(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusUnauthorized, a.do("", http.MethodGet, "/tasks", nil).Code)
	assert.Equal(t, http.StatusOK, a.do("", http.MethodGet, "/healthz", nil).Code)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	task := a.createTask()
	assert.Equal(t, models.StatusNew, task.Status)

	list := decode[[]models.TaskSummary](t, a.do("assignee", http.MethodGet, "/tasks", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "Acme", list[0].CompanyName)
	assert.Empty(t, decode[[]models.TaskSummary](t, a.do("outsider", http.MethodGet, "/tasks", nil)))

	assert.Equal(t, http.StatusForbidden, a.do("outsider", http.MethodGet, "/tasks/"+task.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do("director", http.MethodGet, "/tasks/6f1c2a3e-9b7d-4c1a-8e2f-0a1b2c3d4e5f", nil).Code)

	path := "/tasks/" + task.ID + "/status"
	w := a.do("assignee", http.MethodPatch, path, gin.H{"status": "in_progress", "expected_status": "new"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do("assignee", http.MethodPatch, path, gin.H{"status": "completed", "expected_status": "new"})
	assert.Equal(t, http.StatusConflict, w.Code, "stale expected status")

	w = a.do("assignee", http.MethodPatch, path, gin.H{"status": "cancelled"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do("director", http.MethodPatch, path, gin.H{"status": "cancelled"})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do("director", http.MethodPatch, path, gin.H{"status": "new"})
	assert.Equal(t, http.StatusConflict, w.Code, "cancelled is terminal")

	w = a.do("director", http.MethodPatch, path, gin.H{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateTask_Validation(t *testing.T) {
	a := newAPI(t)
	task := a.createTask()

	w := a.do("assignee", http.MethodPost, "/tasks", gin.H{
		"title": "Another", "company_id": task.CompanyID, "initiator_name": "Ivan",
		"initiator_phone": "+77001234567", "assignee_id": a.users["assignee"].ID, "deadline": "завтра",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do("director", http.MethodPost, "/tasks", gin.H{
		"title": "Another", "company_id": task.CompanyID, "initiator_name": "Ivan",
		"initiator_phone": "+77001234567", "assignee_id": a.users["assignee"].ID, "deadline": "someday",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "deadline", decode[map[string]string](t, w)["field"])
}

func TestCommentsAndFiles(t *testing.T) {
	a := newAPI(t)
	task := a.createTask()

	w := a.do("assignee", http.MethodPost, "/tasks/"+task.ID+"/comments", gin.H{"text": "Заменю завтра"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	comments := decode[[]models.Comment](t, a.do("director", http.MethodGet, "/tasks/"+task.ID+"/comments", nil))
	require.Len(t, comments, 1)
	assert.Equal(t, "Заменю завтра", comments[0].Text)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", `notes "final".txt`)
	require.NoError(t, err)
	_, _ = part.Write([]byte("router model: AX55"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/tasks/"+task.ID+"/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.tokens["assignee"])
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	att := decode[models.Attachment](t, rec)

	files := decode[[]models.Attachment](t, a.do("director", http.MethodGet, "/tasks/"+task.ID+"/files", nil))
	require.Len(t, files, 1)

	dl := a.do("assignee", http.MethodGet, "/tasks/"+task.ID+"/files/"+att.ID, nil)
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "router model: AX55", dl.Body.String())
	_, params, err := mime.ParseMediaType(dl.Header().Get("Content-Disposition"))
	require.NoError(t, err, "quotes in the name keep the header well-formed")
	assert.Equal(t, `notes "final".txt`, params["filename"])

	assert.Equal(t, http.StatusForbidden, a.do("outsider", http.MethodGet, "/tasks/"+task.ID+"/files/"+att.ID, nil).Code)
}

func TestCompaniesAndRoles(t *testing.T) {
	a := newAPI(t)
	a.createTask()

	assert.Len(t, decode[[]models.Company](t, a.do("assignee", http.MethodGet, "/companies", nil)), 1)
	assert.Empty(t, decode[[]models.Company](t, a.do("outsider", http.MethodGet, "/companies", nil)))
	rollup := decode[[]models.CompanyRollup](t, a.do("director", http.MethodGet, "/companies/rollup", nil))
	require.Len(t, rollup, 1)
	assert.Equal(t, 1, rollup[0].TaskCount)

	assert.Equal(t, http.StatusForbidden, a.do("assignee", http.MethodPost, "/companies", gin.H{"name": "Globex"}).Code)
	assert.Equal(t, http.StatusForbidden, a.do("assignee", http.MethodGet, "/users", nil).Code)

	w := a.do("director", http.MethodPatch, "/users/"+a.users["outsider"].ID+"/role", gin.H{"role": "manager"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]models.Company](t, a.do("outsider", http.MethodGet, "/companies", nil)), 1,
		"new role applies without a new token")

	me := decode[models.User](t, a.do("outsider", http.MethodGet, "/users/me", nil))
	assert.Equal(t, authz.RoleManager, me.Role)
}

func TestTasksPDF(t *testing.T) {
	a := newAPI(t)
	a.createTask()

	w := a.do("director", http.MethodGet, "/reports/tasks.pdf", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestTelegramWebhook(t *testing.T) {
	a := newAPI(t)

	w := a.do("", http.MethodPost, "/integrations/telegram/webhook/wrong", gin.H{"update_id": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, a.updates.got)

	w = a.do("", http.MethodPost, "/integrations/telegram/webhook/hook", gin.H{
		"update_id": 7,
		"message":   gin.H{"message_id": 1, "text": "/start", "chat": gin.H{"id": 42}, "from": gin.H{"id": 42}},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, a.updates.got, 1)
	assert.Equal(t, 7, a.updates.got[0].UpdateID)
}
