package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskbot/internal/authz"
	"taskbot/internal/models"
	"taskbot/internal/repositories"
	"taskbot/internal/repositories/memory"
	"taskbot/internal/services"
	"taskbot/internal/session"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(_ context.Context, c tgbotapi.Chattable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.msgs = append(f.msgs, m)
	}
	return nil
}

func (f *fakeSender) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.msgs)
	return f.msgs[len(f.msgs)-1]
}

func buttons(t *testing.T, m tgbotapi.MessageConfig) []string {
	t.Helper()
	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "message has no inline keyboard")
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData != nil {
				out = append(out, *b.CallbackData)
			}
		}
	}
	return out
}

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

const (
	directorChat int64 = 100
	assigneeChat int64 = 200
	outsiderChat int64 = 300
)

type harness struct {
	bot    *Bot
	sender *fakeSender
	gw     *repositories.Gateway
	tasks  services.TaskService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := memory.NewGateway()
	sender := &fakeSender{}
	tasks := services.NewTaskService(gw, nopDispatcher{}, nil, nil, logger)
	b := New(Deps{
		Sender:    sender,
		Users:     services.NewUserService(gw.Users, logger),
		Tasks:     tasks,
		Companies: services.NewCompanyService(gw, logger),
		Queries:   services.NewQueryService(gw),
		Sessions:  session.NewMemoryStore(nil),
		Logger:    logger,
	})
	return &harness{bot: b, sender: sender, gw: gw, tasks: tasks}
}

func (h *harness) text(t *testing.T, chat int64, text string) tgbotapi.MessageConfig {
	t.Helper()
	up := tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: chat, FirstName: "user" + strings.Repeat("x", int(chat%7))},
		Chat: &tgbotapi.Chat{ID: chat},
		Text: text,
	}}
	require.NoError(t, h.bot.HandleUpdate(context.Background(), up))
	return h.sender.last(t)
}

func (h *harness) tap(t *testing.T, chat int64, data string) tgbotapi.MessageConfig {
	t.Helper()
	up := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: chat},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chat}},
		Data:    data,
	}}
	require.NoError(t, h.bot.HandleUpdate(context.Background(), up))
	return h.sender.last(t)
}

func (h *harness) user(t *testing.T, chat int64) *models.User {
	t.Helper()
	u, err := h.gw.Users.FindByExternalID(context.Background(), chat)
	require.NoError(t, err)
	return u
}

// seed registers the three chats and creates a task from director to assignee.
func (h *harness) seed(t *testing.T) *models.Task {
	t.Helper()
	h.text(t, directorChat, "/start")
	h.text(t, assigneeChat, "/start")
	h.text(t, outsiderChat, "/start")

	ctx := context.Background()
	director := h.user(t, directorChat)
	company := &models.Company{Name: "Acme", CreatedBy: director.ID}
	require.NoError(t, h.gw.Companies.Create(ctx, company))

	task, err := h.tasks.Create(ctx, services.CreateTaskInput{
		Title:          "Replace router",
		CompanyID:      company.ID,
		InitiatorName:  "Ivan",
		InitiatorPhone: "+77001234567",
		AssigneeID:     h.user(t, assigneeChat).ID,
		CreatorID:      director.ID,
		Deadline:       time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return task
}

func TestStart_FirstContactBecomesDirector(t *testing.T) {
	h := newHarness(t)

	msg := h.text(t, directorChat, "/start")
	assert.Contains(t, msg.Text, authz.RoleDirector.DisplayName())
	_, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	assert.True(t, ok)

	msg = h.text(t, assigneeChat, "/start")
	assert.Contains(t, msg.Text, authz.RoleAdmin.DisplayName())
}

func TestStatusChangeFromChat(t *testing.T) {
	h := newHarness(t)
	task := h.seed(t)

	list := h.text(t, assigneeChat, BtnMyTasks)
	assert.Equal(t, []string{taskData(task.ID)}, buttons(t, list))

	card := h.tap(t, assigneeChat, taskData(task.ID))
	assert.Contains(t, card.Text, "Replace router")
	assert.Contains(t, buttons(t, card), statusData(task.ID))

	menu := h.tap(t, assigneeChat, statusData(task.ID))
	start := setData(task.ID, models.StatusNew, models.StatusInProgress)
	assert.Equal(t, []string{start, taskData(task.ID)}, buttons(t, menu), "assignee cannot cancel")

	h.tap(t, assigneeChat, start)
	got, err := h.gw.Tasks.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)

	stale := h.tap(t, assigneeChat, start)
	assert.Contains(t, stale.Text, "уже изменился")
}

func TestTaskCardHiddenFromOutsider(t *testing.T) {
	h := newHarness(t)
	task := h.seed(t)

	msg := h.tap(t, outsiderChat, taskData(task.ID))
	assert.Contains(t, msg.Text, "Недостаточно прав")

	list := h.text(t, outsiderChat, "/tasks")
	assert.Contains(t, list.Text, "Задач нет")
}

func TestCommentFlow(t *testing.T) {
	h := newHarness(t)
	task := h.seed(t)

	prompt := h.tap(t, assigneeChat, commentData(task.ID))
	assert.Contains(t, prompt.Text, "Напишите комментарий")

	done := h.text(t, assigneeChat, "Будет готово завтра")
	assert.Contains(t, done.Text, "Комментарий добавлен")

	comments, err := h.tasks.ListComments(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Будет готово завтра", comments[0].Text)

	again := h.text(t, assigneeChat, "ещё текст")
	assert.Contains(t, again.Text, "Не понял команду", "the flow ends after one comment")
}

func TestNewCompanyFlow(t *testing.T) {
	h := newHarness(t)
	h.text(t, directorChat, "/start")

	h.text(t, directorChat, BtnNewCompany)
	h.text(t, directorChat, "X")
	msg := h.text(t, directorChat, "-")
	assert.Contains(t, msg.Text, "name", "one-letter name is rejected")

	h.text(t, directorChat, "Acme Ltd")
	msg = h.text(t, directorChat, "-")
	assert.Contains(t, msg.Text, "Acme Ltd")

	list, err := h.gw.Companies.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Description)
}

func TestNewCompany_Forbidden(t *testing.T) {
	h := newHarness(t)
	h.text(t, directorChat, "/start")

	msg := h.text(t, assigneeChat, "/newcompany")
	assert.Contains(t, msg.Text, "Недостаточно прав")
}

func TestCancelDropsSession(t *testing.T) {
	h := newHarness(t)
	h.text(t, directorChat, "/start")
	h.text(t, directorChat, "/newcompany")

	msg := h.text(t, directorChat, BtnBack)
	assert.Contains(t, msg.Text, "отменено")

	msg = h.text(t, directorChat, "Acme")
	assert.Contains(t, msg.Text, "Не понял команду")
}

func TestUnknownCallbackIgnored(t *testing.T) {
	h := newHarness(t)
	up := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb", From: &tgbotapi.User{ID: 1}, Data: "refresh"}}
	require.NoError(t, h.bot.HandleUpdate(context.Background(), up))
	assert.Empty(t, h.sender.msgs)
}
