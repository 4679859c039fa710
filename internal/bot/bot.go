// Package bot turns Telegram updates into task operations and renders the
// results back into the chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskbot/internal/authz"
	"taskbot/internal/models"
	"taskbot/internal/services"
	"taskbot/internal/session"
)

// Sender is the outgoing half of the Telegram API.
// services.TelegramService implements it.
type Sender interface {
	Send(ctx context.Context, c tgbotapi.Chattable) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type Deps struct {
	Sender     Sender
	Users      services.UserService
	Tasks      services.TaskService
	Companies  services.CompanyService
	Queries    services.QueryService
	Sessions   session.Store
	SessionTTL time.Duration
	Location   *time.Location
	Logger     *slog.Logger
}

type request struct {
	chatID int64
	user   *models.User
}

type handlerFunc func(ctx context.Context, r *request, cmd Command) error

type Bot struct {
	Deps
	now      func() time.Time
	handlers map[CommandKind]handlerFunc
}

const maxListed = 30

func New(d Deps) *Bot {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = time.Hour
	}
	b := &Bot{Deps: d, now: time.Now}
	b.handlers = map[CommandKind]handlerFunc{
		KindStart:        b.start,
		KindMyTasks:      b.myTasks,
		KindCompanies:    b.companies,
		KindShowTask:     b.showTask,
		KindStatusMenu:   b.statusMenu,
		KindSetStatus:    b.setStatus,
		KindCompanyTasks: b.companyTasks,
		KindComments:     b.comments,
		KindAddComment:   b.addComment,
		KindNewCompany:   b.newCompany,
		KindCancel:       b.cancel,
		KindText:         b.text,
	}
	return b
}

// HandleUpdate processes one update. Errors caused by the user are answered
// in the chat; the returned error is an infrastructure failure, already
// reported to the user and meant for logging.
func (b *Bot) HandleUpdate(ctx context.Context, up tgbotapi.Update) error {
	var (
		from   *tgbotapi.User
		chatID int64
		cmd    Command
	)
	switch {
	case up.CallbackQuery != nil:
		cq := up.CallbackQuery
		from, chatID = cq.From, cq.From.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			chatID = cq.Message.Chat.ID
		}
		if err := b.Sender.AnswerCallback(ctx, cq.ID, ""); err != nil {
			b.Logger.Debug("Callback answer failed", "error", err)
		}
		parsed, err := ParseCallback(cq.Data)
		if err != nil {
			b.Logger.Info("Ignoring callback", "data", cq.Data)
			return nil
		}
		cmd = parsed
	case up.Message != nil && up.Message.From != nil:
		from, chatID = up.Message.From, up.Message.Chat.ID
		cmd = ParseText(up.Message.Text)
	default:
		return nil
	}

	user, _, err := b.Users.RegisterContact(ctx, models.User{
		ExternalID: from.ID,
		Username:   from.UserName,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	})
	if err != nil {
		b.reply(ctx, chatID, "Что-то пошло не так, попробуйте позже.")
		return fmt.Errorf("register contact: %w", err)
	}

	r := &request{chatID: chatID, user: user}
	if err := b.handlers[cmd.Kind()](ctx, r, cmd); err != nil {
		return b.fail(ctx, r, err)
	}
	return nil
}

func (b *Bot) fail(ctx context.Context, r *request, err error) error {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		b.reply(ctx, r.chatID, "⚠️ "+ve.Error())
	case errors.Is(err, services.ErrForbidden):
		b.reply(ctx, r.chatID, "⛔ Недостаточно прав для этого действия.")
	case errors.Is(err, services.ErrInvalidTransition):
		b.reply(ctx, r.chatID, "Такой переход статуса недоступен.")
	case errors.Is(err, services.ErrConflict):
		b.reply(ctx, r.chatID, "Статус задачи уже изменился. Откройте карточку заново.")
	case errors.Is(err, services.ErrNotFound):
		b.reply(ctx, r.chatID, "Не найдено.")
	default:
		b.reply(ctx, r.chatID, "Что-то пошло не так, попробуйте позже.")
		return err
	}
	return nil
}

func (b *Bot) send(ctx context.Context, msg tgbotapi.MessageConfig) {
	if err := b.Sender.Send(ctx, msg); err != nil {
		b.Logger.Warn("Failed to send chat message", "chat_id", msg.ChatID, "error", err)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.send(ctx, tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyWithButtons(ctx context.Context, chatID int64, text string, rows [][]tgbotapi.InlineKeyboardButton) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	b.send(ctx, msg)
}

func mainKeyboard(role authz.Role) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnMyTasks), tgbotapi.NewKeyboardButton(BtnCompanies)),
	}
	if authz.IsPrivileged(role) {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnNewCompany)))
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}

func (b *Bot) start(ctx context.Context, r *request, _ Command) error {
	if err := b.Sessions.Delete(ctx, r.chatID); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(r.chatID, fmt.Sprintf("Здравствуйте, %s!\nВаша роль: %s",
		services.PersonName(r.user), r.user.Role.DisplayName()))
	msg.ReplyMarkup = mainKeyboard(r.user.Role)
	b.send(ctx, msg)
	return nil
}

func (b *Bot) cancel(ctx context.Context, r *request, _ Command) error {
	if err := b.Sessions.Delete(ctx, r.chatID); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(r.chatID, "Действие отменено.")
	msg.ReplyMarkup = mainKeyboard(r.user.Role)
	b.send(ctx, msg)
	return nil
}

func (b *Bot) myTasks(ctx context.Context, r *request, _ Command) error {
	tasks, err := b.Queries.ListTasksForUser(ctx, r.user.ID, r.user.Role)
	if err != nil {
		return err
	}
	b.sendTaskList(ctx, r.chatID, "📝 Задачи", tasks)
	return nil
}

func (b *Bot) companyTasks(ctx context.Context, r *request, cmd Command) error {
	c := cmd.(CompanyTasks)
	company, err := b.Companies.GetByID(ctx, c.CompanyID)
	if err != nil {
		return err
	}
	tasks, err := b.Queries.ListCompanyTasks(ctx, r.user.ID, r.user.Role, c.CompanyID)
	if err != nil {
		return err
	}
	b.sendTaskList(ctx, r.chatID, "🏢 "+company.Name, tasks)
	return nil
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, title string, tasks []models.TaskSummary) {
	if len(tasks) == 0 {
		b.reply(ctx, chatID, title+"\n\nЗадач нет.")
		return
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, t := range tasks {
		if i == maxListed {
			break
		}
		label := t.Status.Emoji() + " " + t.Title
		if t.Urgent {
			label = "🔥" + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, taskData(t.ID))))
	}
	text := fmt.Sprintf("%s\n\nВсего: %d", title, len(tasks))
	if len(tasks) > maxListed {
		text += fmt.Sprintf(" (показаны первые %d)", maxListed)
	}
	b.replyWithButtons(ctx, chatID, text, rows)
}

func (b *Bot) companies(ctx context.Context, r *request, _ Command) error {
	list, err := b.Queries.ListCompaniesForUser(ctx, r.user.ID, r.user.Role)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		b.reply(ctx, r.chatID, "Компаний пока нет.")
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range list {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏢 "+c.Name, companyData(c.ID))))
	}
	b.replyWithButtons(ctx, r.chatID, "Выберите компанию:", rows)
	return nil
}

// visibleTask loads a task the user is allowed to see.
func (b *Bot) visibleTask(ctx context.Context, r *request, id string) (*models.TaskDetail, error) {
	detail, err := b.Tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !services.CanView(&detail.Task, r.user) {
		return nil, services.ErrForbidden
	}
	return detail, nil
}

func (b *Bot) showTask(ctx context.Context, r *request, cmd Command) error {
	d, err := b.visibleTask(ctx, r, cmd.(ShowTask).TaskID)
	if err != nil {
		return err
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	if len(services.AllowedTransitions(&d.Task, r.user)) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄 Изменить статус", statusData(d.ID))))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💬 Комментарии", commentsData(d.ID)),
			tgbotapi.NewInlineKeyboardButtonData("✍️ Написать", commentData(d.ID)),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(BtnBack, "tasks")),
	)
	b.replyWithButtons(ctx, r.chatID, TaskCard(d, b.Location), rows)
	return nil
}

// TaskCard renders the task detail shown in the chat.
func TaskCard(d *models.TaskDetail, loc *time.Location) string {
	var sb strings.Builder
	if d.Urgent {
		sb.WriteString("🔥 СРОЧНО\n")
	}
	fmt.Fprintf(&sb, "📋 %s\n\n", d.Title)
	fmt.Fprintf(&sb, "Компания: %s\n", d.CompanyName)
	fmt.Fprintf(&sb, "Статус: %s %s\n", d.Status.Emoji(), d.Status.DisplayName())
	fmt.Fprintf(&sb, "Дедлайн: %s\n", services.FormatDeadline(d.Deadline, loc))
	fmt.Fprintf(&sb, "Исполнитель: %s\n", d.AssigneeName)
	fmt.Fprintf(&sb, "Создал: %s\n", d.CreatorName)
	if d.InitiatorName != "" {
		fmt.Fprintf(&sb, "Инициатор: %s, %s\n", d.InitiatorName, d.InitiatorPhone)
	}
	if d.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", d.Description)
	}
	fmt.Fprintf(&sb, "\nКомментариев: %d, файлов: %d", len(d.Comments), len(d.Attachments))
	return sb.String()
}

func (b *Bot) statusMenu(ctx context.Context, r *request, cmd Command) error {
	d, err := b.visibleTask(ctx, r, cmd.(StatusMenu).TaskID)
	if err != nil {
		return err
	}
	allowed := services.AllowedTransitions(&d.Task, r.user)
	if len(allowed) == 0 {
		return services.ErrInvalidTransition
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, to := range allowed {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(to.Emoji()+" "+to.DisplayName(), setData(d.ID, d.Status, to))))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(BtnBack, taskData(d.ID))))
	b.replyWithButtons(ctx, r.chatID, fmt.Sprintf("«%s»\nТекущий статус: %s\nВыберите новый:", d.Title, d.Status.DisplayName()), rows)
	return nil
}

func (b *Bot) setStatus(ctx context.Context, r *request, cmd Command) error {
	c := cmd.(SetStatus)
	task, err := b.Tasks.ChangeStatus(ctx, services.ChangeStatusInput{
		TaskID: c.TaskID, To: c.To, ActorID: r.user.ID, Expected: c.From,
	})
	if err != nil {
		return err
	}
	b.replyWithButtons(ctx, r.chatID,
		fmt.Sprintf("Статус задачи «%s» изменён: %s %s", task.Title, task.Status.Emoji(), task.Status.DisplayName()),
		[][]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Открыть", taskData(task.ID))),
		})
	return nil
}

func (b *Bot) comments(ctx context.Context, r *request, cmd Command) error {
	d, err := b.visibleTask(ctx, r, cmd.(Comments).TaskID)
	if err != nil {
		return err
	}
	if len(d.Comments) == 0 {
		b.reply(ctx, r.chatID, "Комментариев пока нет.")
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "💬 Комментарии к «%s»\n", d.Title)
	for _, c := range d.Comments {
		fmt.Fprintf(&sb, "\n%s, %s:\n%s\n", c.AuthorName, services.FormatDeadline(c.CreatedAt, b.Location), c.Text)
	}
	b.reply(ctx, r.chatID, sb.String())
	return nil
}

func (b *Bot) addComment(ctx context.Context, r *request, cmd Command) error {
	d, err := b.visibleTask(ctx, r, cmd.(AddComment).TaskID)
	if err != nil {
		return err
	}
	s := session.New(r.chatID, session.FlowComment, "text", b.SessionTTL, b.now())
	s.Set("task_id", d.ID)
	if err := b.Sessions.Save(ctx, s); err != nil {
		return err
	}
	b.reply(ctx, r.chatID, fmt.Sprintf("Напишите комментарий к «%s» (или /cancel):", d.Title))
	return nil
}

func (b *Bot) newCompany(ctx context.Context, r *request, _ Command) error {
	if !authz.IsPrivileged(r.user.Role) {
		return services.ErrForbidden
	}
	if err := b.Sessions.Save(ctx, session.New(r.chatID, session.FlowNewCompany, "name", b.SessionTTL, b.now())); err != nil {
		return err
	}
	b.reply(ctx, r.chatID, "Введите название компании (или /cancel):")
	return nil
}

// text continues the chat's current flow.
func (b *Bot) text(ctx context.Context, r *request, cmd Command) error {
	input := cmd.(TextInput).Text
	s, err := b.Sessions.Get(ctx, r.chatID)
	if err != nil {
		return err
	}
	if s == nil {
		msg := tgbotapi.NewMessage(r.chatID, "Не понял команду. Воспользуйтесь меню.")
		msg.ReplyMarkup = mainKeyboard(r.user.Role)
		b.send(ctx, msg)
		return nil
	}

	switch s.Flow {
	case session.FlowComment:
		err = b.finishComment(ctx, r, s, input)
	case session.FlowNewCompany:
		err = b.companyStep(ctx, r, s, input)
	default:
		b.Logger.Warn("Dropping session with unknown flow", "flow", s.Flow, "chat_id", r.chatID)
		err = b.Sessions.Delete(ctx, r.chatID)
	}
	// Невалидный ввод можно повторить, сессия остаётся.
	if err != nil && !errors.Is(err, services.ErrValidation) {
		if delErr := b.Sessions.Delete(ctx, r.chatID); delErr != nil {
			b.Logger.Warn("Failed to drop session", "chat_id", r.chatID, "error", delErr)
		}
	}
	return err
}

func (b *Bot) finishComment(ctx context.Context, r *request, s *session.Session, input string) error {
	c, err := b.Tasks.AddComment(ctx, s.Data["task_id"], r.user.ID, input)
	if err != nil {
		return err
	}
	if err := b.Sessions.Delete(ctx, r.chatID); err != nil {
		return err
	}
	b.replyWithButtons(ctx, r.chatID, "Комментарий добавлен.", [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 К задаче", taskData(c.TaskID))),
	})
	return nil
}

func (b *Bot) companyStep(ctx context.Context, r *request, s *session.Session, input string) error {
	switch s.Step {
	case "name":
		s.Set("name", input)
		s.Step = "description"
		if err := b.Sessions.Save(ctx, s); err != nil {
			return err
		}
		b.reply(ctx, r.chatID, "Введите описание компании или «-», чтобы пропустить:")
		return nil
	case "description":
		if input == "-" {
			input = ""
		}
		company, err := b.Companies.Create(ctx, r.user.ID, s.Data["name"], input)
		if err != nil {
			var ve *services.ValidationError
			if errors.As(err, &ve) && ve.Field == "name" {
				// название вводится заново
				s.Step = "name"
				if saveErr := b.Sessions.Save(ctx, s); saveErr != nil {
					return saveErr
				}
			}
			return err
		}
		if err := b.Sessions.Delete(ctx, r.chatID); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(r.chatID, fmt.Sprintf("✅ Компания «%s» создана.", company.Name))
		msg.ReplyMarkup = mainKeyboard(r.user.Role)
		b.send(ctx, msg)
		return nil
	}
	return b.Sessions.Delete(ctx, r.chatID)
}
