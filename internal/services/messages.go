package services

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"taskbot/internal/models"
)

const deadlineLayout = "02.01.2006 15:04"

// PersonName title-cases a user's display name for chat messages.
func PersonName(u *models.User) string {
	if u == nil {
		return "Система"
	}
	name := u.FullName()
	if strings.HasPrefix(name, "@") {
		return name
	}
	return cases.Title(language.Russian).String(name)
}

func FormatDeadline(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(deadlineLayout)
}

func humanizeLeft(d time.Duration) string {
	if d < time.Minute {
		return "меньше минуты"
	}
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%d мин.", m)
	case m == 0:
		return fmt.Sprintf("%d ч.", h)
	default:
		return fmt.Sprintf("%d ч. %d мин.", h, m)
	}
}

func urgentLine(t *models.Task) string {
	if t.Urgent {
		return "🔥 СРОЧНО\n"
	}
	return ""
}

func taskCreatedText(t *models.Task, company string, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("📋 Вам назначена новая задача!\n\n")
	b.WriteString(urgentLine(t))
	fmt.Fprintf(&b, "Задача: %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(&b, "Описание: %s\n", t.Description)
	}
	fmt.Fprintf(&b, "Компания: %s\n", company)
	fmt.Fprintf(&b, "Инициатор: %s, %s\n", t.InitiatorName, t.InitiatorPhone)
	fmt.Fprintf(&b, "Дедлайн: %s", FormatDeadline(t.Deadline, loc))
	return b.String()
}

func statusChangedText(t *models.Task, company, actor string) string {
	return fmt.Sprintf("📋 Изменение статуса задачи\n\nЗадача: %s\nКомпания: %s\nНовый статус: %s %s\nИзменил: %s",
		t.Title, company, t.Status.Emoji(), t.Status.DisplayName(), actor)
}

func approachingText(t *models.Task, company string, left time.Duration, loc *time.Location) string {
	return fmt.Sprintf("⏰ Напоминание о дедлайне!\n\n%sЗадача: %s\nКомпания: %s\nДедлайн: %s\nОсталось: %s",
		urgentLine(t), t.Title, company, FormatDeadline(t.Deadline, loc), humanizeLeft(left))
}

func overdueText(t *models.Task, company string, loc *time.Location) string {
	return fmt.Sprintf("⚠️ Задача просрочена!\n\n%sЗадача: %s\nКомпания: %s\nДедлайн был: %s",
		urgentLine(t), t.Title, company, FormatDeadline(t.Deadline, loc))
}

func commentText(t *models.Task, author string, c *models.Comment) string {
	return fmt.Sprintf("💬 Новый комментарий\n\nЗадача: %s\nАвтор: %s\n\n%s", t.Title, author, c.Text)
}
