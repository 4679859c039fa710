package services

import (
	"fmt"
	"html"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"taskbot/internal/models"
)

type EmailService interface {
	SendOverdueDigest(to string, tasks []models.Task, loc *time.Location) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer: dialer,
		from:   fromEmail,
	}
}

func (s *emailService) SendOverdueDigest(to string, tasks []models.Task, loc *time.Location) error {
	if len(tasks) == 0 {
		return nil
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("Просрочено задач: %d", len(tasks)))
	m.SetBody("text/html", OverdueDigestHTML(tasks, loc))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send overdue digest: %w", err)
	}
	return nil
}

func OverdueDigestHTML(tasks []models.Task, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("<h3>Задачи, перешедшие в статус «Просрочена»</h3>\n<ul>\n")
	for _, t := range tasks {
		urgent := ""
		if t.Urgent {
			urgent = " <strong>(срочно)</strong>"
		}
		fmt.Fprintf(&b, "<li>%s%s, дедлайн %s</li>\n",
			html.EscapeString(t.Title), urgent, FormatDeadline(t.Deadline, loc))
	}
	b.WriteString("</ul>")
	return b.String()
}
