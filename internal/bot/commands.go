package bot

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"taskbot/internal/models"
)

type CommandKind int

const (
	KindStart CommandKind = iota + 1
	KindMyTasks
	KindCompanies
	KindShowTask
	KindStatusMenu
	KindSetStatus
	KindCompanyTasks
	KindComments
	KindAddComment
	KindNewCompany
	KindCancel
	KindText
)

// Command is one parsed user action. Only the types in this file implement it.
type Command interface {
	Kind() CommandKind
}

type (
	Start        struct{}
	MyTasks      struct{}
	Companies    struct{}
	NewCompany   struct{}
	Cancel       struct{}
	ShowTask     struct{ TaskID string }
	StatusMenu   struct{ TaskID string }
	CompanyTasks struct{ CompanyID string }
	Comments     struct{ TaskID string }
	AddComment   struct{ TaskID string }
	TextInput    struct{ Text string }

	// SetStatus carries the status the card showed so a stale button fails
	// with a conflict instead of overwriting.
	SetStatus struct {
		TaskID string
		From   models.TaskStatus
		To     models.TaskStatus
	}
)

func (Start) Kind() CommandKind        { return KindStart }
func (MyTasks) Kind() CommandKind      { return KindMyTasks }
func (Companies) Kind() CommandKind    { return KindCompanies }
func (NewCompany) Kind() CommandKind   { return KindNewCompany }
func (Cancel) Kind() CommandKind       { return KindCancel }
func (ShowTask) Kind() CommandKind     { return KindShowTask }
func (StatusMenu) Kind() CommandKind   { return KindStatusMenu }
func (CompanyTasks) Kind() CommandKind { return KindCompanyTasks }
func (Comments) Kind() CommandKind     { return KindComments }
func (AddComment) Kind() CommandKind   { return KindAddComment }
func (TextInput) Kind() CommandKind    { return KindText }
func (SetStatus) Kind() CommandKind    { return KindSetStatus }

// Reply keyboard labels.
const (
	BtnMyTasks    = "📝 Мои задачи"
	BtnCompanies  = "🏢 Компании"
	BtnNewCompany = "➕ Добавить компанию"
	BtnBack       = "🔙 Назад"
)

var ErrUnknownCallback = errors.New("unknown callback data")

// Callback data, at most 64 bytes:
//
//	task:<id>  status:<id>  set:<id>:<from>:<to>
//	company:<id>  comments:<id>  comment:<id>  tasks
func ParseCallback(data string) (Command, error) {
	if data == "tasks" {
		return MyTasks{}, nil
	}
	prefix, rest, ok := strings.Cut(data, ":")
	if !ok {
		return nil, ErrUnknownCallback
	}

	if prefix == "set" {
		parts := strings.Split(rest, ":")
		if len(parts) != 3 || !isID(parts[0]) {
			return nil, ErrUnknownCallback
		}
		from, to := models.TaskStatus(parts[1]), models.TaskStatus(parts[2])
		if !from.Valid() || !to.Valid() {
			return nil, ErrUnknownCallback
		}
		return SetStatus{TaskID: parts[0], From: from, To: to}, nil
	}

	if !isID(rest) {
		return nil, ErrUnknownCallback
	}
	switch prefix {
	case "task":
		return ShowTask{TaskID: rest}, nil
	case "status":
		return StatusMenu{TaskID: rest}, nil
	case "company":
		return CompanyTasks{CompanyID: rest}, nil
	case "comments":
		return Comments{TaskID: rest}, nil
	case "comment":
		return AddComment{TaskID: rest}, nil
	}
	return nil, ErrUnknownCallback
}

// ParseText maps slash commands and keyboard buttons. Anything else is
// free text for the current session flow.
func ParseText(text string) Command {
	text = strings.TrimSpace(text)
	cmd, _, _ := strings.Cut(text, " ")
	// /start@botname в группах
	cmd, _, _ = strings.Cut(cmd, "@")

	switch {
	case cmd == "/start":
		return Start{}
	case cmd == "/tasks" || text == BtnMyTasks:
		return MyTasks{}
	case cmd == "/companies" || text == BtnCompanies:
		return Companies{}
	case cmd == "/newcompany" || text == BtnNewCompany:
		return NewCompany{}
	case cmd == "/cancel" || text == BtnBack:
		return Cancel{}
	}
	return TextInput{Text: text}
}

func isID(s string) bool {
	return uuid.Validate(s) == nil
}

func taskData(id string) string     { return "task:" + id }
func statusData(id string) string   { return "status:" + id }
func companyData(id string) string  { return "company:" + id }
func commentsData(id string) string { return "comments:" + id }
func commentData(id string) string  { return "comment:" + id }

func setData(id string, from, to models.TaskStatus) string {
	return "set:" + id + ":" + string(from) + ":" + string(to)
}
