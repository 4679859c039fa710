// internal/models/task.go
package models

import "time"

// TaskStatus defines the possible statuses for a task.
type TaskStatus string

const (
	StatusNew        TaskStatus = "new"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusOverdue    TaskStatus = "overdue"
	StatusCancelled  TaskStatus = "cancelled"
)

var statusNames = map[TaskStatus]string{
	StatusNew:        "Новая",
	StatusInProgress: "В работе",
	StatusCompleted:  "Выполнена",
	StatusOverdue:    "Просрочена",
	StatusCancelled:  "Отменена",
}

var statusEmoji = map[TaskStatus]string{
	StatusNew:        "🆕",
	StatusInProgress: "⏳",
	StatusCompleted:  "✅",
	StatusOverdue:    "⚠️",
	StatusCancelled:  "❌",
}

func (s TaskStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Open reports whether the deadline still matters for a task in this status.
func (s TaskStatus) Open() bool {
	return s == StatusNew || s == StatusInProgress
}

func (s TaskStatus) DisplayName() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return string(s)
}

func (s TaskStatus) Emoji() string {
	if e, ok := statusEmoji[s]; ok {
		return e
	}
	return "📋"
}

// Task represents the structure of a task in the system.
type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	CompanyID      string     `json:"company_id"`
	InitiatorName  string     `json:"initiator_name"`
	InitiatorPhone string     `json:"initiator_phone"`
	AssigneeID     string     `json:"assignee_id"`
	CreatorID      string     `json:"creator_id"`
	Urgent         bool       `json:"is_urgent"`
	Status         TaskStatus `json:"status"`
	Deadline       time.Time  `json:"deadline"`
	RemindedAt     *time.Time `json:"reminded_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TaskSummary is a list row: the task plus its company name.
type TaskSummary struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Urgent      bool       `json:"is_urgent"`
	Status      TaskStatus `json:"status"`
	Deadline    time.Time  `json:"deadline"`
	CreatedAt   time.Time  `json:"created_at"`
	CompanyID   string     `json:"company_id"`
	CompanyName string     `json:"company_name"`
	AssigneeID  string     `json:"assignee_id"`
}

type TaskDetail struct {
	Task
	CompanyName  string       `json:"company_name"`
	AssigneeName string       `json:"assignee_name"`
	CreatorName  string       `json:"creator_name"`
	Comments     []Comment    `json:"comments"`
	Attachments  []Attachment `json:"attachments"`
}

// TaskFilter defines the available parameters for filtering tasks.
type TaskFilter struct {
	AssigneeID *string
	CompanyID  *string
	Status     *TaskStatus
}
