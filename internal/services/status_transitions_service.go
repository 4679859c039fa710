package services

import (
	"taskbot/internal/authz"
	"taskbot/internal/models"
)

// TaskTransitions lists the allowed moves. The value marks targets that only
// director and manager may request.
var TaskTransitions = map[models.TaskStatus]map[models.TaskStatus]bool{
	models.StatusNew:        {models.StatusInProgress: false, models.StatusCancelled: true},
	models.StatusInProgress: {models.StatusCompleted: false, models.StatusNew: false, models.StatusCancelled: true},
	models.StatusOverdue:    {models.StatusCompleted: false, models.StatusInProgress: false, models.StatusCancelled: true},
	models.StatusCompleted:  {models.StatusInProgress: true},
	models.StatusCancelled:  {},
}

// Порядок кнопок в боте.
var transitionOrder = []models.TaskStatus{
	models.StatusInProgress, models.StatusCompleted, models.StatusNew, models.StatusCancelled,
}

// CheckTransition decides whether actor may move task to the target status.
// Overdue is never a valid target here; only the scheduler enters it.
func CheckTransition(task *models.Task, to models.TaskStatus, actor *models.User) error {
	privileged := authz.IsPrivileged(actor.Role)
	if !privileged && task.AssigneeID != actor.ID {
		return ErrForbidden
	}
	nexts, ok := TaskTransitions[task.Status]
	if !ok {
		return ErrInvalidTransition
	}
	privilegedOnly, ok := nexts[to]
	if !ok {
		return ErrInvalidTransition
	}
	if privilegedOnly && !privileged {
		return ErrForbidden
	}
	return nil
}

// AllowedTransitions lists the targets actor may pick for task, in menu order.
func AllowedTransitions(task *models.Task, actor *models.User) []models.TaskStatus {
	var out []models.TaskStatus
	for _, to := range transitionOrder {
		if CheckTransition(task, to, actor) == nil {
			out = append(out, to)
		}
	}
	return out
}
