package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskbot/internal/models"
)

var allStatuses = []models.TaskStatus{
	models.StatusNew, models.StatusInProgress, models.StatusCompleted, models.StatusOverdue, models.StatusCancelled,
}

// allowedForAssignee and privilegedOnly spell the transition matrix out
// independently of TaskTransitions.
var allowedForAssignee = map[[2]models.TaskStatus]bool{
	{models.StatusNew, models.StatusInProgress}:       true,
	{models.StatusInProgress, models.StatusCompleted}: true,
	{models.StatusInProgress, models.StatusNew}:       true,
	{models.StatusOverdue, models.StatusCompleted}:    true,
	{models.StatusOverdue, models.StatusInProgress}:   true,
}

var privilegedOnly = map[[2]models.TaskStatus]bool{
	{models.StatusNew, models.StatusCancelled}:        true,
	{models.StatusInProgress, models.StatusCancelled}: true,
	{models.StatusOverdue, models.StatusCancelled}:    true,
	{models.StatusCompleted, models.StatusInProgress}: true,
}

func TestCheckTransitionMatrix(t *testing.T) {
	w := newWorld(t)

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			pair := [2]models.TaskStatus{from, to}
			task := &models.Task{Status: from, AssigneeID: w.assignee.ID, CreatorID: w.director.ID}

			err := CheckTransition(task, to, w.assignee)
			switch {
			case allowedForAssignee[pair]:
				assert.NoError(t, err, "assignee %s->%s", from, to)
			case privilegedOnly[pair]:
				assert.ErrorIs(t, err, ErrForbidden, "assignee %s->%s", from, to)
			default:
				assert.ErrorIs(t, err, ErrInvalidTransition, "assignee %s->%s", from, to)
			}

			for _, actor := range []*models.User{w.director, w.manager} {
				err := CheckTransition(task, to, actor)
				if allowedForAssignee[pair] || privilegedOnly[pair] {
					assert.NoError(t, err, "%s %s->%s", actor.Role, from, to)
				} else {
					assert.ErrorIs(t, err, ErrInvalidTransition, "%s %s->%s", actor.Role, from, to)
				}
			}

			assert.ErrorIs(t, CheckTransition(task, to, w.outsider), ErrForbidden, "outsider %s->%s", from, to)
		}
	}
}

func TestOverdueIsNeverAUserTarget(t *testing.T) {
	w := newWorld(t)
	for _, from := range allStatuses {
		task := &models.Task{Status: from, AssigneeID: w.assignee.ID}
		assert.ErrorIs(t, CheckTransition(task, models.StatusOverdue, w.director), ErrInvalidTransition)
	}
}

func TestRejectedChangesLeaveStatusUnchanged(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			pair := [2]models.TaskStatus{from, to}
			if allowedForAssignee[pair] {
				continue
			}
			task := w.seedTask(t, from)
			_, err := w.tasks.ChangeStatus(ctx, ChangeStatusInput{TaskID: task.ID, To: to, ActorID: w.assignee.ID})
			require.Error(t, err)
			assert.True(t, IsUserError(err), "%s->%s: %v", from, to, err)
			assert.Equal(t, from, w.status(t, task.ID))
		}
	}
	assert.Empty(t, w.dispatcher.changed)
}

func TestAllowedTransitions(t *testing.T) {
	w := newWorld(t)
	task := &models.Task{Status: models.StatusInProgress, AssigneeID: w.assignee.ID}

	assert.Equal(t, []models.TaskStatus{models.StatusCompleted, models.StatusNew},
		AllowedTransitions(task, w.assignee))
	assert.Equal(t, []models.TaskStatus{models.StatusCompleted, models.StatusNew, models.StatusCancelled},
		AllowedTransitions(task, w.director))
	assert.Empty(t, AllowedTransitions(task, w.outsider))
}
