package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskbot/internal/models"
)

const taskID = "6f1c2a3e-9b7d-4c1a-8e2f-0a1b2c3d4e5f"

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data string
		want Command
	}{
		{"tasks", MyTasks{}},
		{"task:" + taskID, ShowTask{TaskID: taskID}},
		{"status:" + taskID, StatusMenu{TaskID: taskID}},
		{"company:" + taskID, CompanyTasks{CompanyID: taskID}},
		{"comments:" + taskID, Comments{TaskID: taskID}},
		{"comment:" + taskID, AddComment{TaskID: taskID}},
		{"set:" + taskID + ":new:in_progress", SetStatus{TaskID: taskID, From: models.StatusNew, To: models.StatusInProgress}},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := ParseCallback(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCallback_Rejects(t *testing.T) {
	for _, data := range []string{
		"",
		"refresh",
		"task:42",
		"unknown:" + taskID,
		"set:" + taskID + ":new",
		"set:" + taskID + ":new:done",
		"set:42:new:in_progress",
	} {
		_, err := ParseCallback(data)
		assert.ErrorIs(t, err, ErrUnknownCallback, data)
	}
}

func TestCallbackDataFitsTelegramLimit(t *testing.T) {
	longest := setData(taskID, models.StatusInProgress, models.StatusInProgress)
	assert.LessOrEqual(t, len(longest), 64)
}

func TestParseText(t *testing.T) {
	tests := []struct {
		text string
		want Command
	}{
		{"/start", Start{}},
		{"/start@taskbot", Start{}},
		{"/start payload", Start{}},
		{BtnMyTasks, MyTasks{}},
		{"/tasks", MyTasks{}},
		{BtnCompanies, Companies{}},
		{"/newcompany", NewCompany{}},
		{BtnNewCompany, NewCompany{}},
		{BtnBack, Cancel{}},
		{"/cancel", Cancel{}},
		{"  Acme Ltd  ", TextInput{Text: "Acme Ltd"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseText(tt.text), tt.text)
	}
}
