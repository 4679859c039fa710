package models

import "time"

type Company struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// CompanyRollup is a company with the number of tasks visible to the caller.
type CompanyRollup struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	TaskCount int    `json:"task_count"`
}
