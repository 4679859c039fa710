package models

import (
	"strings"
	"time"

	"taskbot/internal/authz"
)

type User struct {
	ID         string     `json:"id"`
	ExternalID int64      `json:"telegram_id"`
	Username   string     `json:"username,omitempty"`
	FirstName  string     `json:"first_name,omitempty"`
	LastName   string     `json:"last_name,omitempty"`
	Role       authz.Role `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
}

// FullName falls back to the username when the profile has no names.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "Пользователь"
}
