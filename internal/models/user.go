package models

import "time"

// Role is the coarse role stored on a user record.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User is a chat participant known to the bot.
type User struct {
	ID          int64 // transport user ID
	DisplayName string
	Role        Role
	Karma       int
	CreatedAt   time.Time
}
