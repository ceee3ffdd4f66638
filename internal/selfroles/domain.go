package selfroles

import "time"

// SelfRole is a Discord role members may claim for themselves. The actual
// grant happens through the bot, asynchronously.
type SelfRole struct {
	ID        int64
	RoleID    string
	Label     string
	Emoji     string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Input carries the fields for creating or updating a self-assignable
// role.
type Input struct {
	RoleID   string
	Label    string
	Emoji    string
	Position int
}
