package identity

import (
	"errors"
	"time"
)

// User represents a hub member keyed by Discord snowflake.
type User struct {
	ID        string
	Username  string
	Avatar    string
	Roles     []byte // raw JSON array of role snowflakes, decoded at the boundary
	IsAdmin   bool
	IsBanned  bool
	Credits   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BotKey is a hashed API key the Discord bot presents on internal calls.
type BotKey struct {
	ID        int64
	Name      string
	KeyHash   string
	CreatedAt time.Time
}

var (
	// ErrStateMismatch indicates the OAuth state nonce did not match.
	ErrStateMismatch = errors.New("identity: oauth state mismatch")
	// ErrBadBotKey indicates no stored bot key matched.
	ErrBadBotKey = errors.New("identity: bot key rejected")
)
