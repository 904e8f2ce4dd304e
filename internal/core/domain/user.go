package domain

import "time"

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CartID       int64
	CreatedAt    time.Time
}

// Identity is what a verified bearer credential resolves to.
type Identity struct {
	UserID   int64
	Username string
	CartID   int64
}
