package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	UserName     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Participant is the public view of a user inside a conversation.
type Participant struct {
	ID       int64  `json:"id"`
	UserName string `json:"username"`
}
