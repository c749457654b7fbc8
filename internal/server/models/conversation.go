package models

import "time"

type Conversation struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationSummary is a conversation as listed for one user: the other
// participants, the newest message and how many messages from others the
// user has not read yet.
type ConversationSummary struct {
	ID           int64         `json:"id"`
	CreatedAt    time.Time     `json:"createdAt"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"lastMessage"`
	UnreadCount  int           `json:"unreadCount"`
}
