package models

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
	MessageFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageAudio, MessageFile:
		return true
	}
	return false
}

// Message is a persisted chat message. ReadBy is the set of users that
// have marked it read, ascending by id.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversationId"`
	SenderID       int64       `json:"senderId"`
	Type           MessageType `json:"messageType"`
	Content        string      `json:"content"`
	MediaURL       string      `json:"mediaUrl,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	ReadBy         []int64     `json:"readBy"`
}

// NewMessage is what a sender submits; the store assigns the rest.
type NewMessage struct {
	ConversationID int64
	SenderID       int64
	Type           MessageType
	Content        string
	MediaURL       string
}
