package realtime

import (
	"encoding/json"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

// Inbound commands.
const (
	CmdSendMessage     = "send_message"
	CmdTyping          = "typing"
	CmdMarkRead        = "mark_read"
	CmdGetOnlineStatus = "get_online_status"
)

// Outbound events.
const (
	EventNewMessage       = "new_message"
	EventUserTyping       = "user_typing"
	EventMessageRead      = "message_read"
	EventUsersOnline      = "users_online"
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
	EventOnlineStatus     = "online_status"
)

// Event is an outbound frame. ID echoes the request id on replies.
type Event struct {
	Name string
	ID   string
	Data any
}

type envelope struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data"`
}

// Encode renders the event as a JSON text frame.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(envelope{Event: e.Name, ID: e.ID, Data: e.Data})
}

// Inbound is a decoded client frame whose payload is parsed per command.
type Inbound struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data"`
}

type SendMessageCommand struct {
	ConversationID int64              `json:"conversationId"`
	Content        string             `json:"content"`
	MessageType    models.MessageType `json:"messageType"`
	MediaURL       string             `json:"mediaUrl"`
}

type TypingCommand struct {
	ConversationID int64 `json:"conversationId"`
	IsTyping       bool  `json:"isTyping"`
}

type MarkReadCommand struct {
	ConversationID int64 `json:"conversationId"`
	MessageID      int64 `json:"messageId"`
}

type OnlineStatusQuery struct {
	UserIDs []int64 `json:"userIds"`
}

type TypingNotice struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
	IsTyping       bool  `json:"isTyping"`
}

type ReadReceipt struct {
	ConversationID int64 `json:"conversationId"`
	MessageID      int64 `json:"messageId"`
	UserID         int64 `json:"userId"`
}
