package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/client/client"
)

type messageView struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversationId"`
	SenderID       int64  `json:"senderId"`
	MessageType    string `json:"messageType"`
	Content        string `json:"content"`
	MediaURL       string `json:"mediaUrl"`
}

type conversationEvent struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
	MessageID      int64 `json:"messageId"`
	IsTyping       bool  `json:"isTyping"`
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

// formatFrame renders an incoming event as one line of terminal output.
func formatFrame(f *client.Frame) string {
	raw := func() string { return fmt.Sprintf("%s %s", f.Event, string(f.Data)) }

	switch f.Event {
	case "new_message":
		var m messageView
		if json.Unmarshal(f.Data, &m) != nil {
			return raw()
		}
		line := fmt.Sprintf("[conv %d] #%d user %d: %s", m.ConversationID, m.ID, m.SenderID, m.Content)
		if m.MediaURL != "" {
			line += fmt.Sprintf(" (%s %s)", m.MessageType, m.MediaURL)
		}
		return line

	case "user_typing":
		var e conversationEvent
		if json.Unmarshal(f.Data, &e) != nil {
			return raw()
		}
		if e.IsTyping {
			return fmt.Sprintf("[conv %d] user %d is typing", e.ConversationID, e.UserID)
		}
		return fmt.Sprintf("[conv %d] user %d stopped typing", e.ConversationID, e.UserID)

	case "message_read":
		var e conversationEvent
		if json.Unmarshal(f.Data, &e) != nil {
			return raw()
		}
		return fmt.Sprintf("[conv %d] user %d read #%d", e.ConversationID, e.UserID, e.MessageID)

	case "users_online":
		var ids []int64
		if json.Unmarshal(f.Data, &ids) != nil {
			return raw()
		}
		return "online: " + joinIDs(ids)

	case "user_connected", "user_disconnected":
		var id int64
		if json.Unmarshal(f.Data, &id) != nil {
			return raw()
		}
		return fmt.Sprintf("user %d %s", id, strings.TrimPrefix(f.Event, "user_"))

	case "online_status":
		var status map[string]bool
		if json.Unmarshal(f.Data, &status) != nil {
			return raw()
		}
		keys := make([]string, 0, len(status))
		for k := range status {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, _ := strconv.ParseInt(keys[i], 10, 64)
			b, _ := strconv.ParseInt(keys[j], 10, 64)
			return a < b
		})
		parts := make([]string, len(keys))
		for i, k := range keys {
			state := "offline"
			if status[k] {
				state = "online"
			}
			parts[i] = k + "=" + state
		}
		return "status: " + strings.Join(parts, " ")
	}
	return raw()
}
