package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var ErrInvalidState = errors.New("invalid session state")

// Session is the lifecycle of one client connection:
// Connecting → Authenticated → Active → Disconnected. A failed
// authentication goes straight to Disconnected and nothing is registered.
type Session struct {
	hub    *Hub
	mu     sync.Mutex
	state  State
	userID int64
	conn   Conn
	logger logging.Logger
}

func (h *Hub) NewSession() *Session {
	return &Session{hub: h, state: StateConnecting, logger: h.logger}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Authenticate verifies the bearer token. Any failure leaves the session
// Disconnected and returns an error wrapping common.ErrorUnauthorized.
func (s *Session) Authenticate(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return ErrInvalidState
	}

	token = strings.TrimSpace(strings.TrimPrefix(token, common.BearerPrefix))
	if token == "" {
		s.state = StateDisconnected
		return fmt.Errorf("%w: missing token", common.ErrorUnauthorized)
	}

	userID, err := auth.GetUserIDFromToken(token, s.hub.secret)
	if err != nil {
		s.state = StateDisconnected
		return fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}

	s.userID = userID
	s.state = StateAuthenticated
	s.logger = s.hub.logger.With("user_id", userID)
	return nil
}

// Activate registers conn, which announces the user when this is their
// first connection and sends conn the users_online snapshot.
func (s *Session) Activate(ctx context.Context, conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticated {
		return ErrInvalidState
	}
	if conn.UserID() != s.userID {
		return fmt.Errorf("%w: connection belongs to user %d", ErrInvalidState, conn.UserID())
	}

	if err := s.hub.registry.Register(ctx, conn); err != nil {
		s.state = StateDisconnected
		return err
	}

	s.conn = conn
	s.state = StateActive
	s.logger = s.logger.With("conn_id", conn.ID())
	s.logger.Info(ctx, "session active")
	return nil
}

// Close moves the session to Disconnected, unregistering its connection
// if it was Active. Calling it again is a no-op.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	prev, conn := s.state, s.conn
	s.state = StateDisconnected
	s.mu.Unlock()

	if prev != StateActive {
		return
	}

	if err := s.hub.registry.Unregister(ctx, conn); err != nil && !errors.Is(err, common.ErrRegistryStopped) {
		s.logger.Warn(ctx, "unregister failed", "error", err)
	}
	conn.Close()
	s.logger.Info(ctx, "session closed")
}

// Handle processes one inbound frame. Commands never produce error
// events; the returned error is for the transport to log.
func (s *Session) Handle(ctx context.Context, frame []byte) error {
	if st := s.State(); st != StateActive {
		return fmt.Errorf("%w: %s", ErrInvalidState, st)
	}

	var in Inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		return fmt.Errorf("%w: malformed frame: %v", common.ErrorValidation, err)
	}

	switch in.Event {
	case CmdSendMessage:
		var cmd SendMessageCommand
		if err := decode(in.Data, &cmd); err != nil {
			return err
		}
		return s.sendMessage(ctx, cmd)
	case CmdTyping:
		var cmd TypingCommand
		if err := decode(in.Data, &cmd); err != nil {
			return err
		}
		return s.typing(ctx, cmd)
	case CmdMarkRead:
		var cmd MarkReadCommand
		if err := decode(in.Data, &cmd); err != nil {
			return err
		}
		return s.markRead(ctx, cmd)
	case CmdGetOnlineStatus:
		var q OnlineStatusQuery
		if err := decode(in.Data, &q); err != nil {
			return err
		}
		return s.onlineStatus(ctx, in.ID, q)
	default:
		return fmt.Errorf("%w: unknown event %q", common.ErrorValidation, in.Event)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", common.ErrorValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	return nil
}

// sendMessage persists first and fans out only after the write succeeded.
// The conversation lock keeps fanout in persistence order.
func (s *Session) sendMessage(ctx context.Context, cmd SendMessageCommand) error {
	if cmd.ConversationID <= 0 {
		return fmt.Errorf("%w: conversationId required", common.ErrorValidation)
	}
	if cmd.MessageType == "" {
		cmd.MessageType = models.MessageText
	}
	if !cmd.MessageType.Valid() {
		return fmt.Errorf("%w: unknown message type %q", common.ErrorValidation, cmd.MessageType)
	}
	if cmd.Content == "" && cmd.MediaURL == "" {
		return fmt.Errorf("%w: empty message", common.ErrorValidation)
	}

	unlock := s.hub.convs.Lock(cmd.ConversationID)
	defer unlock()

	msg, err := s.hub.store.CreateMessage(ctx, models.NewMessage{
		ConversationID: cmd.ConversationID,
		SenderID:       s.userID,
		Type:           cmd.MessageType,
		Content:        cmd.Content,
		MediaURL:       cmd.MediaURL,
	})
	if err != nil {
		s.logger.Error(ctx, "message not persisted", "conversation_id", cmd.ConversationID, "error", err)
		return fmt.Errorf("persist message: %w", err)
	}

	return s.hub.router.DeliverToConversation(ctx, cmd.ConversationID, Event{Name: EventNewMessage, Data: msg})
}

func (s *Session) typing(ctx context.Context, cmd TypingCommand) error {
	if cmd.ConversationID <= 0 {
		return fmt.Errorf("%w: conversationId required", common.ErrorValidation)
	}
	ev := Event{Name: EventUserTyping, Data: TypingNotice{
		ConversationID: cmd.ConversationID,
		UserID:         s.userID,
		IsTyping:       cmd.IsTyping,
	}}
	return s.hub.router.DeliverToConversation(ctx, cmd.ConversationID, ev,
		ExcludeUser(s.userID), RequireParticipant(s.userID))
}

func (s *Session) markRead(ctx context.Context, cmd MarkReadCommand) error {
	if cmd.ConversationID <= 0 || cmd.MessageID <= 0 {
		return fmt.Errorf("%w: conversationId and messageId required", common.ErrorValidation)
	}

	unlock := s.hub.convs.Lock(cmd.ConversationID)
	defer unlock()

	if err := s.hub.store.AppendReader(ctx, cmd.ConversationID, cmd.MessageID, s.userID); err != nil {
		s.logger.Error(ctx, "read receipt not persisted", "conversation_id", cmd.ConversationID, "message_id", cmd.MessageID, "error", err)
		return fmt.Errorf("append reader: %w", err)
	}

	ev := Event{Name: EventMessageRead, Data: ReadReceipt{
		ConversationID: cmd.ConversationID,
		MessageID:      cmd.MessageID,
		UserID:         s.userID,
	}}
	return s.hub.router.DeliverToConversation(ctx, cmd.ConversationID, ev)
}

// onlineStatus answers the requesting connection only.
func (s *Session) onlineStatus(ctx context.Context, requestID string, q OnlineStatusQuery) error {
	status, err := s.hub.presence.OnlineStatus(ctx, q.UserIDs)
	if err != nil {
		return err
	}

	frame, err := Event{Name: EventOnlineStatus, ID: requestID, Data: status}.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn.Send(frame)
}
