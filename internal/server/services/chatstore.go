package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
)

// ChatStore is the persistence behind the realtime hub.
type ChatStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewChatStore(db *sql.DB, m repomanager.RepositoryManager) *ChatStore {
	return &ChatStore{db: db, repomanager: m}
}

func (s *ChatStore) ParticipantsOf(ctx context.Context, conversationID int64) ([]int64, error) {
	return s.repomanager.Conversations(s.db).ParticipantsOf(ctx, conversationID)
}

// CreateMessage persists m once the sender is confirmed as a participant.
func (s *ChatStore) CreateMessage(ctx context.Context, m models.NewMessage) (*models.Message, error) {
	if err := requireParticipant(ctx, s.repomanager.Conversations(s.db), m.ConversationID, m.SenderID); err != nil {
		return nil, err
	}
	return s.repomanager.Messages(s.db).Create(ctx, m)
}

// AppendReader marks messageID read by userID. The user must take part in
// the conversation and the message must belong to it.
func (s *ChatStore) AppendReader(ctx context.Context, conversationID, messageID, userID int64) error {
	if err := requireParticipant(ctx, s.repomanager.Conversations(s.db), conversationID, userID); err != nil {
		return err
	}

	repo := s.repomanager.Messages(s.db)
	owner, err := repo.ConversationOf(ctx, messageID)
	if err != nil {
		return err
	}
	if owner != conversationID {
		return common.ErrorNotFound
	}
	return repo.AppendReader(ctx, messageID, userID)
}
