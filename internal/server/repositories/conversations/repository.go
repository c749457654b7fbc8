package conversations

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context) (*models.Conversation, error)
	AddParticipant(ctx context.Context, conversationID, userID int64) error
	LockPair(ctx context.Context, userA, userB int64) error
	FindDirect(ctx context.Context, userA, userB int64) (int64, error)
	ParticipantsOf(ctx context.Context, conversationID int64) ([]int64, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	ListForUser(ctx context.Context, userID int64) ([]*models.ConversationSummary, error)
	GetForUser(ctx context.Context, conversationID, userID int64) (*models.ConversationSummary, error)
}
