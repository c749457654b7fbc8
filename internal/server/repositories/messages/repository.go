package messages

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, m models.NewMessage) (*models.Message, error)
	ConversationOf(ctx context.Context, messageID int64) (int64, error)
	AppendReader(ctx context.Context, messageID, userID int64) error
	ListPage(ctx context.Context, conversationID, beforeID int64, limit int) ([]*models.Message, error)
	ReadersInRange(ctx context.Context, conversationID, fromID, toID int64) (map[int64][]int64, error)
}
