package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// ConversationService lists, opens and pages through conversations on
// behalf of a user. Every read is limited to conversations the user takes
// part in.
type ConversationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewConversationService(db *sql.DB, m repomanager.RepositoryManager) *ConversationService {
	return &ConversationService{db: db, repomanager: m}
}

// Start returns the direct conversation between userID and participantID,
// creating it when there is none yet.
func (s *ConversationService) Start(ctx context.Context, userID, participantID int64) (*models.ConversationSummary, error) {
	if participantID <= 0 || participantID == userID {
		return nil, fmt.Errorf("%w: invalid participant", common.ErrorValidation)
	}

	if _, err := s.repomanager.Users(s.db).GetByID(ctx, participantID); err != nil {
		return nil, err
	}

	var conversationID int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Conversations(tx)

		// serialises concurrent first contact between the same two users
		if err := repo.LockPair(ctx, userID, participantID); err != nil {
			return err
		}

		id, err := repo.FindDirect(ctx, userID, participantID)
		if err == nil {
			conversationID = id
			return nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		c, err := repo.Create(ctx)
		if err != nil {
			return err
		}
		for _, uid := range []int64{userID, participantID} {
			if err := repo.AddParticipant(ctx, c.ID, uid); err != nil {
				return err
			}
		}
		conversationID = c.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error starting conversation: %w", err)
	}

	return s.repomanager.Conversations(s.db).GetForUser(ctx, conversationID, userID)
}

func (s *ConversationService) List(ctx context.Context, userID int64) ([]*models.ConversationSummary, error) {
	return s.repomanager.Conversations(s.db).ListForUser(ctx, userID)
}

// Get returns the conversation summary, or common.ErrNotParticipant when
// the user is not in it.
func (s *ConversationService) Get(ctx context.Context, conversationID, userID int64) (*models.ConversationSummary, error) {
	if err := requireParticipant(ctx, s.repomanager.Conversations(s.db), conversationID, userID); err != nil {
		return nil, err
	}
	return s.repomanager.Conversations(s.db).GetForUser(ctx, conversationID, userID)
}

// History returns one page of messages, newest first, each with its read-by
// set. beforeID = 0 starts at the newest message; limit is clamped to
// [1, MaxHistoryLimit] with DefaultHistoryLimit for non-positive values.
func (s *ConversationService) History(ctx context.Context, conversationID, userID, beforeID int64, limit int) ([]*models.Message, error) {
	if err := requireParticipant(ctx, s.repomanager.Conversations(s.db), conversationID, userID); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	repo := s.repomanager.Messages(s.db)
	page, err := repo.ListPage(ctx, conversationID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		return page, nil
	}

	// page is ordered newest first
	readers, err := repo.ReadersInRange(ctx, conversationID, page[len(page)-1].ID, page[0].ID)
	if err != nil {
		return nil, err
	}
	for _, m := range page {
		if r, ok := readers[m.ID]; ok {
			m.ReadBy = r
		}
	}
	return page, nil
}

func requireParticipant(ctx context.Context, repo conversations.Repository, conversationID, userID int64) error {
	ok, err := repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrNotParticipant
	}
	return nil
}
