package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context) (*models.Conversation, error) {
	query := `INSERT INTO conversations DEFAULT VALUES RETURNING id, created_at`

	c := &models.Conversation{}
	if err := r.db.QueryRowContext(ctx, query).Scan(&c.ID, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) AddParticipant(ctx context.Context, conversationID, userID int64) error {
	query :=
		`INSERT INTO conversation_participants (conversation_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, conversationID, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// LockPair takes a transaction-scoped advisory lock on the unordered pair
// (userA, userB). It must run inside a transaction; the lock is released on
// commit or rollback.
func (r *PostgresRepository) LockPair(ctx context.Context, userA, userB int64) error {
	query :=
		`SELECT pg_advisory_xact_lock(hashtextextended(least($1::bigint, $2::bigint)::text || ':' || greatest($1::bigint, $2::bigint)::text, 0))`

	if _, err := r.db.ExecContext(ctx, query, userA, userB); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindDirect returns the oldest conversation whose only participants are
// userA and userB.
func (r *PostgresRepository) FindDirect(ctx context.Context, userA, userB int64) (int64, error) {
	query :=
		`SELECT a.conversation_id FROM conversation_participants a
		 JOIN conversation_participants b ON b.conversation_id = a.conversation_id AND b.user_id = $2
		 WHERE a.user_id = $1
		   AND (SELECT COUNT(*) FROM conversation_participants p WHERE p.conversation_id = a.conversation_id) = 2
		 ORDER BY a.conversation_id
		 LIMIT 1
		 `

	var id int64
	if err := r.db.QueryRowContext(ctx, query, userA, userB).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// ParticipantsOf returns participant ids in ascending order. An unknown
// conversation yields an empty slice.
func (r *PostgresRepository) ParticipantsOf(ctx context.Context, conversationID int64) ([]int64, error) {
	query :=
		`SELECT user_id FROM conversation_participants
		 WHERE conversation_id = $1
		 ORDER BY user_id
		 `

	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	query :=
		`SELECT EXISTS (
		   SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2
		 )
		 `

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, conversationID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

// summaryQuery lists the conversations of $1 with their newest message and
// unread count. $2 = 0 selects all of them, otherwise only conversation $2.
const summaryQuery = `SELECT c.id, c.created_at,
		   m.id, m.sender_id, m.message_type, m.content, m.media_url, m.created_at,
		   (SELECT COUNT(*) FROM messages u
		     WHERE u.conversation_id = c.id AND u.sender_id <> $1
		       AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = u.id AND r.user_id = $1)
		   ) AS unread
		 FROM conversations c
		 JOIN conversation_participants me ON me.conversation_id = c.id AND me.user_id = $1
		 LEFT JOIN LATERAL (
		   SELECT id, sender_id, message_type, content, media_url, created_at FROM messages
		   WHERE conversation_id = c.id
		   ORDER BY id DESC
		   LIMIT 1
		 ) m ON true
		 WHERE ($2::bigint = 0 OR c.id = $2)
		 ORDER BY COALESCE(m.created_at, c.created_at) DESC, c.id DESC
		 `

// othersQuery returns the participants other than $1 of every conversation
// $1 belongs to.
const othersQuery = `SELECT p.conversation_id, u.id, u.username
		 FROM conversation_participants p
		 JOIN conversation_participants me ON me.conversation_id = p.conversation_id AND me.user_id = $1
		 JOIN users u ON u.id = p.user_id
		 WHERE p.user_id <> $1 AND ($2::bigint = 0 OR p.conversation_id = $2)
		 ORDER BY p.conversation_id, u.id
		 `

func (r *PostgresRepository) ListForUser(ctx context.Context, userID int64) ([]*models.ConversationSummary, error) {
	return r.summaries(ctx, userID, 0)
}

func (r *PostgresRepository) GetForUser(ctx context.Context, conversationID, userID int64) (*models.ConversationSummary, error) {
	list, err := r.summaries(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, common.ErrorNotFound
	}
	return list[0], nil
}

func (r *PostgresRepository) summaries(ctx context.Context, userID, conversationID int64) ([]*models.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, summaryQuery, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.ConversationSummary{}
	byID := map[int64]*models.ConversationSummary{}

	for rows.Next() {
		var (
			s         models.ConversationSummary
			msgID     sql.NullInt64
			senderID  sql.NullInt64
			msgType   sql.NullString
			content   sql.NullString
			mediaURL  sql.NullString
			createdAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.CreatedAt, &msgID, &senderID, &msgType, &content, &mediaURL, &createdAt, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if msgID.Valid {
			s.LastMessage = &models.Message{
				ID:             msgID.Int64,
				ConversationID: s.ID,
				SenderID:       senderID.Int64,
				Type:           models.MessageType(msgType.String),
				Content:        content.String,
				MediaURL:       mediaURL.String,
				CreatedAt:      createdAt.Time,
			}
		}
		s.Participants = []models.Participant{}
		result = append(result, &s)
		byID[s.ID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	rows.Close()
	if len(result) == 0 {
		return result, nil
	}

	others, err := r.db.QueryContext(ctx, othersQuery, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer others.Close()

	for others.Next() {
		var (
			convID int64
			p      models.Participant
		)
		if err := others.Scan(&convID, &p.ID, &p.UserName); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if s, ok := byID[convID]; ok {
			s.Participants = append(s.Participants, p)
		}
	}
	if err := others.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
