package messages

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

func (r *PostgresRepository) Create(ctx context.Context, m models.NewMessage) (*models.Message, error) {
	query :=
		`INSERT INTO messages (conversation_id, sender_id, message_type, content, media_url)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		 RETURNING id, created_at
		 `

	msg := &models.Message{
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Type:           m.Type,
		Content:        m.Content,
		MediaURL:       m.MediaURL,
		ReadBy:         []int64{},
	}
	err := r.db.QueryRowContext(ctx, query, m.ConversationID, m.SenderID, string(m.Type), m.Content, m.MediaURL).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return msg, nil
}

func (r *PostgresRepository) ConversationOf(ctx context.Context, messageID int64) (int64, error) {
	query := `SELECT conversation_id FROM messages WHERE id = $1`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, messageID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// AppendReader adds userID to the read-by set of messageID. Adding an
// existing member is a no-op.
func (r *PostgresRepository) AppendReader(ctx context.Context, messageID, userID int64) error {
	query :=
		`INSERT INTO message_reads (message_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (message_id, user_id) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, messageID, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListPage returns up to limit messages of the conversation, newest first.
// beforeID = 0 starts from the newest message, otherwise only messages with
// smaller ids are returned.
func (r *PostgresRepository) ListPage(ctx context.Context, conversationID, beforeID int64, limit int) ([]*models.Message, error) {
	query :=
		`SELECT id, conversation_id, sender_id, message_type, content, COALESCE(media_url, ''), created_at
		 FROM messages
		 WHERE conversation_id = $1 AND ($2::bigint = 0 OR id < $2)
		 ORDER BY id DESC
		 LIMIT $3
		 `

	rows, err := r.db.QueryContext(ctx, query, conversationID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.Message{}
	for rows.Next() {
		m := &models.Message{ReadBy: []int64{}}
		var mt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &mt, &m.Content, &m.MediaURL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		m.Type = models.MessageType(mt)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// ReadersInRange returns the read-by sets of the conversation's messages
// with ids in [fromID, toID], keyed by message id.
func (r *PostgresRepository) ReadersInRange(ctx context.Context, conversationID, fromID, toID int64) (map[int64][]int64, error) {
	query :=
		`SELECT r.message_id, r.user_id
		 FROM message_reads r
		 JOIN messages m ON m.id = r.message_id
		 WHERE m.conversation_id = $1 AND r.message_id BETWEEN $2 AND $3
		 ORDER BY r.message_id, r.user_id
		 `

	rows, err := r.db.QueryContext(ctx, query, conversationID, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	readers := map[int64][]int64{}
	for rows.Next() {
		var messageID, userID int64
		if err := rows.Scan(&messageID, &userID); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		readers[messageID] = append(readers[messageID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return readers, nil
}
