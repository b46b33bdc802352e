package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

type ConversationRepositoryAdapter struct {
	db *sqlx.DB
}

func NewConversationRepositoryAdapter(db *sqlx.DB) *ConversationRepositoryAdapter {
	return &ConversationRepositoryAdapter{db: db}
}

func (r *ConversationRepositoryAdapter) Create(ctx context.Context, conv *entity.Conversation) error {
	ids := make([]string, len(conv.ParticipantIDs))
	for i, id := range conv.ParticipantIDs {
		ids[i] = id.String()
	}
	query := `INSERT INTO conversations (id, participant_ids, last_activity_at, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, conv.ID, pq.Array(ids), conv.LastActivityAt, conv.CreatedAt); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать беседу")
	}
	return nil
}

func (r *ConversationRepositoryAdapter) FindByID(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	var (
		conv         entity.Conversation
		participants pq.StringArray
	)
	query := `SELECT id, participant_ids, last_activity_at, created_at FROM conversations WHERE id = $1`
	err := r.db.QueryRowxContext(ctx, query, id).Scan(&conv.ID, &participants, &conv.LastActivityAt, &conv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.ErrConversationNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить беседу")
	}
	conv.ParticipantIDs = make([]uuid.UUID, 0, len(participants))
	for _, raw := range participants {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "некорректный участник беседы")
		}
		conv.ParticipantIDs = append(conv.ParticipantIDs, pid)
	}
	return &conv, nil
}

// TouchLastActivity не сдвигает время назад при гонке публикаций.
func (r *ConversationRepositoryAdapter) TouchLastActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET last_activity_at = GREATEST(last_activity_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить активность беседы")
	}
	return requireRow(res, apperror.ErrConversationNotFound)
}

type MessageRepositoryAdapter struct {
	db *sqlx.DB
}

func NewMessageRepositoryAdapter(db *sqlx.DB) *MessageRepositoryAdapter {
	return &MessageRepositoryAdapter{db: db}
}

func (r *MessageRepositoryAdapter) Create(ctx context.Context, msg *entity.Message) error {
	query := `INSERT INTO messages (id, conversation_id, author_type, author_id, content, event_code, payload, event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	var payload sql.NullString
	if len(msg.Payload) > 0 {
		payload = sql.NullString{String: string(msg.Payload), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, msg.ID, msg.ConversationID, string(msg.AuthorType), msg.AuthorID, msg.Content,
		nullString(msg.EventCode), payload, nullString(msg.EventID), msg.CreatedAt)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать сообщение")
	}
	return nil
}

func (r *MessageRepositoryAdapter) FindByConversationID(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*entity.Message, error) {
	var rows []messageRow
	query := `SELECT id, conversation_id, author_type, author_id, content, event_code, payload, event_id, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, conversationID, limit, offset); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить сообщения")
	}
	result := make([]*entity.Message, len(rows))
	for i, row := range rows {
		result[i] = row.toEntity()
	}
	return result, nil
}

type messageRow struct {
	ID             uuid.UUID      `db:"id"`
	ConversationID uuid.UUID      `db:"conversation_id"`
	AuthorType     string         `db:"author_type"`
	AuthorID       *uuid.UUID     `db:"author_id"`
	Content        string         `db:"content"`
	EventCode      sql.NullString `db:"event_code"`
	Payload        []byte         `db:"payload"`
	EventID        sql.NullString `db:"event_id"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (m *messageRow) toEntity() *entity.Message {
	return &entity.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		AuthorType:     entity.AuthorType(m.AuthorType),
		AuthorID:       m.AuthorID,
		Content:        m.Content,
		EventCode:      stringPtr(m.EventCode),
		Payload:        json.RawMessage(m.Payload),
		EventID:        stringPtr(m.EventID),
		CreatedAt:      m.CreatedAt,
	}
}
