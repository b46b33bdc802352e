package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Conversation, error)
	TouchLastActivity(ctx context.Context, id uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
	FindByConversationID(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*entity.Message, error)
}
