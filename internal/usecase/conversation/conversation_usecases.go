package conversation

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/repository"
	"github.com/ignatzorin/rental-escrow/internal/logger"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

// SystemMessageEvent имя события в WebSocket API.
const SystemMessageEvent = "conversation.system_message"

// Broadcaster доставляет событие подключённым клиентам пользователя.
type Broadcaster interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// PublishSystemMessageUseCase дописывает системное сообщение в беседу.
// Дедупликации здесь нет: повторный вызов создаст ещё одно сообщение.
type PublishSystemMessageUseCase struct {
	convRepo    repository.ConversationRepository
	msgRepo     repository.MessageRepository
	broadcaster Broadcaster
}

func NewPublishSystemMessageUseCase(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository, broadcaster Broadcaster) *PublishSystemMessageUseCase {
	return &PublishSystemMessageUseCase{convRepo: convRepo, msgRepo: msgRepo, broadcaster: broadcaster}
}

func (uc *PublishSystemMessageUseCase) Execute(ctx context.Context, conversationID uuid.UUID, code string, payload any, eventID string) (*entity.Message, error) {
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperror.ErrConversationNotFound
	}

	msg, err := entity.NewSystemMessage(conv.ID, code, payload, eventID)
	if err != nil {
		return nil, err
	}
	if err := uc.msgRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := uc.convRepo.TouchLastActivity(ctx, conv.ID, msg.CreatedAt); err != nil {
		// сообщение уже сохранено, повторять публикацию нельзя
		logger.Log.WithError(err).WithField("conversation_id", conv.ID).Warn("не удалось обновить активность беседы")
	}

	uc.push(conv, msg)
	return msg, nil
}

func (uc *PublishSystemMessageUseCase) push(conv *entity.Conversation, msg *entity.Message) {
	if uc.broadcaster == nil {
		return
	}
	data := map[string]any{
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
		"code":            *msg.EventCode,
		"payload":         msg.Payload,
		"created_at":      msg.CreatedAt,
	}
	for _, userID := range conv.ParticipantIDs {
		if err := uc.broadcaster.BroadcastToUser(userID, SystemMessageEvent, data); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"conversation_id": conv.ID,
				"user_id":         userID,
			}).WithError(err).Warn("ws: не удалось отправить системное сообщение")
		}
	}
}

type ListMessagesUseCase struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
}

func NewListMessagesUseCase(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository) *ListMessagesUseCase {
	return &ListMessagesUseCase{convRepo: convRepo, msgRepo: msgRepo}
}

func (uc *ListMessagesUseCase) Execute(ctx context.Context, conversationID, userID uuid.UUID, limit, offset int) ([]*entity.Message, error) {
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperror.ErrConversationNotFound
	}
	if !conv.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return uc.msgRepo.FindByConversationID(ctx, conversationID, limit, offset)
}
