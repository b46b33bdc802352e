package entity

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

type Conversation struct {
	ID             uuid.UUID
	ParticipantIDs []uuid.UUID
	LastActivityAt time.Time
	CreatedAt      time.Time
}

func (c *Conversation) IsParticipant(userID uuid.UUID) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type AuthorType string

const (
	AuthorUser   AuthorType = "user"
	AuthorSystem AuthorType = "system"
)

// Коды системных сообщений.
const (
	EventPaymentSucceeded     = "payment.succeeded"
	EventPaymentFailed        = "payment.failed"
	EventPaymentProcessing    = "payment.processing"
	EventAppointmentConfirmed = "appointment.confirmed"
)

// TicketEventCode код системного сообщения о переходе заявки.
func TicketEventCode(action TicketAction) string {
	return "ticket." + string(action)
}

type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	AuthorType     AuthorType
	AuthorID       *uuid.UUID
	Content        string
	EventCode      *string
	Payload        json.RawMessage
	EventID        *string
	CreatedAt      time.Time
}

// NewSystemMessage создаёт сообщение без текста: только код события и данные.
func NewSystemMessage(conversationID uuid.UUID, code string, payload any, eventID string) (*Message, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "код события обязателен")
	}
	if conversationID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "беседа обязательна")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, "некорректные данные события")
	}
	msg := &Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		AuthorType:     AuthorSystem,
		EventCode:      &code,
		Payload:        raw,
		CreatedAt:      time.Now(),
	}
	if eventID != "" {
		msg.EventID = &eventID
	}
	return msg, nil
}

func (m *Message) IsSystem() bool {
	return m.AuthorType == AuthorSystem
}

// PendingSystemMessage системное сообщение, публикация которого не удалась
// и будет повторена вне основного потока.
type PendingSystemMessage struct {
	ID             string          `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Code           string          `json:"code"`
	Payload        json.RawMessage `json:"payload"`
	EventID        string          `json:"event_id,omitempty"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
}

func NewPendingSystemMessage(conversationID uuid.UUID, code string, payload any, eventID string) (PendingSystemMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return PendingSystemMessage{}, apperror.Wrap(err, apperror.ErrCodeValidation, "некорректные данные события")
	}
	return PendingSystemMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Code:           code,
		Payload:        raw,
		EventID:        eventID,
		EnqueuedAt:     time.Now(),
	}, nil
}
