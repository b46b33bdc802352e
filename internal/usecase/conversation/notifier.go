package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/logger"
)

const DefaultPublishTimeout = 3 * time.Second

// SystemMessagePublisher реализуется PublishSystemMessageUseCase.
type SystemMessagePublisher interface {
	Execute(ctx context.Context, conversationID uuid.UUID, code string, payload any, eventID string) (*entity.Message, error)
}

type RetryQueue interface {
	Enqueue(ctx context.Context, msg entity.PendingSystemMessage, at time.Time) error
	Dequeue(ctx context.Context, now time.Time) (*entity.PendingSystemMessage, error)
}

// Notifier публикует системные сообщения в режиме best-effort: ошибка
// публикации не возвращается вызывающему, сообщение уходит в очередь повторов.
type Notifier struct {
	publisher     SystemMessagePublisher
	queue         RetryQueue
	timeout       time.Duration
	retryInterval time.Duration
}

func NewNotifier(publisher SystemMessagePublisher, queue RetryQueue, timeout, retryInterval time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	return &Notifier{publisher: publisher, queue: queue, timeout: timeout, retryInterval: retryInterval}
}

// Notify возвращает true, если сообщение опубликовано сразу.
func (n *Notifier) Notify(ctx context.Context, conversationID uuid.UUID, code string, payload any, eventID string) bool {
	if conversationID == uuid.Nil {
		return false
	}
	// отмена входящего запроса не должна обрывать публикацию после фиксации денег
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	_, err := n.publisher.Execute(pubCtx, conversationID, code, payload, eventID)
	if err == nil {
		return true
	}

	entry := logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"code":            code,
		"event_id":        eventID,
	})
	entry.WithError(err).Warn("системное сообщение не опубликовано, ставим в очередь повторов")

	if n.queue == nil {
		return false
	}
	pending, perr := entity.NewPendingSystemMessage(conversationID, code, payload, eventID)
	if perr != nil {
		entry.WithError(perr).Error("не удалось подготовить сообщение для повтора")
		return false
	}
	pending.Attempts = 1
	pending.LastError = err.Error()

	enqCtx, cancelEnq := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancelEnq()
	if qerr := n.queue.Enqueue(enqCtx, pending, time.Now().Add(n.retryInterval)); qerr != nil {
		entry.WithError(qerr).Error("не удалось поставить сообщение в очередь повторов")
	}
	return false
}
