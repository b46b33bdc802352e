package conversation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/logger"
)

const (
	DefaultRetryMaxAttempts = 5
	DefaultRetryInterval    = 30 * time.Second
)

// RetryWorker дочитывает очередь неудавшихся публикаций.
// Задержка растёт линейно с номером попытки.
type RetryWorker struct {
	queue       RetryQueue
	publisher   SystemMessagePublisher
	maxAttempts int
	interval    time.Duration
	timeout     time.Duration
	now         func() time.Time
}

func NewRetryWorker(queue RetryQueue, publisher SystemMessagePublisher, maxAttempts int, interval, timeout time.Duration) *RetryWorker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryMaxAttempts
	}
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &RetryWorker{
		queue:       queue,
		publisher:   publisher,
		maxAttempts: maxAttempts,
		interval:    interval,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Run крутится до отмены контекста.
func (w *RetryWorker) Run(ctx context.Context) {
	logger.Log.WithField("max_attempts", w.maxAttempts).Info("message retry worker started")
	ticker := time.NewTicker(w.pollInterval())
	defer ticker.Stop()

	for {
		// выбираем всё, что созрело, затем ждём следующий тик
		for {
			processed, err := w.ProcessOne(ctx)
			if err != nil {
				logger.Log.WithError(err).Error("message retry worker: ошибка очереди")
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			logger.Log.Info("message retry worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessOne обрабатывает одно созревшее сообщение. Возвращает false, если очередь пуста.
func (w *RetryWorker) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := w.queue.Dequeue(ctx, w.now())
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	_, err = w.publisher.Execute(pubCtx, msg.ConversationID, msg.Code, msg.Payload, msg.EventID)
	if err == nil {
		logger.Log.WithFields(fields(msg)).Info("системное сообщение опубликовано повторно")
		return true, nil
	}

	msg.Attempts++
	msg.LastError = err.Error()
	if msg.Attempts >= w.maxAttempts {
		logger.Log.WithFields(fields(msg)).WithError(err).Error("системное сообщение отброшено после исчерпания попыток")
		return true, nil
	}

	next := w.now().Add(time.Duration(msg.Attempts) * w.interval)
	if qerr := w.queue.Enqueue(ctx, *msg, next); qerr != nil {
		return true, qerr
	}
	logger.Log.WithFields(fields(msg)).WithError(err).Warn("повтор публикации не удался")
	return true, nil
}

func (w *RetryWorker) pollInterval() time.Duration {
	if w.interval < time.Second {
		return w.interval
	}
	return time.Second
}

func fields(msg *entity.PendingSystemMessage) logrus.Fields {
	return logrus.Fields{
		"conversation_id": msg.ConversationID,
		"code":            msg.Code,
		"event_id":        msg.EventID,
		"attempts":        msg.Attempts,
	}
}
