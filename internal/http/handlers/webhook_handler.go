package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/rental-escrow/internal/http/response"
	"github.com/ignatzorin/rental-escrow/internal/logger"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/rental-escrow/internal/usecase/webhook"
)

// maxWebhookBody ограничивает тело события, у провайдера оно не превышает 64 КБ.
const maxWebhookBody = 64 << 10

const signatureHeader = "Stripe-Signature"

// PaymentEventHandler проверяет и применяет событие платёжного провайдера.
type PaymentEventHandler interface {
	Handle(ctx context.Context, payload []byte, signature string) (webhook.Result, error)
}

// WebhookHandler принимает события платёжного провайдера.
type WebhookHandler struct {
	events PaymentEventHandler
}

func NewWebhookHandler(events PaymentEventHandler) *WebhookHandler {
	return &WebhookHandler{events: events}
}

// Handle обрабатывает POST /webhooks/payments.
// 200 означает, что событие обработано или уже было обработано, 500 просит провайдера повторить доставку.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "не удалось прочитать тело запроса")
		return
	}

	res, err := h.events.Handle(c.Request.Context(), body, c.GetHeader(signatureHeader))
	if err != nil {
		// подпись или тело события неверны, повтор доставки ничего не изменит
		if !apperror.IsRetryable(err) {
			logger.Log.WithField("remote", c.ClientIP()).WithError(err).Warn("событие отклонено")
			response.Error(c, err)
			return
		}
		logger.Log.WithFields(logrus.Fields{
			"provider": res.Provider,
			"event_id": res.EventID,
		}).WithError(err).Error("событие не обработано, ожидаем повторную доставку")
		response.Retry(c)
		return
	}

	response.Ack(c, res.Duplicate)
}
