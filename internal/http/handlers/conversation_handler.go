package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/http/dto"
	"github.com/ignatzorin/rental-escrow/internal/http/response"
)

const (
	defaultMessagesLimit = 50
	maxMessagesLimit     = 100
)

type messageLister interface {
	Execute(ctx context.Context, conversationID, userID uuid.UUID, limit, offset int) ([]*entity.Message, error)
}

type ConversationHandler struct {
	listMessagesUC messageLister
}

func NewConversationHandler(listMessagesUC messageLister) *ConversationHandler {
	return &ConversationHandler{listMessagesUC: listMessagesUC}
}

// ListMessages обрабатывает GET /api/conversations/:id/messages.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "некорректный ID беседы")
		return
	}

	limit, err := parseIntQuery(c, "limit", defaultMessagesLimit)
	if err != nil {
		response.BadRequest(c, "некорректный limit")
		return
	}
	offset, err := parseIntQuery(c, "offset", 0)
	if err != nil {
		response.BadRequest(c, "некорректный offset")
		return
	}
	if limit <= 0 || limit > maxMessagesLimit {
		limit = defaultMessagesLimit
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := h.listMessagesUC.Execute(c.Request.Context(), convID, userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, dto.ToMessageResponses(msgs), response.NewPage(limit, offset, len(msgs)))
}
