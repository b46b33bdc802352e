package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/http/dto"
	"github.com/ignatzorin/rental-escrow/internal/http/response"
	"github.com/ignatzorin/rental-escrow/internal/usecase/ticket"
	"github.com/ignatzorin/rental-escrow/internal/validation"
)

type ticketCreator interface {
	Execute(ctx context.Context, input ticket.CreateTicketInput) (*entity.Ticket, error)
}

type ticketReader interface {
	Execute(ctx context.Context, ticketID, userID uuid.UUID) (*entity.Ticket, error)
}

type ticketHistoryReader interface {
	Execute(ctx context.Context, ticketID, userID uuid.UUID) ([]*entity.TicketHistory, error)
}

type ticketTransitioner interface {
	Execute(ctx context.Context, input ticket.TransitionInput) (*entity.Ticket, error)
}

// ticketActions сопоставляет сегмент пути с действием автомата заявки.
var ticketActions = map[string]entity.TicketAction{
	"quote":         entity.TicketActionQuote,
	"approve":       entity.TicketActionApprove,
	"start":         entity.TicketActionStart,
	"request-extra": entity.TicketActionRequestExtra,
	"approve-extra": entity.TicketActionApproveExtra,
	"abandon-extra": entity.TicketActionAbandonExtra,
	"complete":      entity.TicketActionComplete,
	"validate":      entity.TicketActionValidate,
	"dispute":       entity.TicketActionDispute,
}

type TicketHandler struct {
	createUC     ticketCreator
	getUC        ticketReader
	historyUC    ticketHistoryReader
	transitionUC ticketTransitioner
}

func NewTicketHandler(
	createUC ticketCreator,
	getUC ticketReader,
	historyUC ticketHistoryReader,
	transitionUC ticketTransitioner,
) *TicketHandler {
	return &TicketHandler{
		createUC:     createUC,
		getUC:        getUC,
		historyUC:    historyUC,
		transitionUC: transitionUC,
	}
}

// Create обрабатывает POST /api/tickets.
func (h *TicketHandler) Create(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	var req dto.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "некорректные данные заявки")
		return
	}
	if err := validation.ValidateTicketTitle(req.Title); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	t, err := h.createUC.Execute(c.Request.Context(), ticket.CreateTicketInput{
		RequesterID:    userID,
		OwnerID:        req.OwnerID,
		Title:          req.Title,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToTicketResponse(t))
}

// Get обрабатывает GET /api/tickets/:id.
func (h *TicketHandler) Get(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "некорректный ID заявки")
		return
	}

	t, err := h.getUC.Execute(c.Request.Context(), ticketID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToTicketResponse(t))
}

// History обрабатывает GET /api/tickets/:id/history.
func (h *TicketHandler) History(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "некорректный ID заявки")
		return
	}

	rows, err := h.historyUC.Execute(c.Request.Context(), ticketID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToTicketHistoryResponses(rows))
}

// Transition обрабатывает POST /api/tickets/:id/:action.
// Роль пользователя в заявке определяет use case по её участникам.
func (h *TicketHandler) Transition(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "некорректный ID заявки")
		return
	}
	action, ok := ticketActions[c.Param("action")]
	if !ok {
		response.NotFound(c, "неизвестное действие")
		return
	}

	var req dto.TicketActionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "некорректные данные действия")
			return
		}
	}
	if err := validateActionRequest(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	t, err := h.transitionUC.Execute(c.Request.Context(), ticket.TransitionInput{
		TicketID:   ticketID,
		UserID:     userID,
		Action:     action,
		Amount:     req.Amount,
		InvoiceRef: req.InvoiceRef,
		Reason:     req.Reason,
		Hold:       req.Hold.ToEntity(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto.ToTicketResponse(t))
}

func validateActionRequest(req *dto.TicketActionRequest) error {
	if err := validation.ValidateReference("ссылка на счёт", req.InvoiceRef); err != nil {
		return err
	}
	if err := validation.ValidateDisputeReason(req.Reason); err != nil {
		return err
	}
	if req.Hold != nil {
		if err := validation.ValidateReference("ссылка на платёж", req.Hold.PaymentRef); err != nil {
			return err
		}
		if err := validation.ValidateCurrency(req.Hold.Currency); err != nil {
			return err
		}
	}
	return nil
}
