package ticket

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/repository"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

type CreateTicketInput struct {
	RequesterID    uuid.UUID
	OwnerID        uuid.UUID
	Title          string
	ConversationID *uuid.UUID
}

type CreateTicketUseCase struct {
	ticketRepo repository.TicketRepository
}

func NewCreateTicketUseCase(ticketRepo repository.TicketRepository) *CreateTicketUseCase {
	return &CreateTicketUseCase{ticketRepo: ticketRepo}
}

func (uc *CreateTicketUseCase) Execute(ctx context.Context, input CreateTicketInput) (*entity.Ticket, error) {
	t, err := entity.NewTicket(input.RequesterID, input.OwnerID, input.Title, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := uc.ticketRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

type GetTicketUseCase struct {
	ticketRepo repository.TicketRepository
}

func NewGetTicketUseCase(ticketRepo repository.TicketRepository) *GetTicketUseCase {
	return &GetTicketUseCase{ticketRepo: ticketRepo}
}

func (uc *GetTicketUseCase) Execute(ctx context.Context, ticketID, userID uuid.UUID) (*entity.Ticket, error) {
	return loadForParticipant(ctx, uc.ticketRepo, ticketID, userID)
}

type GetTicketHistoryUseCase struct {
	ticketRepo  repository.TicketRepository
	historyRepo repository.TicketHistoryRepository
}

func NewGetTicketHistoryUseCase(ticketRepo repository.TicketRepository, historyRepo repository.TicketHistoryRepository) *GetTicketHistoryUseCase {
	return &GetTicketHistoryUseCase{ticketRepo: ticketRepo, historyRepo: historyRepo}
}

func (uc *GetTicketHistoryUseCase) Execute(ctx context.Context, ticketID, userID uuid.UUID) ([]*entity.TicketHistory, error) {
	if _, err := loadForParticipant(ctx, uc.ticketRepo, ticketID, userID); err != nil {
		return nil, err
	}
	return uc.historyRepo.FindByTicketID(ctx, ticketID)
}

func loadForParticipant(ctx context.Context, repo repository.TicketRepository, ticketID, userID uuid.UUID) (*entity.Ticket, error) {
	t, err := repo.FindByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if len(t.RolesOf(userID)) == 0 {
		return nil, apperror.ErrForbidden
	}
	return t, nil
}
