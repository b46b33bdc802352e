package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
)

type TicketRepository interface {
	Create(ctx context.Context, ticket *entity.Ticket) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Ticket, error)
	// Update сохраняет заявку, только если её статус в базе всё ещё expected.
	// Иначе возвращает apperror.ErrConcurrentUpdate.
	Update(ctx context.Context, ticket *entity.Ticket, expected valueobject.TicketStatus) error
	StampPayment(ctx context.Context, id uuid.UUID, ref string, at time.Time) error
}

type TicketHistoryRepository interface {
	Create(ctx context.Context, h *entity.TicketHistory) error
	FindByTicketID(ctx context.Context, ticketID uuid.UUID) ([]*entity.TicketHistory, error)
}

type ContractRepository interface {
	StampPayment(ctx context.Context, id uuid.UUID, ref string, at time.Time) error
}
