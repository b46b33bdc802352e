package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
)

type OfferRepository interface {
	Create(ctx context.Context, offer *entity.ServiceOffer) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ServiceOffer, error)
	// FindByTicketID возвращает последнее не отменённое предложение заявки или ErrOfferNotFound.
	FindByTicketID(ctx context.Context, ticketID uuid.UUID) (*entity.ServiceOffer, error)
	// Update условное обновление: WHERE status = expected.
	// Проигравший гонку получает apperror.ErrConcurrentUpdate.
	Update(ctx context.Context, offer *entity.ServiceOffer, expected valueobject.OfferStatus) error
}

type AppointmentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Appointment, error)
	Update(ctx context.Context, appt *entity.Appointment, expected valueobject.AppointmentStatus) error
}
