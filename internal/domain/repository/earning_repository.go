package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
)

type EarningRepository interface {
	// Insert вставляет запись один раз на (offer_id, payment_ref).
	// Возвращает false, если запись уже была.
	Insert(ctx context.Context, e *entity.PlatformEarning) (bool, error)
	List(ctx context.Context, filter EarningFilter) ([]*entity.PlatformEarning, error)
}

type EarningFilter struct {
	From       *time.Time
	To         *time.Time
	ProviderID *uuid.UUID
	OfferID    *uuid.UUID
	Limit      int
	Offset     int
}
