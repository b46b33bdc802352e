package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/fee"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

// PlatformEarning запись журнала доходов платформы. Уникальна по (OfferID, PaymentRef).
type PlatformEarning struct {
	ID         uuid.UUID
	OfferID    uuid.UUID
	ProviderID uuid.UUID
	Gross      int64
	Fee        int64
	NetToPro   int64
	Currency   string
	PaymentRef string
	EventID    string
	CreatedAt  time.Time
}

func NewPlatformEarning(offer *ServiceOffer, breakdown fee.Breakdown, paymentRef, eventID string) (*PlatformEarning, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "не указана ссылка на платёж")
	}
	if breakdown.Gross <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма дохода должна быть положительной")
	}
	if !breakdown.Balanced() {
		return nil, apperror.New(apperror.ErrCodeValidation, "комиссия и выплата не сходятся с суммой")
	}
	return &PlatformEarning{
		ID:         uuid.New(),
		OfferID:    offer.ID,
		ProviderID: offer.ProviderID,
		Gross:      breakdown.Gross,
		Fee:        breakdown.Fee,
		NetToPro:   breakdown.NetToPro,
		Currency:   offer.Currency,
		PaymentRef: paymentRef,
		EventID:    eventID,
		CreatedAt:  time.Now(),
	}, nil
}

func (e *PlatformEarning) Breakdown() fee.Breakdown {
	return fee.Breakdown{Gross: e.Gross, Fee: e.Fee, NetToPro: e.NetToPro}
}
