package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

type Appointment struct {
	ID             uuid.UUID
	OfferID        uuid.UUID
	ProviderID     uuid.UUID
	RequesterID    uuid.UUID
	OwnerID        uuid.UUID
	ConversationID *uuid.UUID
	StartsAt       time.Time
	EndsAt         time.Time
	Status         valueobject.AppointmentStatus
	PaymentRef     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewAppointment(offer *ServiceOffer, startsAt, endsAt time.Time) (*Appointment, error) {
	if !startsAt.Before(endsAt) {
		return nil, apperror.New(apperror.ErrCodeValidation, "начало встречи должно быть раньше окончания")
	}
	now := time.Now()
	return &Appointment{
		ID:          uuid.New(),
		OfferID:     offer.ID,
		ProviderID:  offer.ProviderID,
		RequesterID: offer.RequesterID,
		OwnerID:     offer.OwnerID,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Status:      valueobject.AppointmentStatusProposed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (a *Appointment) setStatus(next valueobject.AppointmentStatus) error {
	if a.Status.IsTerminal() {
		return apperror.NewInvalidTransition("appointment", string(a.Status), string(next))
	}
	a.Status = next
	a.UpdatedAt = time.Now()
	return nil
}

func (a *Appointment) Reschedule(startsAt, endsAt time.Time) error {
	if !startsAt.Before(endsAt) {
		return apperror.New(apperror.ErrCodeValidation, "начало встречи должно быть раньше окончания")
	}
	if err := a.setStatus(valueobject.AppointmentStatusRescheduled); err != nil {
		return err
	}
	a.StartsAt = startsAt
	a.EndsAt = endsAt
	return nil
}

func (a *Appointment) Cancel() error {
	return a.setStatus(valueobject.AppointmentStatusCancelled)
}

// ConfirmByPayment единственный путь в confirmed. Повтор для уже
// подтверждённой встречи возвращает false без ошибки.
func (a *Appointment) ConfirmByPayment(paymentRef string) (bool, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return false, apperror.New(apperror.ErrCodeValidation, "не указана ссылка на платёж")
	}
	if a.Status == valueobject.AppointmentStatusConfirmed || a.Status == valueobject.AppointmentStatusDone {
		return false, nil
	}
	if !a.Status.Confirmable() {
		return false, apperror.NewInvalidTransition("appointment", string(a.Status), string(valueobject.AppointmentStatusConfirmed))
	}
	a.Status = valueobject.AppointmentStatusConfirmed
	a.PaymentRef = &paymentRef
	a.UpdatedAt = time.Now()
	return true, nil
}

func (a *Appointment) Complete() error {
	if a.Status == valueobject.AppointmentStatusDone {
		return nil
	}
	if a.Status != valueobject.AppointmentStatusConfirmed {
		return apperror.NewInvalidTransition("appointment", string(a.Status), string(valueobject.AppointmentStatusDone))
	}
	return a.setStatus(valueobject.AppointmentStatusDone)
}
