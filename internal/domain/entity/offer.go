package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

type ServiceOffer struct {
	ID                   uuid.UUID
	ConversationID       uuid.UUID
	LinkedConversationID *uuid.UUID
	ProviderID           uuid.UUID
	RequesterID          uuid.UUID
	OwnerID              uuid.UUID
	PropertyID           *uuid.UUID
	Amount               int64
	Currency             string
	Status               valueobject.OfferStatus
	TicketID             *uuid.UUID
	AppointmentID        *uuid.UUID
	PaymentRef           *string
	PaidAt               *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func NewServiceOffer(conversationID, providerID, requesterID, ownerID uuid.UUID, price valueobject.Money) (*ServiceOffer, error) {
	if price.Amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма предложения должна быть положительной")
	}
	if providerID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "исполнитель обязателен")
	}
	if providerID == requesterID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя сделать предложение самому себе")
	}
	now := time.Now()
	return &ServiceOffer{
		ID:             uuid.New(),
		ConversationID: conversationID,
		ProviderID:     providerID,
		RequesterID:    requesterID,
		OwnerID:        ownerID,
		Amount:         price.Amount,
		Currency:       price.Currency,
		Status:         valueobject.OfferStatusProposed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewTicketOffer создаёт предложение по одобренной смете заявки в статусе payment_pending.
func NewTicketOffer(t *Ticket, hold EscrowHold, currency string) (*ServiceOffer, error) {
	if t.AssigneeID == nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "у заявки нет исполнителя")
	}
	conversationID := uuid.Nil
	if t.ConversationID != nil {
		conversationID = *t.ConversationID
	}
	offer, err := NewServiceOffer(conversationID, *t.AssigneeID, t.RequesterID, t.OwnerID, valueobject.Money{Amount: hold.Amount, Currency: currency})
	if err != nil {
		return nil, err
	}
	ticketID := t.ID
	offer.TicketID = &ticketID
	if err := offer.ApplyHold(hold); err != nil {
		return nil, err
	}
	return offer, nil
}

func (o *ServiceOffer) transitionTo(next valueobject.OfferStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return apperror.NewInvalidTransition("offer", string(o.Status), string(next))
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	return nil
}

func (o *ServiceOffer) Accept() error {
	return o.transitionTo(valueobject.OfferStatusAccepted)
}

func (o *ServiceOffer) Reject() error {
	return o.transitionTo(valueobject.OfferStatusRejected)
}

func (o *ServiceOffer) Schedule(appointmentID uuid.UUID) error {
	if err := o.transitionTo(valueobject.OfferStatusScheduled); err != nil {
		return err
	}
	o.AppointmentID = &appointmentID
	return nil
}

func (o *ServiceOffer) RequestPayment() error {
	return o.transitionTo(valueobject.OfferStatusPaymentPending)
}

func (o *ServiceOffer) Cancel() error {
	return o.transitionTo(valueobject.OfferStatusCancelled)
}

// ApplyHold отражает авторизацию средств по заявке: предложение ждёт оплаты.
// Дальше payment_pending предложение двигает только платёжное событие,
// поэтому уже оплаченное предложение не меняется.
func (o *ServiceOffer) ApplyHold(hold EscrowHold) error {
	if hold.State != HoldStateAuthorized {
		return apperror.New(apperror.ErrCodeValidation, "списание средств подтверждается только платёжным событием")
	}
	if hold.Amount != o.Amount {
		return apperror.New(apperror.ErrCodeValidation, "сумма блокировки не совпадает с суммой предложения")
	}
	switch {
	case o.Status == valueobject.OfferStatusPaymentPending,
		o.Status == valueobject.OfferStatusPaid,
		o.Status.IsPaymentBacked():
		return nil
	}
	return o.transitionTo(valueobject.OfferStatusPaymentPending)
}

// ConfirmByPayment подтверждает предложение по успешному платежу.
// Возвращает false, если предложение уже подтверждено или завершено.
func (o *ServiceOffer) ConfirmByPayment(paymentRef string, at time.Time) (bool, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return false, apperror.New(apperror.ErrCodeValidation, "не указана ссылка на платёж")
	}
	if o.Status.IsPaymentBacked() {
		return false, nil
	}
	if err := o.transitionTo(valueobject.OfferStatusConfirmed); err != nil {
		return false, err
	}
	o.PaymentRef = &paymentRef
	o.PaidAt = &at
	return true, nil
}

// Release закрывает подтверждённое предложение после приёмки работ.
func (o *ServiceOffer) Release() error {
	if o.Status == valueobject.OfferStatusDone {
		return nil
	}
	if o.Status != valueobject.OfferStatusConfirmed || o.PaymentRef == nil {
		return apperror.NewInvalidTransition("offer", string(o.Status), string(valueobject.OfferStatusDone))
	}
	return o.transitionTo(valueobject.OfferStatusDone)
}

// Conversations возвращает беседы, куда публикуются события по предложению.
func (o *ServiceOffer) Conversations() []uuid.UUID {
	var out []uuid.UUID
	if o.ConversationID != uuid.Nil {
		out = append(out, o.ConversationID)
	}
	if o.LinkedConversationID != nil && *o.LinkedConversationID != o.ConversationID {
		out = append(out, *o.LinkedConversationID)
	}
	return out
}
