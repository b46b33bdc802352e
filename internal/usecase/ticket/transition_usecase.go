package ticket

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/repository"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/logger"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

// Notifier публикует системные сообщения в режиме best-effort.
type Notifier interface {
	Notify(ctx context.Context, conversationID uuid.UUID, code string, payload any, eventID string) bool
}

type TransitionInput struct {
	TicketID   uuid.UUID
	UserID     uuid.UUID
	Action     entity.TicketAction
	Amount     int64
	InvoiceRef string
	Reason     string
	Hold       *entity.EscrowHold
}

type TransitionTicketUseCase struct {
	ticketRepo  repository.TicketRepository
	historyRepo repository.TicketHistoryRepository
	offerRepo   repository.OfferRepository
	apptRepo    repository.AppointmentRepository
	notifier    Notifier
	currency    string
}

func NewTransitionTicketUseCase(
	ticketRepo repository.TicketRepository,
	historyRepo repository.TicketHistoryRepository,
	offerRepo repository.OfferRepository,
	apptRepo repository.AppointmentRepository,
	notifier Notifier,
	currency string,
) *TransitionTicketUseCase {
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	return &TransitionTicketUseCase{
		ticketRepo:  ticketRepo,
		historyRepo: historyRepo,
		offerRepo:   offerRepo,
		apptRepo:    apptRepo,
		notifier:    notifier,
		currency:    currency,
	}
}

func (uc *TransitionTicketUseCase) Execute(ctx context.Context, input TransitionInput) (*entity.Ticket, error) {
	t, err := uc.ticketRepo.FindByID(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	actor, err := t.ActorFor(input.UserID, input.Action)
	if err != nil {
		return nil, err
	}

	from := t.Status
	details := map[string]any{}

	switch input.Action {
	case entity.TicketActionQuote:
		err = t.Quote(actor, input.Amount)
		details["amount"] = input.Amount
	case entity.TicketActionApprove:
		if input.Hold == nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "требуется подтверждение блокировки средств")
		}
		if err = t.Approve(actor, *input.Hold); err == nil {
			err = uc.holdOffer(ctx, t, *input.Hold)
			details["payment_ref"] = input.Hold.PaymentRef
			details["hold_state"] = input.Hold.State
		}
	case entity.TicketActionStart:
		err = t.StartWork(actor)
	case entity.TicketActionRequestExtra:
		err = t.RequestExtra(actor, input.Amount)
		details["amount"] = input.Amount
	case entity.TicketActionApproveExtra:
		err = t.ApproveExtra(actor)
	case entity.TicketActionAbandonExtra:
		err = t.AbandonExtra(actor)
	case entity.TicketActionComplete:
		err = t.Complete(actor, input.InvoiceRef)
		if input.InvoiceRef != "" {
			details["invoice_ref"] = input.InvoiceRef
		}
	case entity.TicketActionValidate:
		if err = t.Validate(actor); err == nil {
			err = uc.releaseOffer(ctx, t)
		}
	case entity.TicketActionDispute:
		err = t.Dispute(actor, input.Reason)
		if input.Reason != "" {
			details["reason"] = input.Reason
		}
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестное действие")
	}
	if err != nil {
		return nil, err
	}

	if err := uc.ticketRepo.Update(ctx, t, from); err != nil {
		return nil, err
	}
	uc.record(ctx, t, actor, input.Action, from, details, "")
	return t, nil
}

// AdvanceOnPayment переводит заявку QUOTE -> ESCROW от имени системы, когда
// успешный платёж пришёл раньше ручного одобрения. Для других статусов ничего не делает.
func (uc *TransitionTicketUseCase) AdvanceOnPayment(ctx context.Context, ticketID uuid.UUID, hold entity.EscrowHold, eventID string) error {
	t, err := uc.ticketRepo.FindByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if t.Status != valueobject.TicketStatusQuote {
		return nil
	}

	from := t.Status
	if err := t.Approve(entity.SystemActor, hold); err != nil {
		return err
	}
	if err := uc.ticketRepo.Update(ctx, t, from); err != nil {
		if errors.Is(err, apperror.ErrConcurrentUpdate) {
			// заявку одобрили параллельно
			return nil
		}
		return err
	}
	uc.record(ctx, t, entity.SystemActor, entity.TicketActionApprove, from, map[string]any{"payment_ref": hold.PaymentRef}, eventID)
	return nil
}

// holdOffer создаёт или обновляет предложение заявки по подтверждённой блокировке.
// Параллельное одобрение, успевшее создать предложение первым, не плодит второе:
// уникальный индекс отклоняет вставку, и используется уже созданное.
func (uc *TransitionTicketUseCase) holdOffer(ctx context.Context, t *entity.Ticket, hold entity.EscrowHold) error {
	offer, err := uc.findOffer(ctx, t)
	if err != nil && !apperror.IsNotFound(err) {
		return err
	}

	if offer == nil {
		offer, err = entity.NewTicketOffer(t, hold, uc.currency)
		if err != nil {
			return err
		}
		err = uc.offerRepo.Create(ctx, offer)
		if err == nil {
			t.LinkOffer(offer.ID)
			return nil
		}
		if !errors.Is(err, apperror.ErrTicketOfferExists) {
			return err
		}
		if offer, err = uc.offerRepo.FindByTicketID(ctx, t.ID); err != nil {
			return err
		}
	}

	prev := offer.Status
	if err := offer.ApplyHold(hold); err != nil {
		return err
	}
	if offer.Status != prev {
		if err := uc.offerRepo.Update(ctx, offer, prev); err != nil {
			return err
		}
	}
	t.LinkOffer(offer.ID)
	return nil
}

// releaseOffer завершает оплаченное предложение и его встречу при приёмке работ.
func (uc *TransitionTicketUseCase) releaseOffer(ctx context.Context, t *entity.Ticket) error {
	offer, err := uc.findOffer(ctx, t)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.New(apperror.ErrCodeValidation, "у заявки нет оплаченного предложения")
		}
		return err
	}

	prev := offer.Status
	if err := offer.Release(); err != nil {
		return err
	}
	if offer.Status != prev {
		if err := uc.offerRepo.Update(ctx, offer, prev); err != nil {
			return err
		}
	}

	if offer.AppointmentID == nil {
		return nil
	}
	appt, err := uc.apptRepo.FindByID(ctx, *offer.AppointmentID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return err
	}
	apptPrev := appt.Status
	if err := appt.Complete(); err != nil {
		logger.ForTicket(t.ID.String()).WithError(err).Warn("встреча не может быть завершена")
		return nil
	}
	if appt.Status != apptPrev {
		return uc.apptRepo.Update(ctx, appt, apptPrev)
	}
	return nil
}

func (uc *TransitionTicketUseCase) findOffer(ctx context.Context, t *entity.Ticket) (*entity.ServiceOffer, error) {
	if t.OfferID != nil {
		return uc.offerRepo.FindByID(ctx, *t.OfferID)
	}
	return uc.offerRepo.FindByTicketID(ctx, t.ID)
}

// record пишет историю и публикует событие. Заявка уже сохранена,
// поэтому ошибки здесь только логируются.
func (uc *TransitionTicketUseCase) record(ctx context.Context, t *entity.Ticket, actor entity.Actor, action entity.TicketAction, from valueobject.TicketStatus, details map[string]any, eventID string) {
	if eventID != "" {
		details["event_id"] = eventID
	}
	h := entity.NewTicketHistory(t.ID, actor, action, from, t.Status, details)
	if err := uc.historyRepo.Create(ctx, h); err != nil {
		logger.ForTicket(t.ID.String()).WithError(err).Error("не удалось записать историю заявки")
	}

	if uc.notifier == nil || t.ConversationID == nil {
		return
	}
	payload := map[string]any{
		"ticket_id":  t.ID,
		"action":     action,
		"from":       from,
		"to":         t.Status,
		"actor_role": actor.Role,
	}
	for k, v := range details {
		payload[k] = v
	}
	uc.notifier.Notify(ctx, *t.ConversationID, entity.TicketEventCode(action), payload, eventID)
}
