package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/fee"
	"github.com/ignatzorin/rental-escrow/internal/domain/payment"
	"github.com/ignatzorin/rental-escrow/internal/domain/repository"
	"github.com/ignatzorin/rental-escrow/internal/logger"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

// Verifier проверяет подпись и нормализует событие провайдера.
type Verifier interface {
	Verify(payload []byte, signature string) (payment.Event, error)
}

type Notifier interface {
	Notify(ctx context.Context, conversationID uuid.UUID, code string, payload any, eventID string) bool
}

// TicketAdvancer переводит заявку в ESCROW по успешному платежу.
type TicketAdvancer interface {
	AdvanceOnPayment(ctx context.Context, ticketID uuid.UUID, hold entity.EscrowHold, eventID string) error
}

type Deps struct {
	Verifier     Verifier
	Events       repository.ProcessedEventRepository
	Offers       repository.OfferRepository
	Appointments repository.AppointmentRepository
	Earnings     repository.EarningRepository
	Tickets      repository.TicketRepository
	Contracts    repository.ContractRepository
	Advancer     TicketAdvancer
	Notifier     Notifier
	Fees         fee.Calculator
}

// Result итог обработки доставки. Любой Result без ошибки означает,
// что провайдеру можно отвечать успехом.
type Result struct {
	Provider  string
	EventID   string
	Kind      payment.Kind
	Duplicate bool
	Dead      bool
}

// Dispatcher применяет каждое внешнее событие ровно один раз.
type Dispatcher struct {
	deps Deps
	now  func() time.Time
}

func NewDispatcher(deps Deps) *Dispatcher {
	return &Dispatcher{deps: deps, now: time.Now}
}

// Handle проверяет подпись и применяет событие. При ошибке подписи
// журнал идемпотентности не трогается.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte, signature string) (Result, error) {
	ev, err := d.deps.Verifier.Verify(payload, signature)
	if err != nil {
		return Result{}, err
	}
	return d.Apply(ctx, ev)
}

// Apply захватывает событие в журнале и выполняет его. Повторная доставка
// уже обработанного события возвращает Duplicate без побочных эффектов.
func (d *Dispatcher) Apply(ctx context.Context, ev payment.Event) (Result, error) {
	meta := ev.Meta()
	res := Result{Provider: meta.Provider, EventID: meta.EventID, Kind: ev.Kind()}
	log := logger.ForEvent(meta.Provider, meta.EventID).WithField("type", meta.Type)

	if _, claimed, err := d.deps.Events.Claim(ctx, meta.Provider, meta.EventID, meta.Type); err != nil {
		log.WithError(err).Error("не удалось зафиксировать событие")
		return res, err
	} else if !claimed {
		log.Info("повторная доставка события, пропускаем")
		res.Duplicate = true
		return res, nil
	}

	err := d.dispatch(ctx, ev, log)
	if err == nil {
		if markErr := d.deps.Events.MarkCompleted(ctx, meta.Provider, meta.EventID); markErr != nil {
			// шаги идемпотентны, повторная обработка после истечения аренды безопасна
			log.WithError(markErr).Error("не удалось отметить событие обработанным")
		}
		log.Info("событие обработано")
		return res, nil
	}

	if !apperror.IsRetryable(err) {
		if markErr := d.deps.Events.MarkDead(ctx, meta.Provider, meta.EventID, err); markErr != nil {
			log.WithError(markErr).Error("не удалось отметить событие как неисправимое")
		}
		log.WithError(err).Error("событие не может быть применено, требуется разбор оператором")
		res.Dead = true
		return res, nil
	}

	if markErr := d.deps.Events.MarkFailed(ctx, meta.Provider, meta.EventID, err); markErr != nil {
		log.WithError(markErr).Error("не удалось отметить событие как неудачное")
	}
	log.WithError(err).Warn("ошибка обработки события, ждём повторной доставки")
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, ev payment.Event, log *logrus.Entry) error {
	switch e := ev.(type) {
	case payment.Succeeded:
		return d.onSucceeded(ctx, e, log)
	case payment.Failed:
		return d.onOfferNotice(ctx, e.Target, e.EventID, entity.EventPaymentFailed, map[string]any{
			"payment_ref": e.PaymentRef,
			"amount":      e.Amount,
			"currency":    e.Currency,
			"reason":      e.Reason,
		}, log)
	case payment.Processing:
		return d.onOfferNotice(ctx, e.Target, e.EventID, entity.EventPaymentProcessing, map[string]any{
			"payment_ref": e.PaymentRef,
			"amount":      e.Amount,
			"currency":    e.Currency,
		}, log)
	case payment.Refunded:
		// возврат фиксируется только в журнале событий, доходы и статусы не меняются
		log.WithFields(logrus.Fields{"payment_ref": e.PaymentRef, "amount": e.Amount}).Info("возврат принят без изменений")
		return nil
	case payment.Ignored:
		log.Debug("тип события не обрабатывается")
		return nil
	default:
		return apperror.New(apperror.ErrCodeBadRequest, "неизвестный вид платёжного события")
	}
}

func (d *Dispatcher) onSucceeded(ctx context.Context, e payment.Succeeded, log *logrus.Entry) error {
	at := e.CreatedAt
	if at.IsZero() {
		at = d.now()
	}
	log = log.WithFields(logrus.Fields{"payment_ref": e.PaymentRef, "target": e.Target.Kind, "target_id": e.Target.ID})

	switch e.Target.Kind {
	case payment.TargetOffer:
		return d.confirmOffer(ctx, e, at, log)
	case payment.TargetTicket:
		return d.ignoreMissing(d.deps.Tickets.StampPayment(ctx, e.Target.ID, e.PaymentRef, at), log)
	case payment.TargetContract:
		return d.ignoreMissing(d.deps.Contracts.StampPayment(ctx, e.Target.ID, e.PaymentRef, at), log)
	}
	log.Warn("платёж не привязан к объекту платформы")
	return nil
}

func (d *Dispatcher) confirmOffer(ctx context.Context, e payment.Succeeded, at time.Time, log *logrus.Entry) error {
	offer, err := d.deps.Offers.FindByID(ctx, e.Target.ID)
	if err != nil {
		return d.ignoreMissing(err, log)
	}
	if e.Currency != "" && !strings.EqualFold(e.Currency, offer.Currency) {
		return apperror.New(apperror.ErrCodeValidation, "валюта платежа не совпадает с валютой предложения")
	}

	gross := offer.Amount
	if e.Amount > 0 && e.Amount != offer.Amount {
		log.WithFields(logrus.Fields{"paid": e.Amount, "offer_amount": offer.Amount}).Warn("сумма платежа отличается от суммы предложения")
		gross = e.Amount
	}
	breakdown, err := d.deps.Fees.Service(gross)
	if err != nil {
		return err
	}

	// подтверждение проверяется на копии: доход не пишется по предложению,
	// которое платёж подтвердить не может
	check := *offer
	if _, err := check.ConfirmByPayment(e.PaymentRef, at); err != nil {
		return err
	}

	// доход пишется раньше смены статуса, вставка идемпотентна
	earning, err := entity.NewPlatformEarning(offer, breakdown, e.PaymentRef, e.EventID)
	if err != nil {
		return err
	}
	inserted, err := d.deps.Earnings.Insert(ctx, earning)
	if err != nil {
		return err
	}
	if !inserted {
		log.Info("доход по платежу уже записан")
	}

	offer, changed, err := d.confirmOfferStatus(ctx, offer, e.PaymentRef, at)
	if err != nil {
		return err
	}

	appt, apptChanged, err := d.confirmAppointment(ctx, offer, e.PaymentRef, log)
	if err != nil {
		return err
	}

	// сообщения публикуются до перевода заявки: при повторе события
	// состояние уже не меняется и публикации не будет
	if changed || inserted || apptChanged {
		d.publishConfirmed(ctx, e, offer, appt, breakdown)
	}

	if offer.TicketID != nil && d.deps.Advancer != nil {
		hold := entity.EscrowHold{PaymentRef: e.PaymentRef, Amount: offer.Amount, Currency: offer.Currency, State: entity.HoldStateCaptured}
		if err := d.deps.Advancer.AdvanceOnPayment(ctx, *offer.TicketID, hold, e.EventID); err != nil {
			if apperror.IsRetryable(err) && !apperror.IsNotFound(err) {
				return err
			}
			log.WithError(err).WithField("ticket_id", *offer.TicketID).Warn("заявка не переведена в ESCROW")
		}
	}
	return nil
}

func (d *Dispatcher) publishConfirmed(ctx context.Context, e payment.Succeeded, offer *entity.ServiceOffer, appt *entity.Appointment, breakdown fee.Breakdown) {
	payload := map[string]any{
		"offer_id":    offer.ID,
		"payment_ref": e.PaymentRef,
		"gross":       breakdown.Gross,
		"fee":         breakdown.Fee,
		"net_to_pro":  breakdown.NetToPro,
		"currency":    offer.Currency,
	}
	for _, convID := range offer.Conversations() {
		d.deps.Notifier.Notify(ctx, convID, entity.EventPaymentSucceeded, payload, e.EventID)
	}
	if appt != nil && appt.ConversationID != nil {
		d.deps.Notifier.Notify(ctx, *appt.ConversationID, entity.EventAppointmentConfirmed, map[string]any{
			"appointment_id": appt.ID,
			"offer_id":       offer.ID,
			"starts_at":      appt.StartsAt,
			"ends_at":        appt.EndsAt,
		}, e.EventID)
	}
}

// confirmOfferStatus условно переводит предложение в confirmed. Если запись
// изменили параллельно, перечитывает её: подтверждённое кем-то другим
// предложение считается успехом.
func (d *Dispatcher) confirmOfferStatus(ctx context.Context, offer *entity.ServiceOffer, ref string, at time.Time) (*entity.ServiceOffer, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		prev := offer.Status
		changed, err := offer.ConfirmByPayment(ref, at)
		if err != nil || !changed {
			return offer, false, err
		}
		err = d.deps.Offers.Update(ctx, offer, prev)
		if err == nil {
			return offer, true, nil
		}
		if !errors.Is(err, apperror.ErrConcurrentUpdate) {
			return nil, false, err
		}
		if offer, err = d.deps.Offers.FindByID(ctx, offer.ID); err != nil {
			return nil, false, err
		}
	}
	return nil, false, apperror.ErrConcurrentUpdate
}

func (d *Dispatcher) confirmAppointment(ctx context.Context, offer *entity.ServiceOffer, ref string, log *logrus.Entry) (*entity.Appointment, bool, error) {
	if offer.AppointmentID == nil {
		return nil, false, nil
	}
	appt, err := d.deps.Appointments.FindByID(ctx, *offer.AppointmentID)
	if err != nil {
		if apperror.IsNotFound(err) {
			log.WithField("appointment_id", *offer.AppointmentID).Warn("встреча предложения не найдена")
			return nil, false, nil
		}
		return nil, false, err
	}

	prev := appt.Status
	changed, err := appt.ConfirmByPayment(ref)
	if err != nil {
		// деньги уже получены, отменённая встреча не должна блокировать учёт
		log.WithError(err).WithField("appointment_id", appt.ID).Warn("встреча не может быть подтверждена")
		return appt, false, nil
	}
	if !changed {
		return appt, false, nil
	}
	if err := d.deps.Appointments.Update(ctx, appt, prev); err != nil {
		if errors.Is(err, apperror.ErrConcurrentUpdate) {
			return appt, false, nil
		}
		return nil, false, err
	}
	return appt, true, nil
}

// onOfferNotice публикует уведомление о неуспешном или незавершённом платеже.
// Статус предложения не меняется, плательщик может повторить оплату.
func (d *Dispatcher) onOfferNotice(ctx context.Context, target payment.Target, eventID, code string, payload map[string]any, log *logrus.Entry) error {
	if target.Kind != payment.TargetOffer {
		log.WithField("target", target.Kind).Info("уведомление о платеже без предложения, пропускаем")
		return nil
	}
	offer, err := d.deps.Offers.FindByID(ctx, target.ID)
	if err != nil {
		return d.ignoreMissing(err, log)
	}
	payload["offer_id"] = offer.ID
	payload["status"] = offer.Status
	d.deps.Notifier.Notify(ctx, offer.ConversationID, code, payload, eventID)
	return nil
}

// ignoreMissing превращает «объект не найден» в успех с предупреждением,
// чтобы событие на удалённый объект не зацикливало повторные доставки.
func (d *Dispatcher) ignoreMissing(err error, log *logrus.Entry) error {
	if err == nil {
		return nil
	}
	if apperror.IsNotFound(err) {
		log.WithError(err).Warn("объект события не найден, событие пропущено")
		return nil
	}
	return err
}
