// Package stripe проверяет подпись вебхуков Stripe и приводит события
// к закрытому набору payment.Event.
package stripe

import (
	"encoding/json"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/payment"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

const (
	ProviderName    = "stripe"
	SignatureHeader = "Stripe-Signature"

	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventPaymentProcessing = "payment_intent.processing"
	EventChargeRefunded    = "charge.refunded"
)

// Ключи metadata платежа, которыми платформа привязывает его к своим объектам.
const (
	MetadataOfferID    = "offerId"
	MetadataTicketID   = "ticketId"
	MetadataContractID = "contractId"
)

type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify проверяет подпись и разбирает событие. Ошибка подписи даёт
// ErrCodeInvalidSignature, никакое состояние при этом не трогается.
func (v *Verifier) Verify(payload []byte, signature string) (payment.Event, error) {
	if v.secret == "" {
		return nil, apperror.New(apperror.ErrCodeInternal, "секрет вебхука не настроен")
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, signature, v.secret, v.tolerance); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInvalidSignature, apperror.ErrInvalidSignature.Message)
	}

	var ev stripego.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeBadRequest, "некорректное тело события")
	}
	if ev.ID == "" {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "у события нет идентификатора")
	}

	env := payment.Envelope{
		Provider:  ProviderName,
		EventID:   ev.ID,
		Type:      string(ev.Type),
		CreatedAt: time.Unix(ev.Created, 0).UTC(),
	}

	switch string(ev.Type) {
	case EventPaymentSucceeded, EventPaymentFailed, EventPaymentProcessing:
		pi, err := paymentIntent(ev)
		if err != nil {
			return nil, err
		}
		return fromPaymentIntent(env, pi), nil
	case EventChargeRefunded:
		var ch stripego.Charge
		if err := unmarshalObject(ev, &ch); err != nil {
			return nil, err
		}
		ref := ch.ID
		if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
			ref = ch.PaymentIntent.ID
		}
		return payment.Refunded{Envelope: env, PaymentRef: ref, Amount: ch.AmountRefunded}, nil
	}
	return payment.Ignored{Envelope: env}, nil
}

func paymentIntent(ev stripego.Event) (*stripego.PaymentIntent, error) {
	var pi stripego.PaymentIntent
	if err := unmarshalObject(ev, &pi); err != nil {
		return nil, err
	}
	if pi.ID == "" {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "в событии нет платежа")
	}
	return &pi, nil
}

func unmarshalObject(ev stripego.Event, dst any) error {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return apperror.New(apperror.ErrCodeBadRequest, "в событии нет объекта")
	}
	if err := json.Unmarshal(ev.Data.Raw, dst); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeBadRequest, "некорректный объект события")
	}
	return nil
}

func fromPaymentIntent(env payment.Envelope, pi *stripego.PaymentIntent) payment.Event {
	target := targetFrom(pi.Metadata)
	currency := strings.ToUpper(string(pi.Currency))

	switch env.Type {
	case EventPaymentSucceeded:
		return payment.Succeeded{Envelope: env, PaymentRef: pi.ID, Amount: pi.Amount, Currency: currency, Target: target}
	case EventPaymentFailed:
		reason := ""
		if pi.LastPaymentError != nil {
			reason = pi.LastPaymentError.Msg
			if reason == "" {
				reason = string(pi.LastPaymentError.Code)
			}
		}
		return payment.Failed{Envelope: env, PaymentRef: pi.ID, Amount: pi.Amount, Currency: currency, Reason: reason, Target: target}
	default:
		return payment.Processing{Envelope: env, PaymentRef: pi.ID, Amount: pi.Amount, Currency: currency, Target: target}
	}
}

// targetFrom выбирает объект по metadata: предложение важнее заявки, заявка важнее договора.
func targetFrom(metadata map[string]string) payment.Target {
	for _, c := range []struct {
		key  string
		kind payment.TargetKind
	}{
		{MetadataOfferID, payment.TargetOffer},
		{MetadataTicketID, payment.TargetTicket},
		{MetadataContractID, payment.TargetContract},
	} {
		raw, ok := metadata[c.key]
		if !ok {
			continue
		}
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		return payment.Target{Kind: c.kind, ID: id}
	}
	return payment.Target{}
}
