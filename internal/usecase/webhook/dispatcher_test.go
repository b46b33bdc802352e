package webhook_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/fee"
	"github.com/ignatzorin/rental-escrow/internal/domain/payment"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/rental-escrow/internal/usecase/webhook"
)

type harness struct {
	events    *mockEventRepository
	offers    *mockOfferRepository
	appts     *mockAppointmentRepository
	earnings  *mockEarningRepository
	tickets   *mockStampRepository
	contracts *mockStampRepository
	advancer  *recordingAdvancer
	notifier  *recordingNotifier
	verifier  *fakeVerifier
	d         *webhook.Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	calc, err := fee.NewCalculator(fee.Policy{PctBasisPoints: 1000, Floor: 199}, 700)
	require.NoError(t, err)

	h := &harness{
		events:    newMockEventRepository(),
		offers:    newMockOfferRepository(),
		appts:     newMockAppointmentRepository(),
		earnings:  &mockEarningRepository{},
		tickets:   newMockStampRepository(),
		contracts: newMockStampRepository(),
		advancer:  &recordingAdvancer{},
		notifier:  &recordingNotifier{},
		verifier:  &fakeVerifier{events: map[string]payment.Event{}},
	}
	h.d = webhook.NewDispatcher(webhook.Deps{
		Verifier:     h.verifier,
		Events:       h.events,
		Offers:       h.offers,
		Appointments: h.appts,
		Earnings:     h.earnings,
		Tickets:      ticketStamps{h.tickets},
		Contracts:    h.contracts,
		Advancer:     h.advancer,
		Notifier:     h.notifier,
		Fees:         calc,
	})
	return h
}

func (h *harness) pendingOffer(t *testing.T, amount int64) *entity.ServiceOffer {
	t.Helper()
	offer, err := entity.NewServiceOffer(uuid.New(), uuid.New(), uuid.New(), uuid.New(), valueobject.Money{Amount: amount, Currency: "EUR"})
	require.NoError(t, err)
	require.NoError(t, offer.RequestPayment())
	require.NoError(t, h.offers.Create(context.Background(), offer))
	return offer
}

func succeeded(eventID string, offerID uuid.UUID, amount int64) payment.Succeeded {
	return payment.Succeeded{
		Envelope:   payment.Envelope{Provider: "stripe", EventID: eventID, Type: "payment_intent.succeeded", CreatedAt: time.Now()},
		PaymentRef: "pi_" + eventID,
		Amount:     amount,
		Currency:   "EUR",
		Target:     payment.Target{Kind: payment.TargetOffer, ID: offerID},
	}
}

func TestDispatcher_SucceededTwice_OneEarning(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 500)
	ev := succeeded("evt_1", offer.ID, 500)

	res, err := h.d.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	stored := h.offers.get(offer.ID)
	assert.Equal(t, valueobject.OfferStatusConfirmed, stored.Status)
	require.NotNil(t, stored.PaymentRef)
	assert.Equal(t, "pi_evt_1", *stored.PaymentRef)

	res, err = h.d.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	require.Equal(t, 1, h.earnings.count())
	e := h.earnings.earnings[0]
	assert.Equal(t, offer.ID, e.OfferID)
	assert.Equal(t, int64(500), e.Gross)
	assert.Equal(t, int64(35), e.Fee)
	assert.Equal(t, int64(465), e.NetToPro)
	assert.Equal(t, "evt_1", e.EventID)

	assert.Equal(t, valueobject.OfferStatusConfirmed, h.offers.get(offer.ID).Status)
	assert.Equal(t, 1, h.offers.updates)

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, offer.ConversationID, sent[0].conversationID)
	assert.Equal(t, entity.EventPaymentSucceeded, sent[0].code)

	row, err := h.events.Find(context.Background(), "stripe", "evt_1")
	require.NoError(t, err)
	assert.Equal(t, valueobject.EventStatusCompleted, row.Status)
}

func TestDispatcher_ConcurrentDeliveries(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 12_345)
	ev := succeeded("evt_race", offer.ID, 12_345)

	const deliveries = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		duplicates int
		start      = make(chan struct{})
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := h.d.Apply(context.Background(), ev)
			assert.NoError(t, err)
			if res.Duplicate {
				mu.Lock()
				duplicates++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, deliveries-1, duplicates)
	assert.Equal(t, 1, h.events.claims)
	assert.Equal(t, 1, h.earnings.count())
	assert.Equal(t, 1, h.offers.updates)
}

func TestDispatcher_PaymentFailed_OfferUnchanged(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 700)

	ev := payment.Failed{
		Envelope:   payment.Envelope{Provider: "stripe", EventID: "evt_f", Type: "payment_intent.payment_failed"},
		PaymentRef: "pi_f",
		Amount:     700,
		Reason:     "card_declined",
		Target:     payment.Target{Kind: payment.TargetOffer, ID: offer.ID},
	}
	res, err := h.d.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, payment.KindFailed, res.Kind)

	assert.Equal(t, valueobject.OfferStatusPaymentPending, h.offers.get(offer.ID).Status)
	assert.Equal(t, 0, h.earnings.count())

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, entity.EventPaymentFailed, sent[0].code)
	assert.Equal(t, offer.ConversationID, sent[0].conversationID)
	assert.Equal(t, "evt_f", sent[0].eventID)
}

func TestDispatcher_PaymentProcessingNotice(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 700)

	ev := payment.Processing{
		Envelope: payment.Envelope{Provider: "stripe", EventID: "evt_p"},
		Target:   payment.Target{Kind: payment.TargetOffer, ID: offer.ID},
	}
	_, err := h.d.Apply(context.Background(), ev)
	require.NoError(t, err)

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, entity.EventPaymentProcessing, sent[0].code)
	assert.Equal(t, valueobject.OfferStatusPaymentPending, h.offers.get(offer.ID).Status)
}

func TestDispatcher_MissingOfferIsNoop(t *testing.T) {
	h := newHarness(t)

	res, err := h.d.Apply(context.Background(), succeeded("evt_missing", uuid.New(), 500))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 0, h.earnings.count())

	ev, err := h.events.Find(context.Background(), "stripe", "evt_missing")
	require.NoError(t, err)
	assert.Equal(t, valueobject.EventStatusCompleted, ev.Status)
}

func TestDispatcher_FansOutToLinkedAndAppointmentConversations(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 1000)

	linked := uuid.New()
	apptConv := uuid.New()
	ticketID := uuid.New()
	appt, err := entity.NewAppointment(offer, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	appt.ConversationID = &apptConv
	h.appts.appts[appt.ID] = *appt

	stored := h.offers.get(offer.ID)
	stored.LinkedConversationID = &linked
	stored.AppointmentID = &appt.ID
	stored.TicketID = &ticketID
	h.offers.offers[offer.ID] = stored

	_, err = h.d.Apply(context.Background(), succeeded("evt_fan", offer.ID, 1000))
	require.NoError(t, err)

	assert.Equal(t, valueobject.AppointmentStatusConfirmed, h.appts.appts[appt.ID].Status)

	var targets []uuid.UUID
	var codes []string
	for _, n := range h.notifier.all() {
		targets = append(targets, n.conversationID)
		codes = append(codes, n.code)
	}
	assert.Equal(t, []uuid.UUID{offer.ConversationID, linked, apptConv}, targets)
	assert.Equal(t, []string{entity.EventPaymentSucceeded, entity.EventPaymentSucceeded, entity.EventAppointmentConfirmed}, codes)

	require.Len(t, h.advancer.calls, 1)
	assert.Equal(t, ticketID, h.advancer.calls[0].ticketID)
	assert.Equal(t, int64(1000), h.advancer.calls[0].hold.Amount)
	assert.Equal(t, entity.HoldStateCaptured, h.advancer.calls[0].hold.State)
}

func TestDispatcher_RetryableFailureThenRedelivery(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 500)
	ev := succeeded("evt_retry", offer.ID, 500)

	h.earnings.failNext = apperror.Wrap(errors.New("connection reset"), apperror.ErrCodeDatabaseError, "db")
	_, err := h.d.Apply(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, apperror.IsRetryable(err))

	stored, _ := h.events.Find(context.Background(), "stripe", "evt_retry")
	assert.Equal(t, valueobject.EventStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	// доход пишется первым, поэтому предложение ещё ждёт оплаты
	assert.Equal(t, valueobject.OfferStatusPaymentPending, h.offers.get(offer.ID).Status)
	assert.Equal(t, 0, h.earnings.count())

	res, err := h.d.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 1, h.earnings.count())
	assert.Equal(t, 1, h.offers.updates)

	stored, _ = h.events.Find(context.Background(), "stripe", "evt_retry")
	assert.Equal(t, valueobject.EventStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.Attempts)

	res, err = h.d.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestDispatcher_EarningRecordedBeforeOfferConfirmed(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 500)
	ev := succeeded("evt_order", offer.ID, 500)

	h.offers.failUpdate = apperror.Wrap(errors.New("connection reset"), apperror.ErrCodeDatabaseError, "db")
	_, err := h.d.Apply(context.Background(), ev)
	require.Error(t, err)
	assert.Equal(t, 1, h.earnings.count())
	assert.Equal(t, valueobject.OfferStatusPaymentPending, h.offers.get(offer.ID).Status)

	_, err = h.d.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 1, h.earnings.count())
	assert.Equal(t, valueobject.OfferStatusConfirmed, h.offers.get(offer.ID).Status)

	// запись дохода уже была, но статус сменился только сейчас: сообщение публикуется
	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, entity.EventPaymentSucceeded, sent[0].code)
}

func TestDispatcher_MessagesSurviveRetryableTicketAdvance(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 500)
	ticketID := uuid.New()
	stored := h.offers.get(offer.ID)
	stored.TicketID = &ticketID
	h.offers.offers[offer.ID] = stored

	h.advancer.err = errors.New("db down")
	_, err := h.d.Apply(context.Background(), succeeded("evt_msg", offer.ID, 500))
	require.Error(t, err)

	h.advancer.err = nil
	res, err := h.d.Apply(context.Background(), succeeded("evt_msg", offer.ID, 500))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Len(t, h.advancer.calls, 2)
	assert.Equal(t, 1, h.earnings.count())

	var codes []string
	for _, n := range h.notifier.all() {
		codes = append(codes, n.code)
	}
	assert.Equal(t, []string{entity.EventPaymentSucceeded}, codes)
}

func TestDispatcher_NonRetryableErrorMarksDead(t *testing.T) {
	h := newHarness(t)
	offer, err := entity.NewServiceOffer(uuid.New(), uuid.New(), uuid.New(), uuid.New(), valueobject.Money{Amount: 500, Currency: "EUR"})
	require.NoError(t, err)
	require.NoError(t, offer.Cancel())
	require.NoError(t, h.offers.Create(context.Background(), offer))

	res, err := h.d.Apply(context.Background(), succeeded("evt_dead", offer.ID, 500))
	require.NoError(t, err)
	assert.True(t, res.Dead)

	stored, _ := h.events.Find(context.Background(), "stripe", "evt_dead")
	assert.Equal(t, valueobject.EventStatusDead, stored.Status)
	assert.Equal(t, 0, h.earnings.count())

	res, err = h.d.Apply(context.Background(), succeeded("evt_dead", offer.ID, 500))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestDispatcher_TicketAndContractStamp(t *testing.T) {
	h := newHarness(t)
	ticketID := uuid.New()
	contractID := uuid.New()
	h.tickets.known[ticketID] = true
	h.contracts.known[contractID] = true

	ev := succeeded("evt_t", ticketID, 90_000)
	ev.Target = payment.Target{Kind: payment.TargetTicket, ID: ticketID}
	_, err := h.d.Apply(context.Background(), ev)
	require.NoError(t, err)

	ev = succeeded("evt_c", contractID, 90_000)
	ev.Target = payment.Target{Kind: payment.TargetContract, ID: contractID}
	_, err = h.d.Apply(context.Background(), ev)
	require.NoError(t, err)

	require.Len(t, h.tickets.stamps, 1)
	assert.Equal(t, "pi_evt_t", h.tickets.stamps[0].ref)
	require.Len(t, h.contracts.stamps, 1)
	assert.Equal(t, contractID, h.contracts.stamps[0].id)
	assert.Equal(t, 0, h.earnings.count())

	// неизвестная заявка: успешный no-op
	ev = succeeded("evt_t2", uuid.New(), 100)
	ev.Target = payment.Target{Kind: payment.TargetTicket, ID: ev.Target.ID}
	_, err = h.d.Apply(context.Background(), ev)
	require.NoError(t, err)
}

func TestDispatcher_RefundAndIgnoredAreNoops(t *testing.T) {
	h := newHarness(t)

	for _, ev := range []payment.Event{
		payment.Refunded{Envelope: payment.Envelope{Provider: "stripe", EventID: "evt_r"}, PaymentRef: "pi_1", Amount: 500},
		payment.Ignored{Envelope: payment.Envelope{Provider: "stripe", EventID: "evt_i", Type: "customer.created"}},
	} {
		res, err := h.d.Apply(context.Background(), ev)
		require.NoError(t, err)
		assert.False(t, res.Duplicate)

		stored, err := h.events.Find(context.Background(), "stripe", ev.Meta().EventID)
		require.NoError(t, err)
		assert.Equal(t, valueobject.EventStatusCompleted, stored.Status)
	}
	assert.Empty(t, h.notifier.all())
}

func TestDispatcher_InvalidSignatureTouchesNothing(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 500)
	h.verifier.events["payload"] = succeeded("evt_sig", offer.ID, 500)

	_, err := h.d.Handle(context.Background(), []byte("payload"), "forged")
	assert.ErrorIs(t, err, apperror.ErrInvalidSignature)
	assert.Empty(t, h.events.events)
	assert.Equal(t, valueobject.OfferStatusPaymentPending, h.offers.get(offer.ID).Status)

	res, err := h.d.Handle(context.Background(), []byte("payload"), "ok")
	require.NoError(t, err)
	assert.Equal(t, "evt_sig", res.EventID)
	assert.Equal(t, 1, h.earnings.count())
}

func TestDispatcher_CurrencyMismatchIsDead(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 500)
	ev := succeeded("evt_usd", offer.ID, 500)
	ev.Currency = "USD"

	res, err := h.d.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, res.Dead)
	assert.Equal(t, valueobject.OfferStatusPaymentPending, h.offers.get(offer.ID).Status)
}

func TestDispatcher_AdvancerRetryableErrorPropagates(t *testing.T) {
	h := newHarness(t)
	offer := h.pendingOffer(t, 500)
	ticketID := uuid.New()
	stored := h.offers.get(offer.ID)
	stored.TicketID = &ticketID
	h.offers.offers[offer.ID] = stored

	h.advancer.err = apperror.New(apperror.ErrCodeDatabaseError, "db down")
	_, err := h.d.Apply(context.Background(), succeeded("evt_adv", offer.ID, 500))
	require.Error(t, err)

	h.advancer.err = apperror.NewInvalidTransition("ticket", "DISPUTE", "ESCROW")
	_, err = h.d.Apply(context.Background(), succeeded("evt_adv", offer.ID, 500))
	require.NoError(t, err)
	assert.Equal(t, 1, h.earnings.count())
}
