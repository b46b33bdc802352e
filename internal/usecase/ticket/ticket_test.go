package ticket_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/rental-escrow/internal/usecase/ticket"
)

type fixture struct {
	tickets  *mockTicketRepository
	history  *mockHistoryRepository
	offers   *mockOfferRepository
	appts    *mockAppointmentRepository
	notifier *recordingNotifier
	uc       *ticket.TransitionTicketUseCase

	requester uuid.UUID
	owner     uuid.UUID
	provider  uuid.UUID
	convID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tickets:   newMockTicketRepository(),
		history:   &mockHistoryRepository{},
		offers:    newMockOfferRepository(),
		appts:     newMockAppointmentRepository(),
		notifier:  &recordingNotifier{},
		requester: uuid.New(),
		owner:     uuid.New(),
		provider:  uuid.New(),
		convID:    uuid.New(),
	}
	f.uc = ticket.NewTransitionTicketUseCase(f.tickets, f.history, f.offers, f.appts, f.notifier, "EUR")
	return f
}

func (f *fixture) open(t *testing.T) *entity.Ticket {
	t.Helper()
	create := ticket.NewCreateTicketUseCase(f.tickets)
	tk, err := create.Execute(context.Background(), ticket.CreateTicketInput{
		RequesterID:    f.requester,
		OwnerID:        f.owner,
		Title:          "Не работает отопление",
		ConversationID: &f.convID,
	})
	require.NoError(t, err)
	return tk
}

func (f *fixture) do(t *testing.T, id, user uuid.UUID, action entity.TicketAction, mod func(*ticket.TransitionInput)) (*entity.Ticket, error) {
	t.Helper()
	in := ticket.TransitionInput{TicketID: id, UserID: user, Action: action}
	if mod != nil {
		mod(&in)
	}
	return f.uc.Execute(context.Background(), in)
}

func hold(ref string, amount int64, state entity.HoldState) func(*ticket.TransitionInput) {
	return func(in *ticket.TransitionInput) {
		in.Hold = &entity.EscrowHold{PaymentRef: ref, Amount: amount, State: state}
	}
}

func amount(v int64) func(*ticket.TransitionInput) {
	return func(in *ticket.TransitionInput) { in.Amount = v }
}

func TestTransition_HappyPath(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)

	_, err := f.do(t, tk.ID, f.provider, entity.TicketActionQuote, amount(20_000))
	require.NoError(t, err)

	got, err := f.do(t, tk.ID, f.owner, entity.TicketActionApprove, hold("pi_hold", 20_000, entity.HoldStateAuthorized))
	require.NoError(t, err)
	assert.Equal(t, valueobject.TicketStatusEscrow, got.Status)
	require.NotNil(t, got.OfferID)

	offer, err := f.offers.FindByID(context.Background(), *got.OfferID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.OfferStatusPaymentPending, offer.Status)
	assert.Equal(t, f.provider, offer.ProviderID)
	assert.Equal(t, int64(20_000), offer.Amount)

	_, err = f.do(t, tk.ID, f.provider, entity.TicketActionStart, nil)
	require.NoError(t, err)
	_, err = f.do(t, tk.ID, f.provider, entity.TicketActionRequestExtra, amount(2_500))
	require.NoError(t, err)
	_, err = f.do(t, tk.ID, f.owner, entity.TicketActionApproveExtra, nil)
	require.NoError(t, err)
	_, err = f.do(t, tk.ID, f.provider, entity.TicketActionComplete, func(in *ticket.TransitionInput) { in.InvoiceRef = "INV-7" })
	require.NoError(t, err)

	// приёмка без подтверждённой оплаты невозможна
	_, err = f.do(t, tk.ID, f.owner, entity.TicketActionValidate, nil)
	var transitionErr *apperror.InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, valueobject.TicketStatusDone, f.tickets.get(tk.ID).Status)

	// платёж подтверждён вебхуком
	stored := f.offers.offers[offer.ID]
	_, err = stored.ConfirmByPayment("pi_hold", time.Now())
	require.NoError(t, err)
	f.offers.offers[offer.ID] = stored

	got, err = f.do(t, tk.ID, f.owner, entity.TicketActionValidate, nil)
	require.NoError(t, err)
	assert.Equal(t, valueobject.TicketStatusClosed, got.Status)
	assert.Equal(t, valueobject.OfferStatusDone, f.offers.offers[offer.ID].Status)

	history, err := ticket.NewGetTicketHistoryUseCase(f.tickets, f.history).Execute(context.Background(), tk.ID, f.requester)
	require.NoError(t, err)
	assert.Len(t, history, 7)
	assert.Equal(t, entity.TicketActionQuote, history[0].Action)
	assert.Equal(t, valueobject.TicketStatusClosed, history[6].ToStatus)

	assert.Equal(t, []string{
		"ticket.quote", "ticket.approve", "ticket.start", "ticket.request_extra",
		"ticket.approve_extra", "ticket.complete", "ticket.validate",
	}, f.notifier.codes())
}

func TestTransition_ValidateCompletesAppointment(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	_, err := f.do(t, tk.ID, f.provider, entity.TicketActionQuote, amount(1000))
	require.NoError(t, err)
	_, err = f.do(t, tk.ID, f.owner, entity.TicketActionApprove, hold("pi_1", 1000, entity.HoldStateAuthorized))
	require.NoError(t, err)

	stored := f.tickets.get(tk.ID)
	offer := f.offers.offers[*stored.OfferID]
	assert.Equal(t, valueobject.OfferStatusPaymentPending, offer.Status)

	appt, err := entity.NewAppointment(&offer, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = appt.ConfirmByPayment("pi_1")
	require.NoError(t, err)
	f.appts.appts[appt.ID] = *appt
	offer.AppointmentID = &appt.ID
	_, err = offer.ConfirmByPayment("pi_1", time.Now())
	require.NoError(t, err)
	f.offers.offers[offer.ID] = offer

	stored.Status = valueobject.TicketStatusDone
	f.tickets.tickets[tk.ID] = stored

	_, err = f.do(t, tk.ID, f.owner, entity.TicketActionValidate, nil)
	require.NoError(t, err)
	assert.Equal(t, valueobject.AppointmentStatusDone, f.appts.appts[appt.ID].Status)
}

func TestTransition_ApproveWithoutHold(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	_, err := f.do(t, tk.ID, f.provider, entity.TicketActionQuote, amount(5000))
	require.NoError(t, err)

	_, err = f.do(t, tk.ID, f.owner, entity.TicketActionApprove, nil)
	assert.True(t, apperror.IsValidation(err))

	_, err = f.do(t, tk.ID, f.owner, entity.TicketActionApprove, hold("pi_1", 4999, entity.HoldStateAuthorized))
	assert.True(t, apperror.IsValidation(err))

	assert.Equal(t, valueobject.TicketStatusQuote, f.tickets.get(tk.ID).Status)
	assert.Equal(t, 0, f.offers.count())
}

func TestTransition_ReusesExistingTicketOffer(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	_, err := f.do(t, tk.ID, f.provider, entity.TicketActionQuote, amount(5000))
	require.NoError(t, err)

	existing, err := entity.NewServiceOffer(f.convID, f.provider, f.requester, f.owner, valueobject.Money{Amount: 5000, Currency: "EUR"})
	require.NoError(t, err)
	existing.TicketID = &tk.ID
	require.NoError(t, f.offers.Create(context.Background(), existing))

	got, err := f.do(t, tk.ID, f.owner, entity.TicketActionApprove, hold("pi_1", 5000, entity.HoldStateAuthorized))
	require.NoError(t, err)
	assert.Equal(t, existing.ID, *got.OfferID)
	assert.Equal(t, 1, f.offers.count())
	assert.Equal(t, valueobject.OfferStatusPaymentPending, f.offers.offers[existing.ID].Status)
}

func TestTransition_ApproveRacingOfferInsertReusesOffer(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	_, err := f.do(t, tk.ID, f.provider, entity.TicketActionQuote, amount(5000))
	require.NoError(t, err)

	// параллельное одобрение успело вставить предложение после нашего поиска
	quoted := f.tickets.get(tk.ID)
	winner, err := entity.NewTicketOffer(&quoted, entity.EscrowHold{PaymentRef: "pi_1", Amount: 5000, State: entity.HoldStateAuthorized}, "EUR")
	require.NoError(t, err)
	require.NoError(t, f.offers.Create(context.Background(), winner))
	f.offers.staleTicketLookups = 1

	got, err := f.do(t, tk.ID, f.owner, entity.TicketActionApprove, hold("pi_1", 5000, entity.HoldStateAuthorized))
	require.NoError(t, err)
	require.NotNil(t, got.OfferID)
	assert.Equal(t, winner.ID, *got.OfferID)
	assert.Equal(t, 1, f.offers.count())
}

func TestTransition_OwnerCannotClaimCapture(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	_, err := f.do(t, tk.ID, f.provider, entity.TicketActionQuote, amount(5000))
	require.NoError(t, err)

	_, err = f.do(t, tk.ID, f.owner, entity.TicketActionApprove, hold("pi_fake", 5000, entity.HoldStateCaptured))
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, valueobject.TicketStatusQuote, f.tickets.get(tk.ID).Status)
	assert.Equal(t, 0, f.offers.count())
}

func TestTransition_DisputeIsTerminal(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	_, err := f.do(t, tk.ID, f.provider, entity.TicketActionQuote, amount(5000))
	require.NoError(t, err)
	_, err = f.do(t, tk.ID, f.requester, entity.TicketActionDispute, func(in *ticket.TransitionInput) { in.Reason = "завышенная цена" })
	require.NoError(t, err)

	attempts := map[entity.TicketAction]uuid.UUID{
		entity.TicketActionApprove:  f.owner,
		entity.TicketActionStart:    f.provider,
		entity.TicketActionComplete: f.provider,
		entity.TicketActionValidate: f.owner,
		entity.TicketActionDispute:  f.requester,
	}
	for action, user := range attempts {
		_, err := f.do(t, tk.ID, user, action, hold("pi", 5000, entity.HoldStateAuthorized))
		var appErr *apperror.AppError
		require.True(t, errors.As(err, &appErr), "action %s", action)
		assert.Equal(t, apperror.ErrCodeInvalidTransition, appErr.Code, "action %s", action)
	}

	// участник с чужой для действия ролью тоже получает InvalidTransition
	wrongRole := []struct {
		action entity.TicketAction
		user   uuid.UUID
	}{
		{entity.TicketActionStart, f.owner},
		{entity.TicketActionApprove, f.provider},
		{entity.TicketActionValidate, f.requester},
		{entity.TicketActionRequestExtra, f.owner},
	}
	for _, tc := range wrongRole {
		_, err := f.do(t, tk.ID, tc.user, tc.action, hold("pi", 5000, entity.HoldStateAuthorized))
		var appErr *apperror.AppError
		require.True(t, errors.As(err, &appErr), "action %s", tc.action)
		assert.Equal(t, apperror.ErrCodeInvalidTransition, appErr.Code, "action %s", tc.action)
	}
	assert.Equal(t, valueobject.TicketStatusDispute, f.tickets.get(tk.ID).Status)
}

func TestTransition_ForbiddenForOutsider(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	_, err := f.do(t, tk.ID, f.provider, entity.TicketActionQuote, amount(5000))
	require.NoError(t, err)

	_, err = f.do(t, tk.ID, uuid.New(), entity.TicketActionDispute, nil)
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.do(t, tk.ID, f.provider, entity.TicketActionApprove, hold("pi", 5000, entity.HoldStateAuthorized))
	assert.True(t, apperror.IsForbidden(err))

	_, err = ticket.NewGetTicketUseCase(f.tickets).Execute(context.Background(), tk.ID, uuid.New())
	assert.True(t, apperror.IsForbidden(err))
}

func TestTransition_ConcurrentUpdateLoses(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)

	stale := *tk
	_, err := f.do(t, tk.ID, f.provider, entity.TicketActionQuote, amount(5000))
	require.NoError(t, err)

	// второй писатель держит устаревшую копию в статусе OPEN
	other := uuid.New()
	require.NoError(t, stale.Quote(entity.Actor{ID: other, Role: valueobject.RoleProvider}, 7000))
	err = f.tickets.Update(context.Background(), &stale, valueobject.TicketStatusOpen)
	assert.ErrorIs(t, err, apperror.ErrConcurrentUpdate)
	assert.Equal(t, f.provider, *f.tickets.get(tk.ID).AssigneeID)
}

func TestAdvanceOnPayment(t *testing.T) {
	f := newFixture(t)
	tk := f.open(t)
	_, err := f.do(t, tk.ID, f.provider, entity.TicketActionQuote, amount(3000))
	require.NoError(t, err)

	h := entity.EscrowHold{PaymentRef: "pi_9", Amount: 3000, State: entity.HoldStateCaptured}
	require.NoError(t, f.uc.AdvanceOnPayment(context.Background(), tk.ID, h, "evt_9"))
	assert.Equal(t, valueobject.TicketStatusEscrow, f.tickets.get(tk.ID).Status)

	// повтор ничего не делает
	require.NoError(t, f.uc.AdvanceOnPayment(context.Background(), tk.ID, h, "evt_9"))

	history, _ := f.history.FindByTicketID(context.Background(), tk.ID)
	require.Len(t, history, 2)
	assert.Nil(t, history[1].ActorID)
	assert.Equal(t, valueobject.RoleSystem, history[1].ActorRole)
	assert.Equal(t, "evt_9", f.notifier.sent[1].eventID)
}
