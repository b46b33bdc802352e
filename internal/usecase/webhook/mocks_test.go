package webhook_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/payment"
	"github.com/ignatzorin/rental-escrow/internal/domain/repository"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

// mockEventRepository воспроизводит семантику INSERT ... ON CONFLICT DO UPDATE WHERE.
type mockEventRepository struct {
	mu     sync.Mutex
	events map[string]*entity.ProcessedEvent
	claims int
}

func newMockEventRepository() *mockEventRepository {
	return &mockEventRepository{events: make(map[string]*entity.ProcessedEvent)}
}

func key(provider, eventID string) string { return provider + "/" + eventID }

func (m *mockEventRepository) Claim(ctx context.Context, provider, eventID, eventType string) (*entity.ProcessedEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(provider, eventID)
	ev, ok := m.events[k]
	if !ok {
		ev = &entity.ProcessedEvent{ID: uuid.New(), Provider: provider, EventID: eventID, EventType: eventType,
			Status: valueobject.EventStatusProcessing, Attempts: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		m.events[k] = ev
		m.claims++
		return ev, true, nil
	}
	if ev.Status != valueobject.EventStatusFailed {
		return nil, false, nil
	}
	ev.Status = valueobject.EventStatusProcessing
	ev.Attempts++
	m.claims++
	return ev, true, nil
}

func (m *mockEventRepository) mark(provider, eventID string, status valueobject.ProcessedEventStatus, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[key(provider, eventID)]
	if !ok {
		return apperror.ErrEventNotFound
	}
	ev.Status = status
	if cause != nil {
		msg := cause.Error()
		ev.Error = &msg
	}
	return nil
}

func (m *mockEventRepository) MarkCompleted(ctx context.Context, provider, eventID string) error {
	return m.mark(provider, eventID, valueobject.EventStatusCompleted, nil)
}

func (m *mockEventRepository) MarkFailed(ctx context.Context, provider, eventID string, cause error) error {
	return m.mark(provider, eventID, valueobject.EventStatusFailed, cause)
}

func (m *mockEventRepository) MarkDead(ctx context.Context, provider, eventID string, cause error) error {
	return m.mark(provider, eventID, valueobject.EventStatusDead, cause)
}

func (m *mockEventRepository) Find(ctx context.Context, provider, eventID string) (*entity.ProcessedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[key(provider, eventID)]
	if !ok {
		return nil, apperror.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

type mockOfferRepository struct {
	mu         sync.Mutex
	offers     map[uuid.UUID]entity.ServiceOffer
	updates    int
	failUpdate error
}

func newMockOfferRepository() *mockOfferRepository {
	return &mockOfferRepository{offers: make(map[uuid.UUID]entity.ServiceOffer)}
}

func (m *mockOfferRepository) Create(ctx context.Context, o *entity.ServiceOffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[o.ID] = *o
	return nil
}

func (m *mockOfferRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ServiceOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, apperror.ErrOfferNotFound
	}
	return &o, nil
}

func (m *mockOfferRepository) FindByTicketID(ctx context.Context, ticketID uuid.UUID) (*entity.ServiceOffer, error) {
	return nil, apperror.ErrOfferNotFound
}

func (m *mockOfferRepository) Update(ctx context.Context, o *entity.ServiceOffer, expected valueobject.OfferStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		err := m.failUpdate
		m.failUpdate = nil
		return err
	}
	if m.offers[o.ID].Status != expected {
		return apperror.ErrConcurrentUpdate
	}
	m.offers[o.ID] = *o
	m.updates++
	return nil
}

func (m *mockOfferRepository) get(id uuid.UUID) entity.ServiceOffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offers[id]
}

type mockAppointmentRepository struct {
	mu    sync.Mutex
	appts map[uuid.UUID]entity.Appointment
}

func newMockAppointmentRepository() *mockAppointmentRepository {
	return &mockAppointmentRepository{appts: make(map[uuid.UUID]entity.Appointment)}
}

func (m *mockAppointmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperror.ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *mockAppointmentRepository) Update(ctx context.Context, a *entity.Appointment, expected valueobject.AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appts[a.ID].Status != expected {
		return apperror.ErrConcurrentUpdate
	}
	m.appts[a.ID] = *a
	return nil
}

type mockEarningRepository struct {
	mu       sync.Mutex
	earnings []*entity.PlatformEarning
	failNext error
}

func (m *mockEarningRepository) Insert(ctx context.Context, e *entity.PlatformEarning) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return false, err
	}
	for _, existing := range m.earnings {
		if existing.OfferID == e.OfferID && existing.PaymentRef == e.PaymentRef {
			return false, nil
		}
	}
	m.earnings = append(m.earnings, e)
	return true, nil
}

func (m *mockEarningRepository) List(ctx context.Context, filter repository.EarningFilter) ([]*entity.PlatformEarning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.PlatformEarning
	for _, e := range m.earnings {
		if filter.OfferID != nil && e.OfferID != *filter.OfferID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockEarningRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.earnings)
}

type stamp struct {
	id  uuid.UUID
	ref string
}

type mockStampRepository struct {
	mu     sync.Mutex
	known  map[uuid.UUID]bool
	stamps []stamp
}

func newMockStampRepository() *mockStampRepository {
	return &mockStampRepository{known: make(map[uuid.UUID]bool)}
}

func (m *mockStampRepository) StampPayment(ctx context.Context, id uuid.UUID, ref string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known[id] {
		return apperror.ErrTicketNotFound
	}
	m.stamps = append(m.stamps, stamp{id: id, ref: ref})
	return nil
}

// ticketStamps адаптирует mockStampRepository к TicketRepository.
type ticketStamps struct {
	*mockStampRepository
}

func (ticketStamps) Create(ctx context.Context, t *entity.Ticket) error { return nil }
func (ticketStamps) FindByID(ctx context.Context, id uuid.UUID) (*entity.Ticket, error) {
	return nil, apperror.ErrTicketNotFound
}
func (ticketStamps) Update(ctx context.Context, t *entity.Ticket, expected valueobject.TicketStatus) error {
	return nil
}

type advanceCall struct {
	ticketID uuid.UUID
	hold     entity.EscrowHold
}

type recordingAdvancer struct {
	mu    sync.Mutex
	calls []advanceCall
	err   error
}

func (a *recordingAdvancer) AdvanceOnPayment(ctx context.Context, ticketID uuid.UUID, hold entity.EscrowHold, eventID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, advanceCall{ticketID: ticketID, hold: hold})
	return a.err
}

type notification struct {
	conversationID uuid.UUID
	code           string
	eventID        string
	payload        any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(ctx context.Context, conversationID uuid.UUID, code string, payload any, eventID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{conversationID: conversationID, code: code, eventID: eventID, payload: payload})
	return true
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

// fakeVerifier принимает подпись "ok" и отдаёт заранее заданное событие.
type fakeVerifier struct {
	events map[string]payment.Event
}

func (v *fakeVerifier) Verify(payload []byte, signature string) (payment.Event, error) {
	if signature != "ok" {
		return nil, apperror.ErrInvalidSignature
	}
	ev, ok := v.events[string(payload)]
	if !ok {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "unknown payload")
	}
	return ev, nil
}
