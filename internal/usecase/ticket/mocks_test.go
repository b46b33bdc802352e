package ticket_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

type mockTicketRepository struct {
	mu      sync.Mutex
	tickets map[uuid.UUID]entity.Ticket
}

func newMockTicketRepository() *mockTicketRepository {
	return &mockTicketRepository{tickets: make(map[uuid.UUID]entity.Ticket)}
}

func (m *mockTicketRepository) Create(ctx context.Context, t *entity.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = *t
	return nil
}

func (m *mockTicketRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, apperror.ErrTicketNotFound
	}
	return &t, nil
}

func (m *mockTicketRepository) Update(ctx context.Context, t *entity.Ticket, expected valueobject.TicketStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.tickets[t.ID]
	if !ok {
		return apperror.ErrTicketNotFound
	}
	if current.Status != expected {
		return apperror.ErrConcurrentUpdate
	}
	m.tickets[t.ID] = *t
	return nil
}

func (m *mockTicketRepository) StampPayment(ctx context.Context, id uuid.UUID, ref string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return apperror.ErrTicketNotFound
	}
	t.StampPayment(ref, at)
	m.tickets[id] = t
	return nil
}

func (m *mockTicketRepository) get(id uuid.UUID) entity.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickets[id]
}

type mockHistoryRepository struct {
	mu      sync.Mutex
	history []*entity.TicketHistory
}

func (m *mockHistoryRepository) Create(ctx context.Context, h *entity.TicketHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, h)
	return nil
}

func (m *mockHistoryRepository) FindByTicketID(ctx context.Context, ticketID uuid.UUID) ([]*entity.TicketHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TicketHistory
	for _, h := range m.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockOfferRepository struct {
	mu     sync.Mutex
	offers map[uuid.UUID]entity.ServiceOffer
	// staleTicketLookups первых поисков по заявке не видят записей,
	// как параллельный запрос, прочитавший до чужой вставки
	staleTicketLookups int
}

func newMockOfferRepository() *mockOfferRepository {
	return &mockOfferRepository{offers: make(map[uuid.UUID]entity.ServiceOffer)}
}

func (m *mockOfferRepository) Create(ctx context.Context, o *entity.ServiceOffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.TicketID != nil {
		if _, ok := m.activeForTicket(*o.TicketID); ok {
			return apperror.ErrTicketOfferExists
		}
	}
	m.offers[o.ID] = *o
	return nil
}

func (m *mockOfferRepository) activeForTicket(ticketID uuid.UUID) (entity.ServiceOffer, bool) {
	for _, o := range m.offers {
		if o.TicketID != nil && *o.TicketID == ticketID &&
			o.Status != valueobject.OfferStatusCancelled && o.Status != valueobject.OfferStatusRejected {
			return o, true
		}
	}
	return entity.ServiceOffer{}, false
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
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleTicketLookups > 0 {
		m.staleTicketLookups--
		return nil, apperror.ErrOfferNotFound
	}
	if o, ok := m.activeForTicket(ticketID); ok {
		return &o, nil
	}
	return nil, apperror.ErrOfferNotFound
}

func (m *mockOfferRepository) Update(ctx context.Context, o *entity.ServiceOffer, expected valueobject.OfferStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offers[o.ID].Status != expected {
		return apperror.ErrConcurrentUpdate
	}
	m.offers[o.ID] = *o
	return nil
}

func (m *mockOfferRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.offers)
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

type notification struct {
	conversationID uuid.UUID
	code           string
	eventID        string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(ctx context.Context, conversationID uuid.UUID, code string, payload any, eventID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{conversationID: conversationID, code: code, eventID: eventID})
	return true
}

func (n *recordingNotifier) codes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.code)
	}
	return out
}
