package valueobject

import "github.com/ignatzorin/rental-escrow/internal/pkg/apperror"

type TicketStatus string

const (
	TicketStatusOpen           TicketStatus = "OPEN"
	TicketStatusQuote          TicketStatus = "QUOTE"
	TicketStatusEscrow         TicketStatus = "ESCROW"
	TicketStatusInProgress     TicketStatus = "IN_PROGRESS"
	TicketStatusExtraRequested TicketStatus = "EXTRA_REQUESTED"
	TicketStatusDone           TicketStatus = "DONE"
	TicketStatusDispute        TicketStatus = "DISPUTE"
	TicketStatusClosed         TicketStatus = "CLOSED"
)

func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusQuote, TicketStatusEscrow, TicketStatusInProgress,
		TicketStatusExtraRequested, TicketStatusDone, TicketStatusDispute, TicketStatusClosed:
		return true
	}
	return false
}

func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusDispute || s == TicketStatusClosed
}

func NewTicketStatus(status string) (TicketStatus, error) {
	s := TicketStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус заявки")
	}
	return s, nil
}

type OfferStatus string

const (
	OfferStatusProposed       OfferStatus = "proposed"
	OfferStatusAccepted       OfferStatus = "accepted"
	OfferStatusRejected       OfferStatus = "rejected"
	OfferStatusScheduled      OfferStatus = "scheduled"
	OfferStatusPaymentPending OfferStatus = "payment_pending"
	OfferStatusPaid           OfferStatus = "paid"
	OfferStatusConfirmed      OfferStatus = "confirmed"
	OfferStatusDone           OfferStatus = "done"
	OfferStatusCancelled      OfferStatus = "cancelled"
)

// offerRank задаёт порядок основной ветки; rejected и cancelled вне порядка.
var offerRank = map[OfferStatus]int{
	OfferStatusProposed:       0,
	OfferStatusAccepted:       1,
	OfferStatusScheduled:      2,
	OfferStatusPaymentPending: 3,
	OfferStatusPaid:           4,
	OfferStatusConfirmed:      5,
	OfferStatusDone:           6,
}

func (s OfferStatus) IsValid() bool {
	if _, ok := offerRank[s]; ok {
		return true
	}
	return s == OfferStatusRejected || s == OfferStatusCancelled
}

func (s OfferStatus) IsTerminal() bool {
	return s == OfferStatusRejected || s == OfferStatusCancelled || s == OfferStatusDone
}

// CanTransitionTo запрещает откат статуса назад и выход из терминальных статусов.
func (s OfferStatus) CanTransitionTo(next OfferStatus) bool {
	if s.IsTerminal() || !next.IsValid() || s == next {
		return false
	}
	if next == OfferStatusRejected {
		return s == OfferStatusProposed
	}
	if next == OfferStatusCancelled {
		return offerRank[s] < offerRank[OfferStatusPaid]
	}
	return offerRank[next] > offerRank[s]
}

// IsPaymentBacked сообщает, что статус достижим только после успешного платежа.
func (s OfferStatus) IsPaymentBacked() bool {
	return s == OfferStatusConfirmed || s == OfferStatusDone
}

// StatusesBefore возвращает статусы, из которых допустим переход в next.
// Используется для условных UPDATE ... WHERE status IN (...).
func (s OfferStatus) StatusesBefore() []OfferStatus {
	var out []OfferStatus
	for _, from := range []OfferStatus{
		OfferStatusProposed, OfferStatusAccepted, OfferStatusScheduled,
		OfferStatusPaymentPending, OfferStatusPaid, OfferStatusConfirmed,
	} {
		if from.CanTransitionTo(s) {
			out = append(out, from)
		}
	}
	return out
}

func NewOfferStatus(status string) (OfferStatus, error) {
	s := OfferStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус предложения")
	}
	return s, nil
}

type AppointmentStatus string

const (
	AppointmentStatusProposed    AppointmentStatus = "proposed"
	AppointmentStatusAccepted    AppointmentStatus = "accepted"
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed   AppointmentStatus = "confirmed"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
	AppointmentStatusDone        AppointmentStatus = "done"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case AppointmentStatusProposed, AppointmentStatusAccepted, AppointmentStatusScheduled,
		AppointmentStatusConfirmed, AppointmentStatusRescheduled, AppointmentStatusCancelled,
		AppointmentStatusDone:
		return true
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCancelled || s == AppointmentStatusDone
}

// Confirmable статусы, из которых оплата подтверждает встречу.
func (s AppointmentStatus) Confirmable() bool {
	switch s {
	case AppointmentStatusProposed, AppointmentStatusAccepted, AppointmentStatusScheduled, AppointmentStatusRescheduled:
		return true
	}
	return false
}

type ProcessedEventStatus string

const (
	EventStatusProcessing ProcessedEventStatus = "processing"
	EventStatusCompleted  ProcessedEventStatus = "completed"
	EventStatusFailed     ProcessedEventStatus = "failed"
	EventStatusDead       ProcessedEventStatus = "dead"
)
