package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

type TicketAction string

const (
	TicketActionQuote        TicketAction = "quote"
	TicketActionApprove      TicketAction = "approve"
	TicketActionStart        TicketAction = "start"
	TicketActionRequestExtra TicketAction = "request_extra"
	TicketActionApproveExtra TicketAction = "approve_extra"
	TicketActionAbandonExtra TicketAction = "abandon_extra"
	TicketActionComplete     TicketAction = "complete"
	TicketActionValidate     TicketAction = "validate"
	TicketActionDispute      TicketAction = "dispute"
)

type ticketEdge struct {
	from  []valueobject.TicketStatus
	to    valueobject.TicketStatus
	roles []valueobject.ActorRole
}

var ticketEdges = map[TicketAction]ticketEdge{
	TicketActionQuote: {
		from:  []valueobject.TicketStatus{valueobject.TicketStatusOpen},
		to:    valueobject.TicketStatusQuote,
		roles: []valueobject.ActorRole{valueobject.RoleProvider},
	},
	TicketActionApprove: {
		from:  []valueobject.TicketStatus{valueobject.TicketStatusQuote},
		to:    valueobject.TicketStatusEscrow,
		roles: []valueobject.ActorRole{valueobject.RoleOwner, valueobject.RoleSystem},
	},
	TicketActionStart: {
		from:  []valueobject.TicketStatus{valueobject.TicketStatusEscrow},
		to:    valueobject.TicketStatusInProgress,
		roles: []valueobject.ActorRole{valueobject.RoleProvider},
	},
	TicketActionRequestExtra: {
		from:  []valueobject.TicketStatus{valueobject.TicketStatusInProgress},
		to:    valueobject.TicketStatusExtraRequested,
		roles: []valueobject.ActorRole{valueobject.RoleProvider},
	},
	TicketActionApproveExtra: {
		from:  []valueobject.TicketStatus{valueobject.TicketStatusExtraRequested},
		to:    valueobject.TicketStatusInProgress,
		roles: []valueobject.ActorRole{valueobject.RoleOwner},
	},
	TicketActionAbandonExtra: {
		from:  []valueobject.TicketStatus{valueobject.TicketStatusExtraRequested},
		to:    valueobject.TicketStatusInProgress,
		roles: []valueobject.ActorRole{valueobject.RoleProvider},
	},
	TicketActionComplete: {
		from:  []valueobject.TicketStatus{valueobject.TicketStatusInProgress},
		to:    valueobject.TicketStatusDone,
		roles: []valueobject.ActorRole{valueobject.RoleProvider},
	},
	TicketActionValidate: {
		from:  []valueobject.TicketStatus{valueobject.TicketStatusDone},
		to:    valueobject.TicketStatusClosed,
		roles: []valueobject.ActorRole{valueobject.RoleOwner},
	},
	TicketActionDispute: {
		from: []valueobject.TicketStatus{
			valueobject.TicketStatusQuote,
			valueobject.TicketStatusEscrow,
			valueobject.TicketStatusInProgress,
			valueobject.TicketStatusExtraRequested,
			valueobject.TicketStatusDone,
		},
		to:    valueobject.TicketStatusDispute,
		roles: []valueobject.ActorRole{valueobject.RoleRequester, valueobject.RoleOwner, valueobject.RoleProvider},
	},
}

func (a TicketAction) IsValid() bool {
	_, ok := ticketEdges[a]
	return ok
}

// Target возвращает статус, в который ведёт действие.
func (a TicketAction) Target() valueobject.TicketStatus {
	return ticketEdges[a].to
}

// Allows сообщает, разрешено ли действие роли.
func (a TicketAction) Allows(role valueobject.ActorRole) bool {
	for _, r := range ticketEdges[a].roles {
		if r == role {
			return true
		}
	}
	return false
}

// Actor тот, кто инициирует переход.
type Actor struct {
	ID   uuid.UUID
	Role valueobject.ActorRole
}

// SystemActor используется для переходов, вызванных платёжными событиями.
var SystemActor = Actor{Role: valueobject.RoleSystem}

type HoldState string

const (
	HoldStateAuthorized HoldState = "authorized"
	HoldStateCaptured   HoldState = "captured"
)

// EscrowHold подтверждение блокировки средств у внешнего платёжного провайдера.
type EscrowHold struct {
	PaymentRef string
	Amount     int64
	Currency   string
	State      HoldState
}

func (h EscrowHold) validate(expected int64) error {
	if strings.TrimSpace(h.PaymentRef) == "" {
		return apperror.New(apperror.ErrCodeValidation, "не указана ссылка на платёж")
	}
	if h.State != HoldStateAuthorized && h.State != HoldStateCaptured {
		return apperror.New(apperror.ErrCodeValidation, "блокировка средств не подтверждена")
	}
	if h.Amount != expected {
		return apperror.New(apperror.ErrCodeValidation, "сумма блокировки не совпадает с суммой сметы")
	}
	return nil
}

type Ticket struct {
	ID             uuid.UUID
	RequesterID    uuid.UUID
	AssigneeID     *uuid.UUID
	OwnerID        uuid.UUID
	ConversationID *uuid.UUID
	Title          string
	Status         valueobject.TicketStatus
	QuoteAmount    int64
	ExtraAmount    *int64
	OfferID        *uuid.UUID
	InvoiceRef     *string
	DisputeReason  *string
	LastPaidAt     *time.Time
	LastPaymentRef *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewTicket(requesterID, ownerID uuid.UUID, title string, conversationID *uuid.UUID) (*Ticket, error) {
	if requesterID == uuid.Nil || ownerID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "заявитель и владелец обязательны")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "название заявки обязательно")
	}
	now := time.Now()
	return &Ticket{
		ID:             uuid.New(),
		RequesterID:    requesterID,
		OwnerID:        ownerID,
		ConversationID: conversationID,
		Title:          title,
		Status:         valueobject.TicketStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// RolesOf возвращает роли пользователя в заявке. Один человек может быть
// одновременно заявителем и владельцем.
func (t *Ticket) RolesOf(userID uuid.UUID) []valueobject.ActorRole {
	var roles []valueobject.ActorRole
	if t.OwnerID == userID {
		roles = append(roles, valueobject.RoleOwner)
	}
	if t.RequesterID == userID {
		roles = append(roles, valueobject.RoleRequester)
	}
	if t.AssigneeID != nil && *t.AssigneeID == userID {
		roles = append(roles, valueobject.RoleProvider)
	}
	return roles
}

// ActorFor выбирает роль пользователя, которой разрешено действие.
// Пока исполнитель не назначен, смету может прислать любой посторонний пользователь.
// Участнику заявки недопустимое из текущего статуса действие отклоняется
// как InvalidTransition раньше проверки роли.
func (t *Ticket) ActorFor(userID uuid.UUID, action TicketAction) (Actor, error) {
	if !action.IsValid() {
		return Actor{}, apperror.New(apperror.ErrCodeValidation, "неизвестное действие")
	}
	roles := t.RolesOf(userID)
	if action == TicketActionQuote && t.AssigneeID == nil && len(roles) == 0 {
		if err := t.checkEdge(action); err != nil {
			return Actor{}, err
		}
		return Actor{ID: userID, Role: valueobject.RoleProvider}, nil
	}
	if len(roles) == 0 {
		return Actor{}, apperror.ErrForbidden
	}
	if err := t.checkEdge(action); err != nil {
		return Actor{}, err
	}
	for _, r := range roles {
		if action.Allows(r) {
			return Actor{ID: userID, Role: r}, nil
		}
	}
	return Actor{}, apperror.ErrForbidden
}

// checkEdge проверяет, что действие допустимо из текущего статуса.
// Для терминальных статусов любое действие недопустимо.
func (t *Ticket) checkEdge(action TicketAction) error {
	edge, ok := ticketEdges[action]
	if !ok {
		return apperror.New(apperror.ErrCodeValidation, "неизвестное действие")
	}
	for _, from := range edge.from {
		if t.Status == from {
			return nil
		}
	}
	return apperror.NewInvalidTransition("ticket", string(t.Status), string(edge.to))
}

// transition проверяет ребро графа и роль, затем меняет статус.
func (t *Ticket) transition(action TicketAction, actor Actor) error {
	if err := t.checkEdge(action); err != nil {
		return err
	}
	edge := ticketEdges[action]
	if !action.Allows(actor.Role) {
		return apperror.ErrForbidden
	}
	t.Status = edge.to
	t.UpdatedAt = time.Now()
	return nil
}

func (t *Ticket) Quote(actor Actor, amount int64) error {
	if amount <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "сумма сметы должна быть положительной")
	}
	if actor.ID == t.RequesterID || actor.ID == t.OwnerID {
		return apperror.New(apperror.ErrCodeValidation, "нельзя выставить смету на собственную заявку")
	}
	if err := t.transition(TicketActionQuote, actor); err != nil {
		return err
	}
	assignee := actor.ID
	t.AssigneeID = &assignee
	t.QuoteAmount = amount
	return nil
}

// Approve переводит заявку в ESCROW только при подтверждённой блокировке средств.
// Списание (captured) подтверждает только система по проверенному платёжному событию,
// пользователь может сослаться лишь на авторизацию.
func (t *Ticket) Approve(actor Actor, hold EscrowHold) error {
	if t.Status == valueobject.TicketStatusQuote {
		if err := hold.validate(t.QuoteAmount); err != nil {
			return err
		}
		if actor.Role != valueobject.RoleSystem && hold.State != HoldStateAuthorized {
			return apperror.New(apperror.ErrCodeValidation, "списание средств подтверждается только платёжным событием")
		}
	}
	return t.transition(TicketActionApprove, actor)
}

func (t *Ticket) StartWork(actor Actor) error {
	return t.transition(TicketActionStart, actor)
}

func (t *Ticket) RequestExtra(actor Actor, amount int64) error {
	if amount <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "сумма доплаты должна быть положительной")
	}
	if err := t.transition(TicketActionRequestExtra, actor); err != nil {
		return err
	}
	t.ExtraAmount = &amount
	return nil
}

// ApproveExtra добавляет одобренную доплату к сумме заявки.
func (t *Ticket) ApproveExtra(actor Actor) error {
	if err := t.transition(TicketActionApproveExtra, actor); err != nil {
		return err
	}
	if t.ExtraAmount != nil {
		t.QuoteAmount += *t.ExtraAmount
	}
	t.ExtraAmount = nil
	return nil
}

func (t *Ticket) AbandonExtra(actor Actor) error {
	if err := t.transition(TicketActionAbandonExtra, actor); err != nil {
		return err
	}
	t.ExtraAmount = nil
	return nil
}

func (t *Ticket) Complete(actor Actor, invoiceRef string) error {
	if err := t.transition(TicketActionComplete, actor); err != nil {
		return err
	}
	if ref := strings.TrimSpace(invoiceRef); ref != "" {
		t.InvoiceRef = &ref
	}
	return nil
}

func (t *Ticket) Validate(actor Actor) error {
	return t.transition(TicketActionValidate, actor)
}

func (t *Ticket) Dispute(actor Actor, reason string) error {
	if err := t.transition(TicketActionDispute, actor); err != nil {
		return err
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		t.DisputeReason = &reason
	}
	return nil
}

// StampPayment фиксирует последнюю прямую оплату. Это аудит-метаданные,
// поэтому разрешено и для терминальных статусов.
func (t *Ticket) StampPayment(ref string, at time.Time) {
	t.LastPaidAt = &at
	t.LastPaymentRef = &ref
	t.UpdatedAt = time.Now()
}

func (t *Ticket) LinkOffer(offerID uuid.UUID) {
	t.OfferID = &offerID
	t.UpdatedAt = time.Now()
}

func (t *Ticket) IsTerminal() bool {
	return t.Status.IsTerminal()
}
