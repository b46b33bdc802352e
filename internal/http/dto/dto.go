package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/fee"
	"github.com/ignatzorin/rental-escrow/internal/service"
)

type CreateTicketRequest struct {
	OwnerID        uuid.UUID  `json:"owner_id" binding:"required"`
	Title          string     `json:"title" binding:"required"`
	ConversationID *uuid.UUID `json:"conversation_id"`
}

// HoldRequest подтверждение блокировки средств, с которым владелец одобряет смету.
// Через API принимается только авторизация, списание приходит платёжным событием.
type HoldRequest struct {
	PaymentRef string `json:"payment_ref" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	Currency   string `json:"currency"`
	State      string `json:"state" binding:"required,oneof=authorized"`
}

// TicketActionRequest тело для всех действий над заявкой, поля зависят от действия.
type TicketActionRequest struct {
	Amount     int64        `json:"amount"`
	InvoiceRef string       `json:"invoice_ref"`
	Reason     string       `json:"reason"`
	Hold       *HoldRequest `json:"hold"`
}

func (r *HoldRequest) ToEntity() *entity.EscrowHold {
	if r == nil {
		return nil
	}
	return &entity.EscrowHold{
		PaymentRef: r.PaymentRef,
		Amount:     r.Amount,
		Currency:   r.Currency,
		State:      entity.HoldState(r.State),
	}
}

type TicketResponse struct {
	ID             uuid.UUID  `json:"id"`
	RequesterID    uuid.UUID  `json:"requester_id"`
	AssigneeID     *uuid.UUID `json:"assignee_id,omitempty"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	QuoteAmount    int64      `json:"quote_amount"`
	ExtraAmount    *int64     `json:"extra_amount,omitempty"`
	OfferID        *uuid.UUID `json:"offer_id,omitempty"`
	InvoiceRef     *string    `json:"invoice_ref,omitempty"`
	DisputeReason  *string    `json:"dispute_reason,omitempty"`
	LastPaidAt     *time.Time `json:"last_paid_at,omitempty"`
	LastPaymentRef *string    `json:"last_payment_ref,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func ToTicketResponse(t *entity.Ticket) TicketResponse {
	return TicketResponse{
		ID:             t.ID,
		RequesterID:    t.RequesterID,
		AssigneeID:     t.AssigneeID,
		OwnerID:        t.OwnerID,
		ConversationID: t.ConversationID,
		Title:          t.Title,
		Status:         string(t.Status),
		QuoteAmount:    t.QuoteAmount,
		ExtraAmount:    t.ExtraAmount,
		OfferID:        t.OfferID,
		InvoiceRef:     t.InvoiceRef,
		DisputeReason:  t.DisputeReason,
		LastPaidAt:     t.LastPaidAt,
		LastPaymentRef: t.LastPaymentRef,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

type TicketHistoryResponse struct {
	ID         uuid.UUID       `json:"id"`
	ActorID    *uuid.UUID      `json:"actor_id,omitempty"`
	ActorRole  string          `json:"actor_role"`
	Action     string          `json:"action"`
	FromStatus string          `json:"from_status"`
	ToStatus   string          `json:"to_status"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func ToTicketHistoryResponses(rows []*entity.TicketHistory) []TicketHistoryResponse {
	out := make([]TicketHistoryResponse, 0, len(rows))
	for _, h := range rows {
		out = append(out, TicketHistoryResponse{
			ID:         h.ID,
			ActorID:    h.ActorID,
			ActorRole:  string(h.ActorRole),
			Action:     string(h.Action),
			FromStatus: string(h.FromStatus),
			ToStatus:   string(h.ToStatus),
			Details:    h.Details,
			CreatedAt:  h.CreatedAt,
		})
	}
	return out
}

type EarningResponse struct {
	ID         uuid.UUID `json:"id"`
	OfferID    uuid.UUID `json:"offer_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Gross      int64     `json:"gross"`
	Fee        int64     `json:"fee"`
	NetToPro   int64     `json:"net_to_pro"`
	Currency   string    `json:"currency"`
	PaymentRef string    `json:"payment_ref"`
	EventID    string    `json:"event_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// EarningsPageResponse записи страницы и итоги по ним. Окно выборки
// отдаётся в page конверта.
type EarningsPageResponse struct {
	Items  []EarningResponse `json:"items"`
	Totals fee.Breakdown     `json:"totals"`
}

func ToEarningsPageResponse(page *service.EarningsPage) EarningsPageResponse {
	items := make([]EarningResponse, 0, len(page.Items))
	for _, e := range page.Items {
		items = append(items, EarningResponse{
			ID:         e.ID,
			OfferID:    e.OfferID,
			ProviderID: e.ProviderID,
			Gross:      e.Gross,
			Fee:        e.Fee,
			NetToPro:   e.NetToPro,
			Currency:   e.Currency,
			PaymentRef: e.PaymentRef,
			EventID:    e.EventID,
			CreatedAt:  e.CreatedAt,
		})
	}
	return EarningsPageResponse{Items: items, Totals: page.Totals}
}

type MessageResponse struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	AuthorType     string          `json:"author_type"`
	AuthorID       *uuid.UUID      `json:"author_id,omitempty"`
	Content        string          `json:"content,omitempty"`
	EventCode      *string         `json:"event_code,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func ToMessageResponses(msgs []*entity.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			AuthorType:     string(m.AuthorType),
			AuthorID:       m.AuthorID,
			Content:        m.Content,
			EventCode:      m.EventCode,
			Payload:        m.Payload,
			CreatedAt:      m.CreatedAt,
		})
	}
	return out
}
