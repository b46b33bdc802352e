package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
)

type TicketHistory struct {
	ID         uuid.UUID
	TicketID   uuid.UUID
	ActorID    *uuid.UUID
	ActorRole  valueobject.ActorRole
	Action     TicketAction
	FromStatus valueobject.TicketStatus
	ToStatus   valueobject.TicketStatus
	Details    json.RawMessage
	CreatedAt  time.Time
}

func NewTicketHistory(ticketID uuid.UUID, actor Actor, action TicketAction, from, to valueobject.TicketStatus, details map[string]any) *TicketHistory {
	h := &TicketHistory{
		ID:         uuid.New(),
		TicketID:   ticketID,
		ActorRole:  actor.Role,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		CreatedAt:  time.Now(),
	}
	if actor.ID != uuid.Nil {
		id := actor.ID
		h.ActorID = &id
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			h.Details = raw
		}
	}
	return h
}

// Contract договор аренды ведётся снаружи, здесь только отметка об оплате.
type Contract struct {
	ID             uuid.UUID
	LastPaidAt     *time.Time
	LastPaymentRef *string
}

func (c *Contract) StampPayment(ref string, at time.Time) {
	c.LastPaidAt = &at
	c.LastPaymentRef = &ref
}
