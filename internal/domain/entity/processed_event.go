package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
)

// ProcessedEvent запись журнала идемпотентности внешних событий.
type ProcessedEvent struct {
	ID        uuid.UUID
	Provider  string
	EventID   string
	EventType string
	Status    valueobject.ProcessedEventStatus
	Error     *string
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *ProcessedEvent) IsFinal() bool {
	return e.Status == valueobject.EventStatusCompleted || e.Status == valueobject.EventStatusDead
}
