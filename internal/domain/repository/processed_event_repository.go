package repository

import (
	"context"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
)

type ProcessedEventRepository interface {
	// Claim атомарно захватывает событие для обработки. Новое событие или
	// failed/просроченное processing возвращает (event, true). Уже обработанное
	// или обрабатываемое сейчас возвращает (nil, false).
	Claim(ctx context.Context, provider, eventID, eventType string) (*entity.ProcessedEvent, bool, error)
	MarkCompleted(ctx context.Context, provider, eventID string) error
	MarkFailed(ctx context.Context, provider, eventID string, cause error) error
	MarkDead(ctx context.Context, provider, eventID string, cause error) error
	Find(ctx context.Context, provider, eventID string) (*entity.ProcessedEvent, error)
}
