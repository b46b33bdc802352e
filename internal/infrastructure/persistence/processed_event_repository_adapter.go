package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

// DefaultClaimLease время, после которого зависшее в processing событие
// может быть захвачено повторной доставкой.
const DefaultClaimLease = 5 * time.Minute

type ProcessedEventRepositoryAdapter struct {
	db    *sqlx.DB
	lease time.Duration
}

func NewProcessedEventRepositoryAdapter(db *sqlx.DB, lease time.Duration) *ProcessedEventRepositoryAdapter {
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &ProcessedEventRepositoryAdapter{db: db, lease: lease}
}

const processedEventColumns = `id, provider, event_id, event_type, status, error, attempts, created_at, updated_at`

// Claim выполняется одним запросом: конфликт по (provider, event_id)
// обновляет строку только для failed или просроченного processing.
// Если WHERE не выполнился, RETURNING ничего не вернёт.
func (r *ProcessedEventRepositoryAdapter) Claim(ctx context.Context, provider, eventID, eventType string) (*entity.ProcessedEvent, bool, error) {
	query := `
		INSERT INTO processed_events (id, provider, event_id, event_type, status, attempts)
		VALUES ($1, $2, $3, $4, 'processing', 1)
		ON CONFLICT (provider, event_id) DO UPDATE
		SET status = 'processing',
		    attempts = processed_events.attempts + 1,
		    updated_at = NOW()
		WHERE processed_events.status = 'failed'
		   OR (processed_events.status = 'processing'
		       AND processed_events.updated_at < NOW() - make_interval(secs => $5))
		RETURNING ` + processedEventColumns

	var row processedEventRow
	err := r.db.GetContext(ctx, &row, query, uuid.New(), provider, eventID, eventType, r.lease.Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось зафиксировать событие")
	}
	return row.toEntity(), true, nil
}

func (r *ProcessedEventRepositoryAdapter) MarkCompleted(ctx context.Context, provider, eventID string) error {
	return r.mark(ctx, provider, eventID, valueobject.EventStatusCompleted, nil)
}

func (r *ProcessedEventRepositoryAdapter) MarkFailed(ctx context.Context, provider, eventID string, cause error) error {
	return r.mark(ctx, provider, eventID, valueobject.EventStatusFailed, cause)
}

func (r *ProcessedEventRepositoryAdapter) MarkDead(ctx context.Context, provider, eventID string, cause error) error {
	return r.mark(ctx, provider, eventID, valueobject.EventStatusDead, cause)
}

func (r *ProcessedEventRepositoryAdapter) mark(ctx context.Context, provider, eventID string, status valueobject.ProcessedEventStatus, cause error) error {
	var msg sql.NullString
	if cause != nil {
		msg = sql.NullString{String: cause.Error(), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE processed_events
		SET status = $3, error = COALESCE($4, error), updated_at = NOW()
		WHERE provider = $1 AND event_id = $2`,
		provider, eventID, string(status), msg)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить статус события")
	}
	return requireRow(res, apperror.ErrEventNotFound)
}

func (r *ProcessedEventRepositoryAdapter) Find(ctx context.Context, provider, eventID string) (*entity.ProcessedEvent, error) {
	row, err := getOne[processedEventRow](ctx, r.db, apperror.ErrEventNotFound, "не удалось получить событие",
		`SELECT `+processedEventColumns+` FROM processed_events WHERE provider = $1 AND event_id = $2`, provider, eventID)
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

type processedEventRow struct {
	ID        uuid.UUID      `db:"id"`
	Provider  string         `db:"provider"`
	EventID   string         `db:"event_id"`
	EventType string         `db:"event_type"`
	Status    string         `db:"status"`
	Error     sql.NullString `db:"error"`
	Attempts  int            `db:"attempts"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (e *processedEventRow) toEntity() *entity.ProcessedEvent {
	return &entity.ProcessedEvent{
		ID:        e.ID,
		Provider:  e.Provider,
		EventID:   e.EventID,
		EventType: e.EventType,
		Status:    valueobject.ProcessedEventStatus(e.Status),
		Error:     stringPtr(e.Error),
		Attempts:  e.Attempts,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
