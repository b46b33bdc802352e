package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

type TicketRepositoryAdapter struct {
	db *sqlx.DB
}

func NewTicketRepositoryAdapter(db *sqlx.DB) *TicketRepositoryAdapter {
	return &TicketRepositoryAdapter{db: db}
}

const ticketColumns = `id, requester_id, assignee_id, owner_id, conversation_id, title, status, quote_amount,
	extra_amount, offer_id, invoice_ref, dispute_reason, last_paid_at, last_payment_ref, created_at, updated_at`

func (r *TicketRepositoryAdapter) Create(ctx context.Context, t *entity.Ticket) error {
	query := `INSERT INTO tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.RequesterID, t.AssigneeID, t.OwnerID, t.ConversationID, t.Title, string(t.Status), t.QuoteAmount,
		t.ExtraAmount, t.OfferID, nullString(t.InvoiceRef), nullString(t.DisputeReason), t.LastPaidAt, nullString(t.LastPaymentRef),
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Wrap(err, apperror.ErrCodeConflict, "заявка уже существует")
		}
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать заявку")
	}
	return nil
}

func (r *TicketRepositoryAdapter) FindByID(ctx context.Context, id uuid.UUID) (*entity.Ticket, error) {
	row, err := getOne[ticketRow](ctx, r.db, apperror.ErrTicketNotFound, "не удалось получить заявку",
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *TicketRepositoryAdapter) Update(ctx context.Context, t *entity.Ticket, expected valueobject.TicketStatus) error {
	query := `
		UPDATE tickets
		SET assignee_id = $3, status = $4, quote_amount = $5, extra_amount = $6, offer_id = $7,
		    invoice_ref = $8, dispute_reason = $9, updated_at = $10
		WHERE id = $1 AND status = $2
	`
	res, err := r.db.ExecContext(ctx, query,
		t.ID, string(expected), t.AssigneeID, string(t.Status), t.QuoteAmount, t.ExtraAmount, t.OfferID,
		nullString(t.InvoiceRef), nullString(t.DisputeReason), t.UpdatedAt,
	)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить заявку")
	}
	return conditionalResult(ctx, r.db, res, "tickets", t.ID, apperror.ErrTicketNotFound)
}

// StampPayment допустим в любом статусе, включая терминальные.
func (r *TicketRepositoryAdapter) StampPayment(ctx context.Context, id uuid.UUID, ref string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET last_paid_at = $2, last_payment_ref = $3 WHERE id = $1`, id, at, ref)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось отметить оплату заявки")
	}
	return requireRow(res, apperror.ErrTicketNotFound)
}

type ticketRow struct {
	ID             uuid.UUID      `db:"id"`
	RequesterID    uuid.UUID      `db:"requester_id"`
	AssigneeID     *uuid.UUID     `db:"assignee_id"`
	OwnerID        uuid.UUID      `db:"owner_id"`
	ConversationID *uuid.UUID     `db:"conversation_id"`
	Title          string         `db:"title"`
	Status         string         `db:"status"`
	QuoteAmount    int64          `db:"quote_amount"`
	ExtraAmount    *int64         `db:"extra_amount"`
	OfferID        *uuid.UUID     `db:"offer_id"`
	InvoiceRef     sql.NullString `db:"invoice_ref"`
	DisputeReason  sql.NullString `db:"dispute_reason"`
	LastPaidAt     *time.Time     `db:"last_paid_at"`
	LastPaymentRef sql.NullString `db:"last_payment_ref"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (t *ticketRow) toEntity() *entity.Ticket {
	return &entity.Ticket{
		ID:             t.ID,
		RequesterID:    t.RequesterID,
		AssigneeID:     t.AssigneeID,
		OwnerID:        t.OwnerID,
		ConversationID: t.ConversationID,
		Title:          t.Title,
		Status:         valueobject.TicketStatus(t.Status),
		QuoteAmount:    t.QuoteAmount,
		ExtraAmount:    t.ExtraAmount,
		OfferID:        t.OfferID,
		InvoiceRef:     stringPtr(t.InvoiceRef),
		DisputeReason:  stringPtr(t.DisputeReason),
		LastPaidAt:     t.LastPaidAt,
		LastPaymentRef: stringPtr(t.LastPaymentRef),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

type TicketHistoryRepositoryAdapter struct {
	db *sqlx.DB
}

func NewTicketHistoryRepositoryAdapter(db *sqlx.DB) *TicketHistoryRepositoryAdapter {
	return &TicketHistoryRepositoryAdapter{db: db}
}

func (r *TicketHistoryRepositoryAdapter) Create(ctx context.Context, h *entity.TicketHistory) error {
	query := `INSERT INTO ticket_history (id, ticket_id, actor_id, actor_role, action, from_status, to_status, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	var details sql.NullString
	if len(h.Details) > 0 {
		details = sql.NullString{String: string(h.Details), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, h.ID, h.TicketID, h.ActorID, string(h.ActorRole), string(h.Action),
		string(h.FromStatus), string(h.ToStatus), details, h.CreatedAt)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось записать историю заявки")
	}
	return nil
}

func (r *TicketHistoryRepositoryAdapter) FindByTicketID(ctx context.Context, ticketID uuid.UUID) ([]*entity.TicketHistory, error) {
	var rows []historyRow
	query := `SELECT id, ticket_id, actor_id, actor_role, action, from_status, to_status, details, created_at
		FROM ticket_history WHERE ticket_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &rows, query, ticketID); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить историю заявки")
	}
	result := make([]*entity.TicketHistory, len(rows))
	for i, row := range rows {
		result[i] = &entity.TicketHistory{
			ID:         row.ID,
			TicketID:   row.TicketID,
			ActorID:    row.ActorID,
			ActorRole:  valueobject.ActorRole(row.ActorRole),
			Action:     entity.TicketAction(row.Action),
			FromStatus: valueobject.TicketStatus(row.FromStatus),
			ToStatus:   valueobject.TicketStatus(row.ToStatus),
			Details:    json.RawMessage(row.Details),
			CreatedAt:  row.CreatedAt,
		}
	}
	return result, nil
}

type historyRow struct {
	ID         uuid.UUID  `db:"id"`
	TicketID   uuid.UUID  `db:"ticket_id"`
	ActorID    *uuid.UUID `db:"actor_id"`
	ActorRole  string     `db:"actor_role"`
	Action     string     `db:"action"`
	FromStatus string     `db:"from_status"`
	ToStatus   string     `db:"to_status"`
	Details    []byte     `db:"details"`
	CreatedAt  time.Time  `db:"created_at"`
}

type ContractRepositoryAdapter struct {
	db *sqlx.DB
}

func NewContractRepositoryAdapter(db *sqlx.DB) *ContractRepositoryAdapter {
	return &ContractRepositoryAdapter{db: db}
}

func (r *ContractRepositoryAdapter) StampPayment(ctx context.Context, id uuid.UUID, ref string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE contracts SET last_paid_at = $2, last_payment_ref = $3 WHERE id = $1`, id, at, ref)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось отметить оплату договора")
	}
	return requireRow(res, apperror.ErrContractNotFound)
}
