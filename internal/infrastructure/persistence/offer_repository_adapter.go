package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

type OfferRepositoryAdapter struct {
	db *sqlx.DB
}

func NewOfferRepositoryAdapter(db *sqlx.DB) *OfferRepositoryAdapter {
	return &OfferRepositoryAdapter{db: db}
}

const offerColumns = `id, conversation_id, linked_conversation_id, provider_id, requester_id, owner_id, property_id,
	amount, currency, status, ticket_id, appointment_id, payment_ref, paid_at, created_at, updated_at`

// у заявки не больше одного активного предложения, см. migrations/0002
const activeTicketOfferIndex = "uq_service_offers_active_ticket"

func (r *OfferRepositoryAdapter) Create(ctx context.Context, o *entity.ServiceOffer) error {
	query := `INSERT INTO service_offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := r.db.ExecContext(ctx, query,
		o.ID, o.ConversationID, o.LinkedConversationID, o.ProviderID, o.RequesterID, o.OwnerID, o.PropertyID,
		o.Amount, o.Currency, string(o.Status), o.TicketID, o.AppointmentID, nullString(o.PaymentRef), o.PaidAt,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolationOn(err, activeTicketOfferIndex) {
			return apperror.Wrap(err, apperror.ErrCodeConflict, apperror.ErrTicketOfferExists.Message)
		}
		if isUniqueViolation(err) {
			return apperror.Wrap(err, apperror.ErrCodeConflict, "предложение уже существует")
		}
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать предложение")
	}
	return nil
}

func (r *OfferRepositoryAdapter) FindByID(ctx context.Context, id uuid.UUID) (*entity.ServiceOffer, error) {
	row, err := getOne[offerRow](ctx, r.db, apperror.ErrOfferNotFound, "не удалось получить предложение",
		`SELECT `+offerColumns+` FROM service_offers WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *OfferRepositoryAdapter) FindByTicketID(ctx context.Context, ticketID uuid.UUID) (*entity.ServiceOffer, error) {
	row, err := getOne[offerRow](ctx, r.db, apperror.ErrOfferNotFound, "не удалось получить предложение заявки",
		`SELECT `+offerColumns+` FROM service_offers
		 WHERE ticket_id = $1 AND status NOT IN ('cancelled', 'rejected')
		 ORDER BY created_at DESC LIMIT 1`, ticketID)
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *OfferRepositoryAdapter) Update(ctx context.Context, o *entity.ServiceOffer, expected valueobject.OfferStatus) error {
	query := `
		UPDATE service_offers
		SET status = $3, linked_conversation_id = $4, ticket_id = $5, appointment_id = $6,
		    payment_ref = $7, paid_at = $8, updated_at = $9
		WHERE id = $1 AND status = $2
	`
	res, err := r.db.ExecContext(ctx, query,
		o.ID, string(expected), string(o.Status), o.LinkedConversationID, o.TicketID, o.AppointmentID,
		nullString(o.PaymentRef), o.PaidAt, o.UpdatedAt,
	)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить предложение")
	}
	return conditionalResult(ctx, r.db, res, "service_offers", o.ID, apperror.ErrOfferNotFound)
}

type offerRow struct {
	ID                   uuid.UUID      `db:"id"`
	ConversationID       uuid.UUID      `db:"conversation_id"`
	LinkedConversationID *uuid.UUID     `db:"linked_conversation_id"`
	ProviderID           uuid.UUID      `db:"provider_id"`
	RequesterID          uuid.UUID      `db:"requester_id"`
	OwnerID              uuid.UUID      `db:"owner_id"`
	PropertyID           *uuid.UUID     `db:"property_id"`
	Amount               int64          `db:"amount"`
	Currency             string         `db:"currency"`
	Status               string         `db:"status"`
	TicketID             *uuid.UUID     `db:"ticket_id"`
	AppointmentID        *uuid.UUID     `db:"appointment_id"`
	PaymentRef           sql.NullString `db:"payment_ref"`
	PaidAt               *time.Time     `db:"paid_at"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (o *offerRow) toEntity() *entity.ServiceOffer {
	return &entity.ServiceOffer{
		ID:                   o.ID,
		ConversationID:       o.ConversationID,
		LinkedConversationID: o.LinkedConversationID,
		ProviderID:           o.ProviderID,
		RequesterID:          o.RequesterID,
		OwnerID:              o.OwnerID,
		PropertyID:           o.PropertyID,
		Amount:               o.Amount,
		Currency:             o.Currency,
		Status:               valueobject.OfferStatus(o.Status),
		TicketID:             o.TicketID,
		AppointmentID:        o.AppointmentID,
		PaymentRef:           stringPtr(o.PaymentRef),
		PaidAt:               o.PaidAt,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

type AppointmentRepositoryAdapter struct {
	db *sqlx.DB
}

func NewAppointmentRepositoryAdapter(db *sqlx.DB) *AppointmentRepositoryAdapter {
	return &AppointmentRepositoryAdapter{db: db}
}

func (r *AppointmentRepositoryAdapter) Create(ctx context.Context, a *entity.Appointment) error {
	query := `INSERT INTO appointments (id, offer_id, provider_id, requester_id, owner_id, conversation_id,
		starts_at, ends_at, status, payment_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.OfferID, a.ProviderID, a.RequesterID, a.OwnerID, a.ConversationID,
		a.StartsAt, a.EndsAt, string(a.Status), nullString(a.PaymentRef), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать встречу")
	}
	return nil
}

func (r *AppointmentRepositoryAdapter) FindByID(ctx context.Context, id uuid.UUID) (*entity.Appointment, error) {
	row, err := getOne[appointmentRow](ctx, r.db, apperror.ErrAppointmentNotFound, "не удалось получить встречу",
		`SELECT id, offer_id, provider_id, requester_id, owner_id, conversation_id, starts_at, ends_at, status,
		        payment_ref, created_at, updated_at
		 FROM appointments WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &entity.Appointment{
		ID:             row.ID,
		OfferID:        row.OfferID,
		ProviderID:     row.ProviderID,
		RequesterID:    row.RequesterID,
		OwnerID:        row.OwnerID,
		ConversationID: row.ConversationID,
		StartsAt:       row.StartsAt,
		EndsAt:         row.EndsAt,
		Status:         valueobject.AppointmentStatus(row.Status),
		PaymentRef:     stringPtr(row.PaymentRef),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

func (r *AppointmentRepositoryAdapter) Update(ctx context.Context, a *entity.Appointment, expected valueobject.AppointmentStatus) error {
	query := `
		UPDATE appointments
		SET status = $3, starts_at = $4, ends_at = $5, payment_ref = $6, updated_at = $7
		WHERE id = $1 AND status = $2
	`
	res, err := r.db.ExecContext(ctx, query, a.ID, string(expected), string(a.Status), a.StartsAt, a.EndsAt,
		nullString(a.PaymentRef), a.UpdatedAt)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить встречу")
	}
	return conditionalResult(ctx, r.db, res, "appointments", a.ID, apperror.ErrAppointmentNotFound)
}

type appointmentRow struct {
	ID             uuid.UUID      `db:"id"`
	OfferID        uuid.UUID      `db:"offer_id"`
	ProviderID     uuid.UUID      `db:"provider_id"`
	RequesterID    uuid.UUID      `db:"requester_id"`
	OwnerID        uuid.UUID      `db:"owner_id"`
	ConversationID *uuid.UUID     `db:"conversation_id"`
	StartsAt       time.Time      `db:"starts_at"`
	EndsAt         time.Time      `db:"ends_at"`
	Status         string         `db:"status"`
	PaymentRef     sql.NullString `db:"payment_ref"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}
