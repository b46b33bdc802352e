package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/repository"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

type EarningRepositoryAdapter struct {
	db *sqlx.DB
}

func NewEarningRepositoryAdapter(db *sqlx.DB) *EarningRepositoryAdapter {
	return &EarningRepositoryAdapter{db: db}
}

// Insert опирается на уникальный ключ (offer_id, payment_ref): повторная
// вставка того же платежа ничего не делает.
func (r *EarningRepositoryAdapter) Insert(ctx context.Context, e *entity.PlatformEarning) (bool, error) {
	query := `
		INSERT INTO platform_earnings (id, offer_id, provider_id, gross, fee, net_to_pro, currency, payment_ref, event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (offer_id, payment_ref) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, e.ID, e.OfferID, e.ProviderID, e.Gross, e.Fee, e.NetToPro,
		e.Currency, e.PaymentRef, e.EventID, e.CreatedAt)
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось записать доход платформы")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось записать доход платформы")
	}
	return n == 1, nil
}

func (r *EarningRepositoryAdapter) List(ctx context.Context, filter repository.EarningFilter) ([]*entity.PlatformEarning, error) {
	query := `SELECT id, offer_id, provider_id, gross, fee, net_to_pro, currency, payment_ref, event_id, created_at
		FROM platform_earnings WHERE 1=1`
	args := []any{}
	argIndex := 1

	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIndex)
		args = append(args, *filter.To)
		argIndex++
	}
	if filter.ProviderID != nil {
		query += fmt.Sprintf(" AND provider_id = $%d", argIndex)
		args = append(args, *filter.ProviderID)
		argIndex++
	}
	if filter.OfferID != nil {
		query += fmt.Sprintf(" AND offer_id = $%d", argIndex)
		args = append(args, *filter.OfferID)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	var rows []earningRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить доходы платформы")
	}
	result := make([]*entity.PlatformEarning, len(rows))
	for i, row := range rows {
		result[i] = &entity.PlatformEarning{
			ID:         row.ID,
			OfferID:    row.OfferID,
			ProviderID: row.ProviderID,
			Gross:      row.Gross,
			Fee:        row.Fee,
			NetToPro:   row.NetToPro,
			Currency:   row.Currency,
			PaymentRef: row.PaymentRef,
			EventID:    row.EventID,
			CreatedAt:  row.CreatedAt,
		}
	}
	return result, nil
}

type earningRow struct {
	ID         uuid.UUID `db:"id"`
	OfferID    uuid.UUID `db:"offer_id"`
	ProviderID uuid.UUID `db:"provider_id"`
	Gross      int64     `db:"gross"`
	Fee        int64     `db:"fee"`
	NetToPro   int64     `db:"net_to_pro"`
	Currency   string    `db:"currency"`
	PaymentRef string    `db:"payment_ref"`
	EventID    string    `db:"event_id"`
	CreatedAt  time.Time `db:"created_at"`
}
