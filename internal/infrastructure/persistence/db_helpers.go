package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

const uniqueViolation = "23505"

// getOne читает одну строку в T; sql.ErrNoRows превращается в notFound.
func getOne[T any](ctx context.Context, db sqlx.QueryerContext, notFound error, failMsg, query string, args ...any) (*T, error) {
	var row T
	if err := sqlx.GetContext(ctx, db, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, failMsg)
	}
	return &row, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// isUniqueViolationOn проверяет нарушение конкретного уникального индекса.
func isUniqueViolationOn(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == constraint
}

// conditionalResult разбирает итог условного UPDATE: ноль строк означает
// либо отсутствие записи, либо проигранную гонку.
func conditionalResult(ctx context.Context, db *sqlx.DB, res sql.Result, table string, id any, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить число обновлённых строк")
	}
	if n > 0 {
		return nil
	}
	var exists bool
	// имя таблицы задаётся только константами адаптеров
	if err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось проверить запись")
	}
	if !exists {
		return notFound
	}
	return apperror.ErrConcurrentUpdate
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить число обновлённых строк")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
