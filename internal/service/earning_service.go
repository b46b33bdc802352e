package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/rental-escrow/internal/domain/entity"
	"github.com/ignatzorin/rental-escrow/internal/domain/fee"
	"github.com/ignatzorin/rental-escrow/internal/domain/repository"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

const (
	defaultEarningsLimit = 50
	maxEarningsLimit     = 200

	// RoleAdmin клейм роли, которому доступен весь журнал доходов.
	RoleAdmin = "admin"
)

// EarningsPage страница журнала и итоги по ней.
type EarningsPage struct {
	Items  []*entity.PlatformEarning
	Totals fee.Breakdown
	Limit  int
	Offset int
}

type EarningService struct {
	repo repository.EarningRepository
}

func NewEarningService(repo repository.EarningRepository) *EarningService {
	return &EarningService{repo: repo}
}

// List возвращает записи журнала. Исполнитель видит только свои доходы,
// администратор может фильтровать по любому исполнителю.
func (s *EarningService) List(ctx context.Context, userID uuid.UUID, role string, filter repository.EarningFilter) (*EarningsPage, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, apperror.New(apperror.ErrCodeValidation, "начало периода должно быть раньше конца")
	}
	if role != RoleAdmin {
		if filter.ProviderID != nil && *filter.ProviderID != userID {
			return nil, apperror.ErrForbidden
		}
		filter.ProviderID = &userID
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultEarningsLimit
	}
	if filter.Limit > maxEarningsLimit {
		filter.Limit = maxEarningsLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	page := &EarningsPage{Items: items, Limit: filter.Limit, Offset: filter.Offset}
	for _, e := range items {
		page.Totals.Gross += e.Gross
		page.Totals.Fee += e.Fee
		page.Totals.NetToPro += e.NetToPro
	}
	return page, nil
}
