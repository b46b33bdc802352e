package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/rental-escrow/internal/domain/repository"
	"github.com/ignatzorin/rental-escrow/internal/http/dto"
	"github.com/ignatzorin/rental-escrow/internal/http/response"
	"github.com/ignatzorin/rental-escrow/internal/service"
)

type earningLister interface {
	List(ctx context.Context, userID uuid.UUID, role string, filter repository.EarningFilter) (*service.EarningsPage, error)
}

// EarningHandler отдаёт журнал доходов платформы.
type EarningHandler struct {
	earnings earningLister
}

func NewEarningHandler(earnings earningLister) *EarningHandler {
	return &EarningHandler{earnings: earnings}
}

// List обрабатывает GET /api/earnings?from=&to=&provider_id=&offer_id=&limit=&offset=.
func (h *EarningHandler) List(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		response.Unauthorized(c, "требуется авторизация")
		return
	}

	var filter repository.EarningFilter
	if filter.From, err = parseTimeQuery(c, "from"); err != nil {
		response.BadRequest(c, "некорректный параметр from")
		return
	}
	if filter.To, err = parseTimeQuery(c, "to"); err != nil {
		response.BadRequest(c, "некорректный параметр to")
		return
	}
	if filter.ProviderID, err = parseUUIDQuery(c, "provider_id"); err != nil {
		response.BadRequest(c, "некорректный provider_id")
		return
	}
	if filter.OfferID, err = parseUUIDQuery(c, "offer_id"); err != nil {
		response.BadRequest(c, "некорректный offer_id")
		return
	}
	if filter.Limit, err = parseIntQuery(c, "limit", 0); err != nil {
		response.BadRequest(c, "некорректный limit")
		return
	}
	if filter.Offset, err = parseIntQuery(c, "offset", 0); err != nil {
		response.BadRequest(c, "некорректный offset")
		return
	}

	page, err := h.earnings.List(c.Request.Context(), userID, currentUserRole(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, dto.ToEarningsPageResponse(page), response.NewPage(page.Limit, page.Offset, len(page.Items)))
}
