package valueobject

import (
	"strings"

	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

// DefaultCurrency единственная поддерживаемая валюта, если конфигурация не задала другую.
const DefaultCurrency = "EUR"

// Money хранит сумму в минорных единицах (центах).
type Money struct {
	Amount   int64
	Currency string
}

func NewMoney(amount int64, currency string) (Money, error) {
	if amount <= 0 {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма должна быть положительной")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// RequireCurrency проверяет, что сумма выражена в поддерживаемой валюте.
func (m Money) RequireCurrency(supported string) error {
	if !strings.EqualFold(m.Currency, supported) {
		return apperror.New(apperror.ErrCodeValidation, "валюта "+m.Currency+" не поддерживается")
	}
	return nil
}
