// Package fee считает комиссию платформы в целых минорных единицах валюты.
package fee

import (
	"math"
	"strconv"

	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

// BasisPointsScale соответствует 100%.
const BasisPointsScale = 10_000

// MaxAmount наибольшая сумма, для которой amount*bps с округлением помещается в int64.
const MaxAmount = (math.MaxInt64 - BasisPointsScale/2) / BasisPointsScale

// Breakdown раскладывает валовую сумму на комиссию платформы и выплату исполнителю.
type Breakdown struct {
	Gross    int64 `json:"gross"`
	Fee      int64 `json:"fee"`
	NetToPro int64 `json:"net_to_pro"`
}

// Balanced сообщает, сходится ли разложение копейка в копейку.
func (b Breakdown) Balanced() bool {
	return b.Fee+b.NetToPro == b.Gross
}

// PlatformFee применяет процент (в базисных пунктах) и минимальный порог.
// fee = max(round(gross * pct), floor), net = max(gross - fee, 0).
func PlatformFee(gross, pctBasisPoints, floor int64) (Breakdown, error) {
	if err := validate(gross, pctBasisPoints); err != nil {
		return Breakdown{}, err
	}
	if floor < 0 {
		return Breakdown{}, apperror.New(apperror.ErrCodeValidation, "минимальная комиссия не может быть отрицательной")
	}
	if gross == 0 {
		return Breakdown{}, nil
	}

	fee := percentOf(gross, pctBasisPoints)
	if fee < floor {
		fee = floor
	}
	return split(gross, fee), nil
}

// ServiceFee то же самое, но без порога. Используется для предложений маркетплейса.
func ServiceFee(amount, pctBasisPoints int64) (Breakdown, error) {
	if err := validate(amount, pctBasisPoints); err != nil {
		return Breakdown{}, err
	}
	return split(amount, percentOf(amount, pctBasisPoints)), nil
}

// ToDecimal переводит минорные единицы в десятичное значение для отображения.
// Вход целый, поэтому результат уже округлён до двух знаков.
func ToDecimal(minor int64) float64 {
	return float64(minor) / 100
}

// FormatDecimal форматирует минорные единицы как "12.34".
func FormatDecimal(minor int64) string {
	return strconv.FormatFloat(ToDecimal(minor), 'f', 2, 64)
}

// percentOf округляет половину вверх.
func percentOf(amount, bps int64) int64 {
	return (amount*bps + BasisPointsScale/2) / BasisPointsScale
}

func split(gross, fee int64) Breakdown {
	net := gross - fee
	if net < 0 {
		net = 0
	}
	return Breakdown{Gross: gross, Fee: fee, NetToPro: net}
}

func validate(amount, bps int64) error {
	if amount < 0 {
		return apperror.New(apperror.ErrCodeValidation, "сумма не может быть отрицательной")
	}
	if amount > MaxAmount {
		return apperror.New(apperror.ErrCodeValidation, "сумма превышает допустимый предел")
	}
	if bps < 0 || bps > BasisPointsScale {
		return apperror.New(apperror.ErrCodeValidation, "процент комиссии должен быть от 0 до 10000 б.п.")
	}
	return nil
}

// Policy описывает процент и порог комиссии.
type Policy struct {
	PctBasisPoints int64
	Floor          int64
}

// Calculator неизменяемый набор политик, собирается один раз из конфигурации.
type Calculator struct {
	rent    Policy
	service int64
}

func NewCalculator(rent Policy, servicePctBasisPoints int64) (Calculator, error) {
	if _, err := PlatformFee(0, rent.PctBasisPoints, rent.Floor); err != nil {
		return Calculator{}, err
	}
	if _, err := ServiceFee(0, servicePctBasisPoints); err != nil {
		return Calculator{}, err
	}
	return Calculator{rent: rent, service: servicePctBasisPoints}, nil
}

func (c Calculator) Rent(gross int64) (Breakdown, error) {
	return PlatformFee(gross, c.rent.PctBasisPoints, c.rent.Floor)
}

func (c Calculator) Service(amount int64) (Breakdown, error) {
	return ServiceFee(amount, c.service)
}

func (c Calculator) RentPolicy() Policy {
	return c.rent
}

func (c Calculator) ServicePct() int64 {
	return c.service
}
