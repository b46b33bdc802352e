package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinTicketTitleLength   = 3
	MaxTicketTitleLength   = 200
	MaxDisputeReasonLength = 2000
	MaxReferenceLength     = 255
)

// Ссылки на счета и платежи приходят из внешних систем: только печатные ASCII без пробелов.
var referenceRegex = regexp.MustCompile(`^[A-Za-z0-9_\-./:#]+$`)

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateTicketTitle проверяет название заявки.
func ValidateTicketTitle(title string) error {
	if err := ValidateNonEmpty("название заявки", title); err != nil {
		return err
	}
	return ValidateLength("название заявки", strings.TrimSpace(title), MinTicketTitleLength, MaxTicketTitleLength)
}

// ValidateDisputeReason проверяет причину спора. Причина необязательна.
func ValidateDisputeReason(reason string) error {
	return ValidateLength("причина спора", strings.TrimSpace(reason), 0, MaxDisputeReasonLength)
}

// ValidateReference проверяет внешнюю ссылку (счёт, платёж). Пустая ссылка допустима.
func ValidateReference(fieldName, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if err := ValidateLength(fieldName, ref, 0, MaxReferenceLength); err != nil {
		return err
	}
	if !referenceRegex.MatchString(ref) {
		return fmt.Errorf("%s содержит недопустимые символы", fieldName)
	}
	return nil
}

// ValidateCurrency проверяет код валюты ISO 4217. Пустой код допустим.
func ValidateCurrency(currency string) error {
	if currency == "" {
		return nil
	}
	if !currencyRegex.MatchString(strings.ToUpper(currency)) {
		return fmt.Errorf("некорректный код валюты %q", currency)
	}
	return nil
}
