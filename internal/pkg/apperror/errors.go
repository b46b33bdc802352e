package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest        ErrorCode = "BAD_REQUEST"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError     ErrorCode = "DATABASE_ERROR"
	ErrCodeInvalidSignature  ErrorCode = "INVALID_SIGNATURE"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeTooManyRequests   ErrorCode = "TOO_MANY_REQUESTS"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду и сообщению, чтобы errors.Is работал с сентинелами
// даже после Wrap.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodeInvalidSignature:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidTransition:
		return http.StatusConflict
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

func IsForbidden(err error) bool {
	return hasCode(err, ErrCodeForbidden)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

func IsDatabase(err error) bool {
	return hasCode(err, ErrCodeDatabaseError)
}

// IsRetryable сообщает, имеет ли смысл повторять операцию: доменные отказы
// (валидация, переходы, права) при повторе дадут тот же результат.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeInvalidTransition, ErrCodeForbidden, ErrCodeInvalidSignature:
		return false
	}
	return true
}

func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// InvalidTransitionError возвращается конечными автоматами при недопустимом переходе.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: недопустимый переход %s -> %s", e.Entity, e.From, e.To)
}

// As позволяет обрабатывать InvalidTransitionError как обычную AppError.
func (e *InvalidTransitionError) As(target any) bool {
	t, ok := target.(**AppError)
	if !ok {
		return false
	}
	*t = New(ErrCodeInvalidTransition, e.Error())
	return true
}

func NewInvalidTransition(entity, from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{Entity: entity, From: from, To: to}
}

var (
	ErrTicketNotFound       = New(ErrCodeNotFound, "заявка не найдена")
	ErrOfferNotFound        = New(ErrCodeNotFound, "предложение не найдено")
	ErrAppointmentNotFound  = New(ErrCodeNotFound, "встреча не найдена")
	ErrConversationNotFound = New(ErrCodeNotFound, "беседа не найдена")
	ErrContractNotFound     = New(ErrCodeNotFound, "договор не найден")
	ErrEventNotFound        = New(ErrCodeNotFound, "событие не найдено")
	ErrUnauthorized         = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden            = New(ErrCodeForbidden, "недостаточно прав")
	ErrInvalidSignature     = New(ErrCodeInvalidSignature, "неверная подпись события")
	ErrConcurrentUpdate     = New(ErrCodeConflict, "запись изменена параллельным запросом")
	ErrTicketOfferExists    = New(ErrCodeConflict, "у заявки уже есть активное предложение")
)
