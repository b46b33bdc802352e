package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ignatzorin/rental-escrow/internal/pkg/apperror"
)

// Response общий конверт ответов API.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PaginatedResponse конверт для журнала доходов и ленты сообщений.
type PaginatedResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Page    Page        `json:"page"`
}

// Page описывает окно выборки. Общее число записей не считается:
// HasMore выставляется, когда страница заполнена целиком.
type Page struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

func NewPage(limit, offset, returned int) Page {
	return Page{Limit: limit, Offset: offset, HasMore: limit > 0 && returned >= limit}
}

// WebhookAck тело успешного ответа провайдеру платежей.
type WebhookAck struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func Paginated(c *gin.Context, data interface{}, page Page) {
	c.JSON(http.StatusOK, PaginatedResponse{Success: true, Data: data, Page: page})
}

// Ack подтверждает приём события. Повторная доставка тоже получает 200.
func Ack(c *gin.Context, duplicate bool) {
	c.JSON(http.StatusOK, WebhookAck{Received: true, Duplicate: duplicate})
}

// Retry отвечает 500, чтобы провайдер повторил доставку. Причина наружу не отдаётся.
func Retry(c *gin.Context) {
	fail(c, http.StatusInternalServerError, apperror.ErrCodeInternal, "событие не обработано, повторите доставку")
}

// Error отдаёт AppError с её статусом, остальные ошибки маскируются.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		fail(c, appErr.HTTPStatus, appErr.Code, appErr.Message)
		return
	}
	fail(c, http.StatusInternalServerError, apperror.ErrCodeInternal, "внутренняя ошибка сервера")
}

func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, apperror.ErrCodeBadRequest, message)
}

func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, apperror.ErrCodeNotFound, message)
}

func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, apperror.ErrCodeUnauthorized, message)
}

func TooManyRequests(c *gin.Context, message string) {
	fail(c, http.StatusTooManyRequests, apperror.ErrCodeTooManyRequests, message)
}

func fail(c *gin.Context, status int, code apperror.ErrorCode, message string) {
	c.JSON(status, Response{
		Success: false,
		Error:   &ErrorInfo{Code: string(code), Message: message},
	})
}
